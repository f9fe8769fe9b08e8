package remote

import (
	"fmt"
	"time"

	"MarketBackfill/internal/model"
)

// Chunk is one inclusive day window sent to a vendor.
type Chunk struct {
	Start time.Time
	End   time.Time
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s..%s", model.FormatDate(c.Start), model.FormatDate(c.End))
}

// Chunks splits r into windows spanning at most maxSpanDays-1 days, walking
// backward from the end so the most recent data is requested first.
func Chunks(r model.FetchRange, maxSpanDays int) []Chunk {
	if r.Empty() {
		return nil
	}
	span := maxSpanDays - 1
	if span < 0 {
		span = 0
	}
	var out []Chunk
	end := r.EndDate
	for !end.Before(r.StartDate) {
		start := end.AddDate(0, 0, -span)
		if start.Before(r.StartDate) {
			start = r.StartDate
		}
		out = append(out, Chunk{Start: start, End: end})
		end = start.AddDate(0, 0, -1)
	}
	return out
}
