// Package bars holds the pure helpers every source runs its output through.
package bars

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"MarketBackfill/internal/model"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses the textual timestamp forms found in datasets and
// vendor payloads. Zone-less values are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Sanitize builds a Bar from a raw record. It returns false when the
// timestamp is not text or any price/volume field is missing, not numeric,
// or not finite. Unknown keys are ignored.
func Sanitize(raw map[string]any) (model.Bar, bool) {
	ts, ok := raw["timestamp"].(string)
	if !ok {
		return model.Bar{}, false
	}
	var vals [5]float64
	for i, key := range []string{"open", "high", "low", "close", "volume"} {
		v, ok := finite(raw[key])
		if !ok {
			return model.Bar{}, false
		}
		vals[i] = v
	}
	return model.Bar{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, true
}

func finite(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FilterForRequest keeps the bars whose timestamp falls inside the request
// window, both ends inclusive. A date-only end covers that whole day. Empty
// bounds are not enforced; bars with unparsable timestamps are dropped.
func FilterForRequest(list []model.Bar, req model.DataRequest) []model.Bar {
	lo, hasLo := ParseTimestamp(req.Start)
	hi, hasHi := ParseTimestamp(req.End)
	if hasHi && isDateOnly(req.End) {
		hi = hi.Add(24*time.Hour - time.Nanosecond)
	}
	out := make([]model.Bar, 0, len(list))
	for _, b := range list {
		ts, ok := ParseTimestamp(b.Timestamp)
		if !ok {
			continue
		}
		if hasLo && ts.Before(lo) {
			continue
		}
		if hasHi && ts.After(hi) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func isDateOnly(s string) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	return err == nil
}

// SortChronologically returns a new slice ordered by timestamp. Unparsable
// timestamps sort first. The input is left untouched.
func SortChronologically(list []model.Bar) []model.Bar {
	out := make([]model.Bar, len(list))
	copy(out, list)
	keys := make(map[string]time.Time, len(out))
	for _, b := range out {
		ts, _ := ParseTimestamp(b.Timestamp)
		keys[b.Timestamp] = ts
	}
	sort.SliceStable(out, func(i, j int) bool {
		return keys[out[i].Timestamp].Before(keys[out[j].Timestamp])
	})
	return out
}

// Dedupe collapses bars sharing a timestamp on sorted input, keeping the
// last occurrence.
func Dedupe(sorted []model.Bar) []model.Bar {
	out := make([]model.Bar, 0, len(sorted))
	for _, b := range sorted {
		if n := len(out); n > 0 && sameInstant(out[n-1].Timestamp, b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func sameInstant(a, b string) bool {
	if a == b {
		return true
	}
	ta, okA := ParseTimestamp(a)
	tb, okB := ParseTimestamp(b)
	return okA && okB && ta.Equal(tb)
}

// Slug lowercases s and collapses every run of non-alphanumerics into one
// dash, trimming dashes at either end.
func Slug(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
