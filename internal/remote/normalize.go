package remote

import (
	"fmt"
	"net/http"
	"time"

	"MarketBackfill/internal/bars"
	"MarketBackfill/internal/model"
	"MarketBackfill/internal/source"

	"github.com/tidwall/gjson"
)

// MalformedPolicy decides what a payload that is not an array of records
// means for a vendor.
type MalformedPolicy int

const (
	// MalformedIsError fails the chunk with a parse error.
	MalformedIsError MalformedPolicy = iota
	// MalformedIsEmpty treats the chunk as having no bars.
	MalformedIsEmpty
)

func (p MalformedPolicy) String() string {
	if p == MalformedIsEmpty {
		return "empty"
	}
	return "error"
}

// dialect is everything vendor-specific about talking to one API. records
// is the gjson path of the record array; empty means the payload root.
type dialect struct {
	name      string
	envKey    string
	baseURL   string
	chunkDays int
	policy    MalformedPolicy
	records   string
	endpoint  func(base string, req model.DataRequest, c Chunk) (string, error)
	authorize func(r *http.Request, key string)
	record    func(rec gjson.Result, adjusted bool) map[string]any
}

func (f *Fetcher) normalize(body []byte, adjusted bool) ([]model.Bar, error) {
	var list gjson.Result
	if gjson.ValidBytes(body) {
		list = gjson.ParseBytes(body)
		if f.d.records != "" {
			list = list.Get(f.d.records)
		}
	}
	if !list.IsArray() {
		if f.d.policy == MalformedIsEmpty {
			return []model.Bar{}, nil
		}
		return nil, fmt.Errorf("%s: %w: payload is not an array of bars", f.d.name, source.ErrParse)
	}
	out := []model.Bar{}
	list.ForEach(func(_, rec gjson.Result) bool {
		if b, ok := bars.Sanitize(f.d.record(rec, adjusted)); ok {
			out = append(out, b)
		}
		return true
	})
	return out, nil
}

// pick returns the adjusted field when requested and present, otherwise the
// raw field. Non-numeric values are left out so Sanitize rejects the record.
func pick(rec gjson.Result, raw, adj string, adjusted bool) any {
	if adjusted && adj != "" {
		if v := rec.Get(adj); v.Type == gjson.Number {
			return v.Float()
		}
	}
	if v := rec.Get(raw); v.Type == gjson.Number {
		return v.Float()
	}
	return nil
}

func isoTimestamp(s string) (string, bool) {
	ts, ok := bars.ParseTimestamp(s)
	if !ok {
		return "", false
	}
	return ts.Format(time.RFC3339), true
}
