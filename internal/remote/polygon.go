package remote

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"MarketBackfill/internal/model"

	"github.com/tidwall/gjson"
)

// PolygonAPIKeyEnv names the environment fallback for the Polygon key.
const PolygonAPIKeyEnv = "POLYGON_API_KEY"

type polygonSpan struct {
	multiplier int
	timespan   string
}

var polygonSpans = map[model.Timeframe]polygonSpan{
	model.Timeframe1d:  {1, "day"},
	model.Timeframe1h:  {1, "hour"},
	model.Timeframe15m: {15, "minute"},
	model.Timeframe1m:  {1, "minute"},
}

// Polygon omits "results" entirely for windows without trading.
var polygon = dialect{
	name:      string(model.SourcePolygon),
	envKey:    PolygonAPIKeyEnv,
	baseURL:   "https://api.polygon.io",
	chunkDays: 30,
	policy:    MalformedIsEmpty,
	records:   "results",
	endpoint:  polygonEndpoint,
	authorize: func(r *http.Request, key string) { r.Header.Set("Authorization", "Bearer "+key) },
	record:    polygonRecord,
}

// NewPolygon creates the Polygon source.
func NewPolygon(cfg Config, opts Options) *Fetcher {
	return newFetcher(polygon, cfg, opts)
}

// polygonEndpoint builds an aggregates URL. The timeframe selects the
// multiplier/timespan pair; adjustment is a query flag.
func polygonEndpoint(base string, req model.DataRequest, c Chunk) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	span, ok := polygonSpans[req.Timeframe]
	if !ok {
		return "", fmt.Errorf("unsupported timeframe %q", req.Timeframe)
	}
	u.Path = fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		strings.TrimRight(u.Path, "/"),
		strings.ToUpper(strings.TrimSpace(req.Symbol)),
		span.multiplier, span.timespan,
		model.FormatDate(c.Start), model.FormatDate(c.End))

	q := url.Values{}
	q.Set("adjusted", strconv.FormatBool(req.Adjusted))
	q.Set("sort", "asc")
	q.Set("limit", "50000")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func polygonRecord(rec gjson.Result, _ bool) map[string]any {
	raw := map[string]any{
		"open":   pick(rec, "o", "", false),
		"high":   pick(rec, "h", "", false),
		"low":    pick(rec, "l", "", false),
		"close":  pick(rec, "c", "", false),
		"volume": pick(rec, "v", "", false),
	}
	if t := rec.Get("t"); t.Type == gjson.Number {
		raw["timestamp"] = time.UnixMilli(t.Int()).UTC().Format(time.RFC3339)
	}
	return raw
}
