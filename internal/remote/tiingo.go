package remote

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"MarketBackfill/internal/model"

	"github.com/tidwall/gjson"
)

// TiingoAPIKeyEnv names the environment fallback for the Tiingo key.
const TiingoAPIKeyEnv = "TIINGO_API_KEY"

var tiingoResample = map[model.Timeframe]string{
	model.Timeframe1h:  "1hour",
	model.Timeframe15m: "15min",
	model.Timeframe1m:  "1min",
}

// Tiingo answers errors with a JSON object, so a payload that is not an array
// is never a quiet empty day.
var tiingo = dialect{
	name:      string(model.SourceTiingo),
	envKey:    TiingoAPIKeyEnv,
	baseURL:   "https://api.tiingo.com",
	chunkDays: 365,
	policy:    MalformedIsError,
	endpoint:  tiingoEndpoint,
	authorize: func(r *http.Request, key string) { r.Header.Set("Authorization", "Token "+key) },
	record:    tiingoRecord,
}

// NewTiingo creates the Tiingo source.
func NewTiingo(cfg Config, opts Options) *Fetcher {
	return newFetcher(tiingo, cfg, opts)
}

// tiingoEndpoint routes daily bars to the EOD endpoint and intraday bars to
// the IEX endpoint with a resample frequency.
func tiingoEndpoint(base string, req model.DataRequest, c Chunk) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	symbol := strings.ToLower(strings.TrimSpace(req.Symbol))
	root := strings.TrimRight(u.Path, "/")

	q := url.Values{}
	q.Set("startDate", model.FormatDate(c.Start))
	q.Set("endDate", model.FormatDate(c.End))
	q.Set("format", "json")
	if req.Timeframe.Intraday() {
		freq, ok := tiingoResample[req.Timeframe]
		if !ok {
			return "", fmt.Errorf("unsupported timeframe %q", req.Timeframe)
		}
		u.Path = root + "/iex/" + symbol + "/prices"
		q.Set("resampleFreq", freq)
		q.Set("columns", "open,high,low,close,volume")
	} else {
		u.Path = root + "/tiingo/daily/" + symbol + "/prices"
		q.Set("resampleFreq", "daily")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func tiingoRecord(rec gjson.Result, adjusted bool) map[string]any {
	raw := map[string]any{
		"open":   pick(rec, "open", "adjOpen", adjusted),
		"high":   pick(rec, "high", "adjHigh", adjusted),
		"low":    pick(rec, "low", "adjLow", adjusted),
		"close":  pick(rec, "close", "adjClose", adjusted),
		"volume": pick(rec, "volume", "adjVolume", adjusted),
	}
	if ts, ok := isoTimestamp(rec.Get("date").String()); ok {
		raw["timestamp"] = ts
	}
	return raw
}
