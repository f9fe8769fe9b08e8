package remote

import (
	"net/url"
	"testing"
	"time"

	"MarketBackfill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestChunks(t *testing.T) {
	cases := []struct {
		name   string
		start  string
		end    string
		maxDay int
		want   []string
	}{
		{"single day", "2024-03-01", "2024-03-01", 30, []string{"2024-03-01..2024-03-01"}},
		{"fits one chunk", "2024-03-01", "2024-03-20", 30, []string{"2024-03-01..2024-03-20"}},
		{"exact span", "2024-03-01", "2024-03-30", 30, []string{"2024-03-01..2024-03-30"}},
		{"one past span", "2024-03-01", "2024-03-31", 30, []string{"2024-03-02..2024-03-31", "2024-03-01..2024-03-01"}},
		{"backward over leap day", "2024-02-01", "2024-03-10", 10, []string{
			"2024-03-01..2024-03-10",
			"2024-02-20..2024-02-29",
			"2024-02-10..2024-02-19",
			"2024-02-01..2024-02-09",
		}},
		{"one day chunks", "2024-03-01", "2024-03-03", 1, []string{
			"2024-03-03..2024-03-03",
			"2024-03-02..2024-03-02",
			"2024-03-01..2024-03-01",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Chunks(model.FetchRange{StartDate: day(tc.start), EndDate: day(tc.end)}, tc.maxDay)
			names := make([]string, 0, len(got))
			for _, c := range got {
				names = append(names, c.String())
			}
			assert.Equal(t, tc.want, names)
		})
	}
}

func TestChunks_EmptyRange(t *testing.T) {
	assert.Empty(t, Chunks(model.FetchRange{StartDate: day("2024-03-05"), EndDate: day("2024-03-01")}, 30))
}

func TestTiingoEndpoint(t *testing.T) {
	c := Chunk{Start: day("2024-03-01"), End: day("2024-03-05")}

	daily, err := tiingoEndpoint("https://api.example.com/", model.NewDataRequest("AAPL", model.Timeframe1d, "2024-03-01", "2024-03-05"), c)
	require.NoError(t, err)
	u, err := url.Parse(daily)
	require.NoError(t, err)
	assert.Equal(t, "/tiingo/daily/aapl/prices", u.Path)
	assert.Equal(t, "daily", u.Query().Get("resampleFreq"))
	assert.Equal(t, "2024-03-01", u.Query().Get("startDate"))
	assert.Equal(t, "2024-03-05", u.Query().Get("endDate"))

	hourly, err := tiingoEndpoint("https://api.example.com", model.NewDataRequest("AAPL", model.Timeframe1h, "2024-03-01", "2024-03-05"), c)
	require.NoError(t, err)
	u, err = url.Parse(hourly)
	require.NoError(t, err)
	assert.Equal(t, "/iex/aapl/prices", u.Path)
	assert.Equal(t, "1hour", u.Query().Get("resampleFreq"))
	assert.Equal(t, "open,high,low,close,volume", u.Query().Get("columns"))
}

func TestPolygonEndpoint(t *testing.T) {
	c := Chunk{Start: day("2024-03-01"), End: day("2024-03-05")}

	req := model.NewDataRequest("msft", model.Timeframe15m, "2024-03-01", "2024-03-05")
	req.Adjusted = false
	raw, err := polygonEndpoint("https://api.example.com", req, c)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/v2/aggs/ticker/MSFT/range/15/minute/2024-03-01/2024-03-05", u.Path)
	assert.Equal(t, "false", u.Query().Get("adjusted"))
	assert.Equal(t, "asc", u.Query().Get("sort"))

	daily, err := polygonEndpoint("https://api.example.com", model.NewDataRequest("msft", model.Timeframe1d, "2024-03-01", "2024-03-05"), c)
	require.NoError(t, err)
	assert.Contains(t, daily, "/range/1/day/")
	assert.Contains(t, daily, "adjusted=true")
}
