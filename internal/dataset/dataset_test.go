package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"MarketBackfill/internal/model"
	"MarketBackfill/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, dir, symbol string, tf model.Timeframe, body string) string {
	t.Helper()
	path := Path(dir, symbol, tf)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestPath_Slugs(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "brk-b_1d.csv"), Path("data", "BRK.B", model.Timeframe1d))
	assert.Equal(t, filepath.Join("data", "es-f_15m.csv"), Path("data", "^ES=F", model.Timeframe15m))
}

func TestLoadBars_TenDailyRowsFiveRequested(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	// written newest first to prove the output is re-sorted
	for day := 10; day >= 1; day-- {
		fmt.Fprintf(&b, "2024-01-%02d,%d,%d,%d,%d,1000\n", day, day, day+1, day-1, day)
	}
	writeDataset(t, dir, "AAPL", model.Timeframe1d, b.String())

	src := NewSource(dir, nil)
	got, err := src.LoadBars(context.Background(), model.DataRequest{
		Source: model.SourceLocal, Symbol: "AAPL", Timeframe: model.Timeframe1d,
		Start: "2024-01-01", End: "2024-01-05",
	})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "2024-01-01", got[0].Timestamp)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Timestamp, got[i].Timestamp)
	}
}

func TestLoadBars_MalformedRowsDropped(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "MSFT", model.Timeframe1h, strings.Join([]string{
		"timestamp,open,high,low,close,volume",
		"2024-01-02T14:00:00Z,1,2,0.5,1.5,100",
		"2024-01-02T15:00:00Z,abc,2,0.5,1.5,100",
		"2024-01-02T16:00:00Z,1,2,0.5",
		"2024-01-02T17:00:00Z,1,2,0.5,1.5,NaN",
		"2024-01-02T18:00:00Z,1,2,0.5,1.75,0",
	}, "\n"))

	got, err := NewSource(dir, nil).LoadBars(context.Background(), model.DataRequest{Symbol: "MSFT", Timeframe: model.Timeframe1h})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.75, got[1].Close)
	assert.Equal(t, 0.0, got[1].Volume)
}

func TestLoadBars_ColumnsByHeaderName(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, "SPY", model.Timeframe1d, "volume,close,low,high,open,timestamp\n500,4.5,4,5,4.2,2024-03-01\n")

	got, err := NewSource(dir, nil).LoadBars(context.Background(), model.DataRequest{Symbol: "SPY", Timeframe: model.Timeframe1d})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.Bar{Timestamp: "2024-03-01", Open: 4.2, High: 5, Low: 4, Close: 4.5, Volume: 500}, got[0])
}

func TestLoadBars_EmptyAndHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	src := NewSource(dir, nil)

	writeDataset(t, dir, "EMPTY", model.Timeframe1d, "")
	got, err := src.LoadBars(context.Background(), model.DataRequest{Symbol: "EMPTY", Timeframe: model.Timeframe1d})
	require.NoError(t, err)
	assert.Empty(t, got)

	writeDataset(t, dir, "HEAD", model.Timeframe1d, "timestamp,open,high,low,close,volume\n")
	got, err = src.LoadBars(context.Background(), model.DataRequest{Symbol: "HEAD", Timeframe: model.Timeframe1d})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadBars_MissingFile(t *testing.T) {
	src := NewSource(t.TempDir(), nil)
	_, err := src.LoadBars(context.Background(), model.DataRequest{Symbol: "NOPE", Timeframe: model.Timeframe1d})
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrFileNotFound)
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.False(t, src.Exists("NOPE", model.Timeframe1d))
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := NewSource(filepath.Join(dir, "nested"), nil)
	list := []model.Bar{
		{Timestamp: "2024-01-02T00:00:00Z", Open: 1.25, High: 2, Low: 1, Close: 1.5, Volume: 10},
		{Timestamp: "2024-01-03T00:00:00Z", Open: 1.5, High: 2.5, Low: 1.1, Close: 2.25, Volume: 0},
	}
	path, err := src.Write("QQQ", model.Timeframe1d, list)
	require.NoError(t, err)
	assert.True(t, src.Exists("QQQ", model.Timeframe1d))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, list, got)
}

func TestFetchedPath_SeparatesAdjustment(t *testing.T) {
	src := NewSource("data", nil)
	adj := src.FetchedPath("BRK.B", model.Timeframe1d, true)
	raw := src.FetchedPath("BRK.B", model.Timeframe1d, false)
	assert.Equal(t, filepath.Join("data", "brk-b_1d.adjusted.fetched.csv"), adj)
	assert.Equal(t, filepath.Join("data", "brk-b_1d.raw.fetched.csv"), raw)
	assert.NotEqual(t, src.Path("BRK.B", model.Timeframe1d), adj)
}

var errDiskFull = errors.New("disk full")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errDiskFull }

func TestWriteCSV_ReturnsWriteError(t *testing.T) {
	list := make([]model.Bar, 500)
	for i := range list {
		list[i] = model.Bar{Timestamp: "2024-01-02T00:00:00Z", Open: 1.25, High: 2, Low: 1, Close: 1.5, Volume: 10}
	}
	assert.ErrorIs(t, writeCSV(failingWriter{}, list), errDiskFull)
	assert.ErrorIs(t, writeCSV(failingWriter{}, nil), errDiskFull)
}

func TestSummarize(t *testing.T) {
	sum := Summarize([]model.Bar{
		{Timestamp: "2024-01-02T14:30:00Z"},
		{Timestamp: "2024-01-09T20:00:00Z"},
	})
	assert.Equal(t, Summary{Start: "2024-01-02", End: "2024-01-09", Rows: 2}, sum)
	assert.Equal(t, Summary{}, Summarize(nil))
}
