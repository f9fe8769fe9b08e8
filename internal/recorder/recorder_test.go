package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"MarketBackfill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCoverage() model.CoverageRecord {
	return model.CoverageRecord{
		Source:    model.SourceTiingo,
		Symbol:    "aapl",
		Timeframe: model.Timeframe1d,
		Start:     "2024-01-02",
		End:       "2024-03-28",
		Adjusted:  true,
		Rows:      61,
		Path:      "/data/aapl_1d.csv",
		UpdatedAt: time.Date(2024, 3, 29, 8, 0, 0, 0, time.UTC),
	}
}

func openSQLite(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "coverage.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSQLiteRecorder_CoverageRoundTrip(t *testing.T) {
	r := openSQLite(t)
	ctx := context.Background()

	_, ok, err := r.Coverage(ctx, "AAPL", model.Timeframe1d)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.RecordCoverage(ctx, sampleCoverage()))

	got, ok, err := r.Coverage(ctx, "AAPL", model.Timeframe1d)
	require.NoError(t, err)
	require.True(t, ok)
	want := sampleCoverage()
	want.Symbol = "AAPL"
	assert.Equal(t, want, got)
}

func TestSQLiteRecorder_UpsertReplaces(t *testing.T) {
	r := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, r.RecordCoverage(ctx, sampleCoverage()))
	next := sampleCoverage()
	next.Source = model.SourcePolygon
	next.End = "2024-04-30"
	next.Adjusted = false
	next.Rows = 82
	require.NoError(t, r.RecordCoverage(ctx, next))

	got, ok, err := r.Coverage(ctx, "aapl", model.Timeframe1d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.SourcePolygon, got.Source)
	assert.Equal(t, "2024-04-30", got.End)
	assert.False(t, got.Adjusted)
	assert.Equal(t, 82, got.Rows)

	_, ok, err = r.Coverage(ctx, "aapl", model.Timeframe1h)
	require.NoError(t, err)
	assert.False(t, ok, "timeframes are tracked separately")
}

func TestSQLiteRecorder_FetchHistory(t *testing.T) {
	r := openSQLite(t)
	ctx := context.Background()

	for _, sym := range []string{"AAPL", "MSFT"} {
		require.NoError(t, r.RecordFetch(ctx, &FetchEvent{
			RunID:     "run-1",
			Symbol:    sym,
			Timeframe: model.Timeframe1d,
			Source:    model.SourceTiingo,
			Rows:      10,
			Fetched:   true,
			Duration:  1500 * time.Millisecond,
		}))
	}
	require.NoError(t, r.RecordFetch(ctx, &FetchEvent{RunID: "run-2", Symbol: "NVDA", Timeframe: model.Timeframe1h, Error: "all sources failed"}))

	n, err := r.FetchCount(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryRecorder(t *testing.T) {
	m := NewMemoryRecorder()
	ctx := context.Background()

	require.NoError(t, m.RecordCoverage(ctx, sampleCoverage()))
	got, ok, err := m.Coverage(ctx, " AAPL ", model.Timeframe1d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 61, got.Rows)

	require.NoError(t, m.RecordFetch(ctx, &FetchEvent{RunID: "r", Symbol: "AAPL"}))
	assert.Len(t, m.Events(), 1)
}

func TestNoopRecorder(t *testing.T) {
	n := NewNoopRecorder()
	require.NoError(t, n.RecordCoverage(context.Background(), sampleCoverage()))
	_, ok, err := n.Coverage(context.Background(), "AAPL", model.Timeframe1d)
	require.NoError(t, err)
	assert.False(t, ok)
}
