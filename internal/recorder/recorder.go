package recorder

import (
	"context"
	"time"

	"MarketBackfill/internal/model"
)

// FetchEvent is one resolve outcome, kept as history next to the coverage
// table.
type FetchEvent struct {
	RunID     string
	Symbol    string
	Timeframe model.Timeframe
	Source    model.SourceKind
	Rows      int
	Start     string
	End       string
	Fetched   bool
	Error     string // empty on success
	Duration  time.Duration
}

// Recorder persists coverage metadata and fetch history.
type Recorder interface {
	// Coverage returns the record for (symbol, timeframe); ok is false when
	// none is stored.
	Coverage(ctx context.Context, symbol string, tf model.Timeframe) (model.CoverageRecord, bool, error)
	RecordCoverage(ctx context.Context, rec model.CoverageRecord) error
	RecordFetch(ctx context.Context, evt *FetchEvent) error
	Close() error
}
