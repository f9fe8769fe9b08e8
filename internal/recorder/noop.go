package recorder

import (
	"context"

	"MarketBackfill/internal/model"
)

// NoopRecorder stores nothing. Every resolve sees no coverage and fetches.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) Coverage(_ context.Context, _ string, _ model.Timeframe) (model.CoverageRecord, bool, error) {
	return model.CoverageRecord{}, false, nil
}
func (n *NoopRecorder) RecordCoverage(_ context.Context, _ model.CoverageRecord) error { return nil }
func (n *NoopRecorder) RecordFetch(_ context.Context, _ *FetchEvent) error             { return nil }
func (n *NoopRecorder) Close() error                                                   { return nil }
