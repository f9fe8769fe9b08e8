package recorder

import (
	"context"
	"strings"
	"sync"

	"MarketBackfill/internal/model"
)

// MemoryRecorder keeps coverage in process memory, for tests and one-shot
// runs without a database.
type MemoryRecorder struct {
	mu       sync.Mutex
	coverage map[string]model.CoverageRecord
	events   []FetchEvent
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{coverage: make(map[string]model.CoverageRecord)}
}

func coverageKey(symbol string, tf model.Timeframe) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + "|" + string(tf)
}

func (m *MemoryRecorder) Coverage(_ context.Context, symbol string, tf model.Timeframe) (model.CoverageRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.coverage[coverageKey(symbol, tf)]
	return rec, ok, nil
}

func (m *MemoryRecorder) RecordCoverage(_ context.Context, rec model.CoverageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coverage[coverageKey(rec.Symbol, rec.Timeframe)] = rec
	return nil
}

func (m *MemoryRecorder) RecordFetch(_ context.Context, evt *FetchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *evt)
	return nil
}

// Events returns a copy of the recorded fetch history.
func (m *MemoryRecorder) Events() []FetchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FetchEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryRecorder) Close() error { return nil }
