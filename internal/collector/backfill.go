package collector

import (
	"context"
	"time"

	"MarketBackfill/internal/model"
	"MarketBackfill/internal/recorder"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one request within a backfill run.
type Outcome struct {
	Request  model.DataRequest
	Result   Result
	Err      error
	Duration time.Duration
}

// Report summarizes a backfill run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Outcomes []Outcome
}

// Failed counts the outcomes that ended in an error.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Fetched counts the outcomes that went to a vendor.
func (r *Report) Fetched() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil && o.Result.Fetched {
			n++
		}
	}
	return n
}

// Backfill resolves distinct requests with at most parallel in flight. One
// failing request does not stop the others; failures are reported per
// outcome. Outcomes keep the order of the first occurrence of each request.
func (c *Collector) Backfill(ctx context.Context, reqs []model.DataRequest, parallel int) *Report {
	if parallel <= 0 {
		parallel = 1
	}
	report := &Report{RunID: uuid.NewString(), Started: c.now()}
	logger := c.Logger.With(zap.String("run", report.RunID))

	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if k := req.String(); !seen[k] {
			seen[k] = true
			report.Outcomes = append(report.Outcomes, Outcome{Request: req})
		}
	}
	logger.Info("backfill started",
		zap.Int("requests", len(report.Outcomes)),
		zap.Int("parallel", parallel))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i := range report.Outcomes {
		out := &report.Outcomes[i]
		g.Go(func() error {
			started := c.now()
			out.Result, out.Err = c.Resolve(ctx, out.Request)
			out.Duration = c.now().Sub(started)
			c.recordOutcome(ctx, report.RunID, out, logger)
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = c.now()
	logger.Info("backfill finished",
		zap.Int("requests", len(report.Outcomes)),
		zap.Int("fetched", report.Fetched()),
		zap.Int("failed", report.Failed()),
		zap.Duration("took", report.Finished.Sub(report.Started)))
	return report
}

func (c *Collector) recordOutcome(ctx context.Context, runID string, out *Outcome, logger *zap.Logger) {
	evt := &recorder.FetchEvent{
		RunID:     runID,
		Symbol:    out.Request.Symbol,
		Timeframe: out.Request.Timeframe,
		Source:    out.Result.Source,
		Rows:      out.Result.Rows,
		Start:     out.Result.Start,
		End:       out.Result.End,
		Fetched:   out.Result.Fetched,
		Duration:  out.Duration,
	}
	if out.Err != nil {
		evt.Error = out.Err.Error()
		logger.Warn("request failed", zap.String("request", out.Request.String()), zap.Error(out.Err))
	}
	if err := c.Recorder.RecordFetch(ctx, evt); err != nil {
		logger.Warn("record fetch history failed", zap.Error(err))
	}
}
