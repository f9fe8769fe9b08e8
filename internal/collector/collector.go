// Package collector decides whether a series is already on disk and, when
// it is not, walks the vendor chain until one source delivers it.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"MarketBackfill/internal/bars"
	"MarketBackfill/internal/dataset"
	"MarketBackfill/internal/model"
	"MarketBackfill/internal/recorder"
	"MarketBackfill/internal/source"

	"go.uber.org/zap"
)

// DefaultPriority is the auto-mode vendor order.
var DefaultPriority = []model.SourceKind{model.SourceTiingo, model.SourcePolygon}

// Result is what a resolve produced: the source that holds the data, how
// many bars it returned and the window they span.
type Result struct {
	Source  model.SourceKind
	Rows    int
	Start   string
	End     string
	Path    string
	Fetched bool
}

// Collector resolves requests against recorded coverage, the dataset
// directory and the remote vendors.
type Collector struct {
	Dataset  *dataset.Source
	Vendors  map[model.SourceKind]source.Source
	Priority []model.SourceKind
	Recorder recorder.Recorder
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewCollector wires a collector. A nil recorder stores nothing and an empty
// priority selects DefaultPriority.
func NewCollector(ds *dataset.Source, vendors map[model.SourceKind]source.Source, priority []model.SourceKind, rec recorder.Recorder, logger *zap.Logger) *Collector {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	return &Collector{
		Dataset:  ds,
		Vendors:  vendors,
		Priority: priority,
		Recorder: rec,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (c *Collector) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Resolve makes sure the requested window is on disk and reports where.
func (c *Collector) Resolve(ctx context.Context, req model.DataRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", source.ErrConfiguration, err)
	}
	if req.Source == "" {
		req.Source = model.SourceAuto
	}

	rec, ok, err := c.Recorder.Coverage(ctx, req.Symbol, req.Timeframe)
	if err != nil {
		return Result{}, fmt.Errorf("read coverage: %w", err)
	}

	if req.Source == model.SourceLocal {
		return c.resolveLocal(ctx, req, rec, ok)
	}
	if !ok && req.Source == model.SourceAuto && c.Dataset.Exists(req.Symbol, req.Timeframe) {
		if rec, err = c.register(ctx, req, c.Dataset.Path(req.Symbol, req.Timeframe)); err != nil {
			return Result{}, err
		}
		ok = true
	}

	if ok && c.sufficient(rec, req) {
		c.Logger.Debug("coverage sufficient, skipping fetch",
			zap.String("request", req.String()),
			zap.String("covers", rec.Window()))
		return resultFromCoverage(rec), nil
	}
	return c.fetch(ctx, req, rec, ok)
}

// sufficient reports whether rec answers a remote or auto request. Prices
// of a different adjustment do not count.
func (c *Collector) sufficient(rec model.CoverageRecord, req model.DataRequest) bool {
	if rec.Adjusted != req.Adjusted {
		return false
	}
	if !rec.Contains(req.Start, req.End) {
		return false
	}
	return rec.Path == "" || fileExists(rec.Path)
}

func (c *Collector) resolveLocal(ctx context.Context, req model.DataRequest, rec model.CoverageRecord, ok bool) (Result, error) {
	path := c.Dataset.Path(req.Symbol, req.Timeframe)
	if !c.Dataset.Exists(req.Symbol, req.Timeframe) {
		return Result{}, fmt.Errorf("%w: no dataset for %s %s at %s; place or register the file",
			source.ErrFileNotFound, req.Symbol, req.Timeframe, path)
	}
	switch {
	case !ok:
		registered, err := c.register(ctx, req, path)
		if err != nil {
			return Result{}, err
		}
		rec = registered
	case rec.Path != path:
		// The recorded series lives in a fetched file; answer from the
		// placed one without replacing the record.
		described, err := c.describe(req, path)
		if err != nil {
			return Result{}, err
		}
		rec = described
	}
	if !rec.Contains(req.Start, req.End) {
		return Result{}, fmt.Errorf("%w: local dataset for %s %s covers %s but %s..%s was requested",
			source.ErrCoverageInsufficient, req.Symbol, req.Timeframe, rec.Window(), orOpen(req.Start), orOpen(req.End))
	}
	res := resultFromCoverage(rec)
	res.Source = model.SourceLocal
	res.Path = path
	return res, nil
}

// register summarizes an unrecorded dataset file and stores its coverage.
func (c *Collector) register(ctx context.Context, req model.DataRequest, path string) (model.CoverageRecord, error) {
	rec, err := c.describe(req, path)
	if err != nil {
		return model.CoverageRecord{}, err
	}
	if err := c.Recorder.RecordCoverage(ctx, rec); err != nil {
		return model.CoverageRecord{}, fmt.Errorf("record coverage: %w", err)
	}
	c.Logger.Info("registered local dataset",
		zap.String("path", path),
		zap.String("covers", rec.Window()),
		zap.Int("rows", rec.Rows))
	return rec, nil
}

func (c *Collector) describe(req model.DataRequest, path string) (model.CoverageRecord, error) {
	list, err := dataset.ReadFile(path)
	if err != nil {
		return model.CoverageRecord{}, err
	}
	sum := dataset.Summarize(bars.SortChronologically(list))
	return model.CoverageRecord{
		Source:    model.SourceLocal,
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Start:     sum.Start,
		End:       sum.End,
		Adjusted:  req.Adjusted,
		Rows:      sum.Rows,
		Path:      path,
		UpdatedAt: c.now().UTC(),
	}, nil
}

// chain lists the vendors a request may use.
func (c *Collector) chain(req model.DataRequest) []model.SourceKind {
	if req.Source.Remote() {
		return []model.SourceKind{req.Source}
	}
	return c.Priority
}

func (c *Collector) fetch(ctx context.Context, req model.DataRequest, prior model.CoverageRecord, hasPrior bool) (Result, error) {
	var failures []source.Failure
	for _, kind := range c.chain(req) {
		v, ok := c.Vendors[kind]
		if !ok || v == nil {
			failures = append(failures, source.Failure{
				Source: string(kind),
				Err:    fmt.Errorf("%w: vendor not configured", source.ErrConfiguration),
			})
			continue
		}
		vreq := req
		vreq.Source = kind
		list, err := v.LoadBars(ctx, vreq)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			c.Logger.Warn("vendor failed",
				zap.String("vendor", string(kind)),
				zap.String("request", req.String()),
				zap.Error(err))
			failures = append(failures, source.Failure{Source: string(kind), Err: err})
			continue
		}
		return c.store(ctx, kind, req, list, prior, hasPrior)
	}
	return Result{}, &source.FallbackError{Request: req.String(), Failures: failures}
}

// store writes vendor bars into the dataset file and records the window
// they actually span, which may be narrower than requested.
func (c *Collector) store(ctx context.Context, kind model.SourceKind, req model.DataRequest, list []model.Bar, prior model.CoverageRecord, hasPrior bool) (Result, error) {
	sorted := bars.SortChronologically(list)
	got := dataset.Summarize(sorted)
	res := Result{Source: kind, Rows: got.Rows, Start: got.Start, End: got.End, Fetched: true}
	if got.Rows == 0 {
		c.Logger.Info("vendor returned no bars",
			zap.String("vendor", string(kind)),
			zap.String("request", req.String()))
		return res, nil
	}

	path := c.target(req, prior, hasPrior)
	merged := sorted
	rec := model.CoverageRecord{
		Source:    kind,
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Start:     got.Start,
		End:       got.End,
		Adjusted:  req.Adjusted,
		Path:      path,
		UpdatedAt: c.now().UTC(),
	}
	if hasPrior && prior.Adjusted == req.Adjusted && prior.Path == path {
		existing, err := dataset.ReadFile(path)
		switch {
		case err == nil:
			merged = bars.Dedupe(bars.SortChronologically(append(existing, sorted...)))
			if touches(prior, req) {
				rec.Start, rec.End = union(prior, got)
			}
		case !errors.Is(err, source.ErrFileNotFound):
			c.Logger.Warn("existing dataset unreadable, replacing", zap.String("path", path), zap.Error(err))
		}
	}

	if err := c.Dataset.WriteFile(path, merged); err != nil {
		return Result{}, err
	}
	rec.Rows = len(merged)
	if err := c.Recorder.RecordCoverage(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("record coverage: %w", err)
	}
	res.Path = path
	c.Logger.Info("series stored",
		zap.String("vendor", string(kind)),
		zap.String("request", req.String()),
		zap.Int("rows", res.Rows),
		zap.String("covers", rec.Window()))
	return res, nil
}

// target picks the file vendor bars are written to. The dataset path is
// used unless it holds a file the collector did not write there, which is
// never replaced.
func (c *Collector) target(req model.DataRequest, prior model.CoverageRecord, hasPrior bool) string {
	path := c.Dataset.Path(req.Symbol, req.Timeframe)
	owned := hasPrior && prior.Source != model.SourceLocal && prior.Path == path
	if owned || !fileExists(path) {
		return path
	}
	fetched := c.Dataset.FetchedPath(req.Symbol, req.Timeframe, req.Adjusted)
	c.Logger.Info("dataset path holds a placed file, writing fetched bars beside it",
		zap.String("dataset", path),
		zap.String("fetched", fetched))
	return fetched
}

// Load resolves the request and reads its bars back from the dataset file.
func (c *Collector) Load(ctx context.Context, req model.DataRequest) ([]model.Bar, Result, error) {
	res, err := c.Resolve(ctx, req)
	if err != nil {
		return nil, Result{}, err
	}
	if res.Path == "" {
		return []model.Bar{}, res, nil
	}
	list, err := dataset.ReadFile(res.Path)
	if err != nil {
		return nil, res, err
	}
	return bars.SortChronologically(bars.FilterForRequest(list, req)), res, nil
}

func resultFromCoverage(rec model.CoverageRecord) Result {
	return Result{
		Source: rec.Source,
		Rows:   rec.Rows,
		Start:  rec.Start,
		End:    rec.End,
		Path:   rec.Path,
	}
}

// touches reports whether the prior window overlaps or abuts the requested
// one. Every day of the request was just fetched, so the union has no holes.
func touches(prior model.CoverageRecord, req model.DataRequest) bool {
	ps, err1 := model.ParseDate(prior.Start)
	pe, err2 := model.ParseDate(prior.End)
	rs, err3 := model.ParseDate(req.Start)
	re, err4 := model.ParseDate(req.End)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}
	return !ps.After(re.AddDate(0, 0, 1)) && !rs.After(pe.AddDate(0, 0, 1))
}

func union(prior model.CoverageRecord, got dataset.Summary) (string, string) {
	start, end := got.Start, got.End
	if prior.Start < start {
		start = prior.Start
	}
	if prior.End > end {
		end = prior.End
	}
	return start, end
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func orOpen(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
