package scheduler

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"MarketBackfill/internal/collector"
	"MarketBackfill/internal/model"
	"MarketBackfill/internal/notifier"
	"MarketBackfill/internal/recorder"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sender delivers a report. *notifier.TelegramNotifier satisfies it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// WatchlistFunc expands the configured watchlist for a refresh at now.
type WatchlistFunc func(now time.Time) ([]model.DataRequest, error)

// Scheduler runs the periodic watchlist refresh and answers chat commands.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Notifier  Sender
	Recorder  recorder.Recorder
	Watchlist WatchlistFunc
	Parallel  int
	Logger    *zap.Logger
	Ctx       context.Context
	Now       func() time.Time

	mu   sync.Mutex
	last *collector.Report
}

// NewScheduler creates a new Scheduler. notify may be nil.
func NewScheduler(ctx context.Context, col *collector.Collector, notify Sender, rec recorder.Recorder, watchlist WatchlistFunc, parallel int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Collector: col,
		Notifier:  notify,
		Recorder:  rec,
		Watchlist: watchlist,
		Parallel:  parallel,
		Logger:    logger,
		Ctx:       ctx,
		Now:       time.Now,
	}
}

// RegisterAll registers the watchlist refresh.
func (s *Scheduler) RegisterAll(refreshCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, func() { s.refreshTask() }); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("scheduler started", zap.Int("entries", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

// RunNow executes the refresh immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() *collector.Report {
	return s.refreshTask()
}

// LastReport returns the most recent refresh, or nil before the first one.
func (s *Scheduler) LastReport() *collector.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) refreshTask() *collector.Report {
	s.Logger.Info("running watchlist refresh")
	if s.Watchlist == nil {
		s.Logger.Warn("no watchlist configured, skipping refresh")
		return nil
	}
	reqs, err := s.Watchlist(s.Now())
	if err != nil {
		s.Logger.Error("expand watchlist", zap.Error(err))
		s.trySend(fmt.Sprintf("❌ Watchlist refresh failed: %s", html.EscapeString(err.Error())))
		return nil
	}
	if len(reqs) == 0 {
		s.Logger.Info("watchlist is empty")
		return nil
	}

	report := s.Collector.Backfill(s.Ctx, reqs, s.Parallel)
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	s.trySend(notifier.FormatRefreshReport(report))
	return report
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch fields[0] {
	case "/refresh":
		s.refreshTask()
		return ""
	case "/status":
		report := s.LastReport()
		if report == nil {
			return "No refresh has run yet."
		}
		return notifier.FormatRefreshReport(report)
	case "/coverage":
		return s.coverageCommand(ctx, fields[1:])
	case "/backfill":
		return s.backfillCommand(ctx, fields[1:])
	default:
		return helpText
	}
}

const helpText = "Commands:\n" +
	"• /refresh\n" +
	"• /status\n" +
	"• /coverage SYMBOL [TIMEFRAME]\n" +
	"• /backfill SYMBOL TIMEFRAME START END [SOURCE]"

func (s *Scheduler) coverageCommand(ctx context.Context, args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return "usage: /coverage SYMBOL [TIMEFRAME]"
	}
	tf := model.Timeframe1d
	if len(args) == 2 {
		parsed, err := model.ParseTimeframe(args[1])
		if err != nil {
			return err.Error()
		}
		tf = parsed
	}
	rec, ok, err := s.Recorder.Coverage(ctx, args[0], tf)
	if err != nil {
		s.Logger.Error("read coverage", zap.Error(err))
		return "coverage lookup failed"
	}
	if !ok {
		return fmt.Sprintf("No coverage recorded for %s %s.", html.EscapeString(args[0]), tf)
	}
	return notifier.FormatCoverage(rec)
}

func (s *Scheduler) backfillCommand(ctx context.Context, args []string) string {
	if len(args) < 4 || len(args) > 5 {
		return "usage: /backfill SYMBOL TIMEFRAME START END [SOURCE]"
	}
	tf, err := model.ParseTimeframe(args[1])
	if err != nil {
		return err.Error()
	}
	req := model.NewDataRequest(args[0], tf, args[2], args[3])
	if len(args) == 5 {
		if req.Source, err = model.ParseSourceKind(args[4]); err != nil {
			return err.Error()
		}
	}
	res, err := s.Collector.Resolve(ctx, req)
	if err != nil {
		s.Logger.Warn("command backfill failed", zap.String("request", req.String()), zap.Error(err))
		return "❌ " + html.EscapeString(err.Error())
	}
	return notifier.FormatResult(req, res)
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.Logger.Error("send notification", zap.Error(err))
	}
}
