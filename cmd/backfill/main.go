package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"MarketBackfill/internal/cache"
	"MarketBackfill/internal/collector"
	"MarketBackfill/internal/config"
	"MarketBackfill/internal/dataset"
	"MarketBackfill/internal/logging"
	"MarketBackfill/internal/model"
	"MarketBackfill/internal/notifier"
	"MarketBackfill/internal/recorder"
	"MarketBackfill/internal/remote"
	"MarketBackfill/internal/scheduler"
	"MarketBackfill/internal/source"

	"go.uber.org/zap"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config")
	symbol := flag.String("symbol", "", "symbol to backfill (one-shot mode)")
	timeframe := flag.String("timeframe", "1d", "1d, 1h, 15m or 1m")
	start := flag.String("start", "", "first day, YYYY-MM-DD")
	end := flag.String("end", "", "last day, YYYY-MM-DD")
	src := flag.String("source", "auto", "auto, local, tiingo or polygon")
	adjusted := flag.Bool("adjusted", true, "request split/dividend adjusted prices")
	daemon := flag.Bool("daemon", false, "run the scheduled watchlist refresh")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn("init sqlite recorder failed, using memory", zap.Error(err))
			rec = recorder.NewMemoryRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewMemoryRecorder()
	}

	col := buildCollector(cfg, rec, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !*daemon {
		if *symbol == "" {
			fmt.Fprintln(os.Stderr, "either -symbol or -daemon is required")
			flag.Usage()
			os.Exit(2)
		}
		code := runOnce(ctx, col, *symbol, *timeframe, *start, *end, *src, *adjusted, logger)
		if code != 0 {
			logger.Sync()
			os.Exit(code)
		}
		return
	}

	var notify scheduler.Sender
	if cfg.TelegramEnabled() {
		notify = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
	}

	sched := scheduler.NewScheduler(ctx, col, notify, rec, cfg.Requests, cfg.Schedule.Parallel, logger)
	if err := sched.RegisterAll(cfg.Schedule.RefreshCron); err != nil {
		logger.Fatal("register cron tasks", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	if tn, ok := notify.(*notifier.TelegramNotifier); ok {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, refreshing watchlist now")
		go sched.RunNow()
	}

	logger.Info("backfill daemon running",
		zap.String("cron", cfg.Schedule.RefreshCron),
		zap.Int("watchlist", len(cfg.Schedule.Watchlist)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping")
	cancel()
}

func buildCollector(cfg *config.Config, rec recorder.Recorder, logger *zap.Logger) *collector.Collector {
	store := cache.NewStore(cfg.Data.CacheDir, cfg.Data.CacheTTL)
	opts := remote.Options{Cache: store, Logger: logger}

	vendors := map[model.SourceKind]source.Source{
		model.SourceTiingo:  remote.NewTiingo(vendorConfig(cfg.Vendors.Tiingo, cfg.Proxy), opts),
		model.SourcePolygon: remote.NewPolygon(vendorConfig(cfg.Vendors.Polygon, cfg.Proxy), opts),
	}
	priority, _ := cfg.Priority() // checked by Validate

	return collector.NewCollector(dataset.NewSource(cfg.Data.DatasetDir, logger), vendors, priority, rec, logger)
}

func vendorConfig(v config.Vendor, proxy string) remote.Config {
	return remote.Config{
		BaseURL:             v.BaseURL,
		APIKey:              v.APIKey,
		MaxChunkDays:        v.ChunkDays,
		Delay:               v.Delay,
		MaxNarrowSteps:      v.MaxNarrowSteps,
		MaxRateLimitRetries: v.RateLimitRetries(),
		RequestsPerMinute:   v.RequestsPerMinute,
		Timeout:             v.Timeout,
		Proxy:               proxy,
	}
}

func runOnce(ctx context.Context, col *collector.Collector, symbol, tf, start, end, src string, adjusted bool, logger *zap.Logger) int {
	timeframe, err := model.ParseTimeframe(tf)
	if err != nil {
		logger.Error("invalid -timeframe", zap.Error(err))
		return 2
	}
	kind, err := model.ParseSourceKind(src)
	if err != nil {
		logger.Error("invalid -source", zap.Error(err))
		return 2
	}
	req := model.NewDataRequest(symbol, timeframe, start, end)
	req.Source = kind
	req.Adjusted = adjusted

	list, res, err := col.Load(ctx, req)
	if err != nil {
		logger.Error("backfill failed", zap.String("request", req.String()), zap.Error(err))
		return 1
	}
	fmt.Printf("source=%s rows=%d window=%s..%s fetched=%t path=%s bars=%d\n",
		res.Source, res.Rows, res.Start, res.End, res.Fetched, res.Path, len(list))
	return 0
}
