package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"MarketBackfill/internal/model"

	"gopkg.in/yaml.v3"
)

// Vendor is the tuning for one remote source.
type Vendor struct {
	BaseURL             string        `yaml:"base_url"`
	APIKey              string        `yaml:"api_key"`
	ChunkDays           int           `yaml:"chunk_days"`
	Delay               time.Duration `yaml:"delay"`
	MaxNarrowSteps      int           `yaml:"max_narrow_steps"`
	MaxRateLimitRetries *int          `yaml:"max_rate_limit_retries"`
	RequestsPerMinute   int           `yaml:"requests_per_minute"`
	Timeout             time.Duration `yaml:"timeout"`
}

// WatchItem is one series the scheduled refresh keeps current.
type WatchItem struct {
	Symbol       string `yaml:"symbol"`
	Timeframe    string `yaml:"timeframe"`
	LookbackDays int    `yaml:"lookback_days"`
	Source       string `yaml:"source"`
	Adjusted     *bool  `yaml:"adjusted"`
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Data struct {
		DatasetDir string        `yaml:"dataset_dir"`
		CacheDir   string        `yaml:"cache_dir"`
		CacheTTL   time.Duration `yaml:"cache_ttl"`
	} `yaml:"data"`
	Vendors struct {
		Tiingo  Vendor `yaml:"tiingo"`
		Polygon Vendor `yaml:"polygon"`
	} `yaml:"vendors"`
	Fallback []string `yaml:"fallback"`
	Schedule struct {
		RefreshCron string      `yaml:"refresh_cron"`
		Parallel    int         `yaml:"parallel"`
		Watchlist   []WatchItem `yaml:"watchlist"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	overrides := []struct {
		env    string
		target *string
	}{
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken},
		{"TELEGRAM_CHAT_ID", &cfg.Telegram.ChatID},
		{"TIINGO_API_KEY", &cfg.Vendors.Tiingo.APIKey},
		{"TIINGO_BASE_URL", &cfg.Vendors.Tiingo.BaseURL},
		{"POLYGON_API_KEY", &cfg.Vendors.Polygon.APIKey},
		{"POLYGON_BASE_URL", &cfg.Vendors.Polygon.BaseURL},
		{"BACKFILL_DATA_DIR", &cfg.Data.DatasetDir},
		{"BACKFILL_CACHE_DIR", &cfg.Data.CacheDir},
		{"SQLITE_PATH", &cfg.Database.SQLitePath},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"HTTPS_PROXY", &cfg.Proxy},
		{"CRON_REFRESH", &cfg.Schedule.RefreshCron},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
	if v := os.Getenv("BACKFILL_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Schedule.Parallel = n
		}
	}

	// Defaults
	if cfg.Data.DatasetDir == "" {
		cfg.Data.DatasetDir = "data/datasets"
	}
	if cfg.Data.CacheDir == "" {
		cfg.Data.CacheDir = "data/cache"
	}
	if cfg.Data.CacheTTL == 0 {
		cfg.Data.CacheTTL = time.Hour
	}
	if len(cfg.Fallback) == 0 {
		cfg.Fallback = []string{string(model.SourceTiingo), string(model.SourcePolygon)}
	}
	vendorDefaults(&cfg.Vendors.Tiingo, 365)
	vendorDefaults(&cfg.Vendors.Polygon, 30)
	if cfg.Schedule.RefreshCron == "" {
		cfg.Schedule.RefreshCron = "0 30 22 * * 1-5"
	}
	if cfg.Schedule.Parallel == 0 {
		cfg.Schedule.Parallel = 2
	}
	for i := range cfg.Schedule.Watchlist {
		w := &cfg.Schedule.Watchlist[i]
		if w.Timeframe == "" {
			w.Timeframe = string(model.Timeframe1d)
		}
		if w.LookbackDays == 0 {
			w.LookbackDays = 365
		}
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/backfill.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

func vendorDefaults(v *Vendor, chunkDays int) {
	if v.ChunkDays == 0 {
		v.ChunkDays = chunkDays
	}
	if v.Delay == 0 {
		v.Delay = 1100 * time.Millisecond
	}
	if v.MaxNarrowSteps == 0 {
		v.MaxNarrowSteps = 60
	}
	if v.MaxRateLimitRetries == nil {
		retries := 30
		v.MaxRateLimitRetries = &retries
	}
	if v.Timeout == 0 {
		v.Timeout = 30 * time.Second
	}
}

// RateLimitRetries is the 429 retry cap; an explicit 0 means unbounded.
func (v Vendor) RateLimitRetries() int {
	if v.MaxRateLimitRetries == nil {
		return 0
	}
	return *v.MaxRateLimitRetries
}

// Priority returns the parsed fallback order.
func (c *Config) Priority() ([]model.SourceKind, error) {
	out := make([]model.SourceKind, 0, len(c.Fallback))
	for _, name := range c.Fallback {
		kind, err := model.ParseSourceKind(name)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		if !kind.Remote() {
			return nil, fmt.Errorf("fallback: %q is not a remote vendor", name)
		}
		out = append(out, kind)
	}
	return out, nil
}

// Requests expands the watchlist into requests ending on now's UTC day.
func (c *Config) Requests(now time.Time) ([]model.DataRequest, error) {
	end := now.UTC()
	out := make([]model.DataRequest, 0, len(c.Schedule.Watchlist))
	for _, w := range c.Schedule.Watchlist {
		tf, err := model.ParseTimeframe(w.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("watchlist %s: %w", w.Symbol, err)
		}
		src, err := model.ParseSourceKind(w.Source)
		if err != nil {
			return nil, fmt.Errorf("watchlist %s: %w", w.Symbol, err)
		}
		req := model.NewDataRequest(w.Symbol, tf,
			model.FormatDate(end.AddDate(0, 0, -w.LookbackDays)), model.FormatDate(end))
		req.Source = src
		if w.Adjusted != nil {
			req.Adjusted = *w.Adjusted
		}
		out = append(out, req)
	}
	return out, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Data.DatasetDir == "" {
		return fmt.Errorf("data.dataset_dir is required")
	}
	if c.Data.CacheTTL < 0 {
		return fmt.Errorf("data.cache_ttl must not be negative")
	}
	if _, err := c.Priority(); err != nil {
		return err
	}
	if c.Vendors.Tiingo.ChunkDays < 1 || c.Vendors.Polygon.ChunkDays < 1 {
		return fmt.Errorf("vendors.*.chunk_days must be at least 1")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	for _, w := range c.Schedule.Watchlist {
		if w.Symbol == "" {
			return fmt.Errorf("schedule.watchlist: symbol is required")
		}
		if w.LookbackDays < 0 {
			return fmt.Errorf("schedule.watchlist %s: lookback_days must not be negative", w.Symbol)
		}
	}
	if _, err := c.Requests(time.Now()); err != nil {
		return err
	}
	return nil
}

// TelegramEnabled reports whether notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
