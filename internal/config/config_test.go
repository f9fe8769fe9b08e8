package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"MarketBackfill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TIINGO_API_KEY", "TIINGO_BASE_URL",
		"POLYGON_API_KEY", "POLYGON_BASE_URL", "BACKFILL_DATA_DIR", "BACKFILL_CACHE_DIR",
		"SQLITE_PATH", "LOG_LEVEL", "HTTPS_PROXY", "CRON_REFRESH", "BACKFILL_PARALLEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "data/datasets", cfg.Data.DatasetDir)
	assert.Equal(t, time.Hour, cfg.Data.CacheTTL)
	assert.Equal(t, []string{"tiingo", "polygon"}, cfg.Fallback)
	assert.Equal(t, 365, cfg.Vendors.Tiingo.ChunkDays)
	assert.Equal(t, 30, cfg.Vendors.Polygon.ChunkDays)
	assert.Equal(t, 1100*time.Millisecond, cfg.Vendors.Polygon.Delay)
	assert.Equal(t, 60, cfg.Vendors.Tiingo.MaxNarrowSteps)
	assert.Equal(t, 30, cfg.Vendors.Tiingo.RateLimitRetries())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.TelegramEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_ZeroRateLimitRetriesIsUnbounded(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
vendors:
  tiingo:
    max_rate_limit_retries: 0
  polygon:
    max_rate_limit_retries: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Vendors.Tiingo.RateLimitRetries())
	assert.Equal(t, 5, cfg.Vendors.Polygon.RateLimitRetries())
	assert.Zero(t, Vendor{}.RateLimitRetries())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
data:
  dataset_dir: /srv/datasets
  cache_ttl: 30m
vendors:
  tiingo:
    api_key: from-file
    delay: 2s
  polygon:
    chunk_days: 10
fallback: [polygon, tiingo]
schedule:
  refresh_cron: "0 0 6 * * *"
  watchlist:
    - symbol: SPY
    - symbol: QQQ
      timeframe: 1h
      lookback_days: 30
      source: polygon
      adjusted: false
`)
	t.Setenv("TIINGO_API_KEY", "from-env")
	t.Setenv("BACKFILL_CACHE_DIR", "/tmp/cache")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/srv/datasets", cfg.Data.DatasetDir)
	assert.Equal(t, "/tmp/cache", cfg.Data.CacheDir)
	assert.Equal(t, 30*time.Minute, cfg.Data.CacheTTL)
	assert.Equal(t, "from-env", cfg.Vendors.Tiingo.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Vendors.Tiingo.Delay)
	assert.Equal(t, 10, cfg.Vendors.Polygon.ChunkDays)
	assert.Equal(t, "0 0 6 * * *", cfg.Schedule.RefreshCron)

	prio, err := cfg.Priority()
	require.NoError(t, err)
	assert.Equal(t, []model.SourceKind{model.SourcePolygon, model.SourceTiingo}, prio)

	reqs, err := cfg.Requests(time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, model.DataRequest{
		Source: model.SourceAuto, Symbol: "SPY", Timeframe: model.Timeframe1d,
		Start: "2023-04-01", End: "2024-03-31", Adjusted: true,
	}, reqs[0])
	assert.Equal(t, model.DataRequest{
		Source: model.SourcePolygon, Symbol: "QQQ", Timeframe: model.Timeframe1h,
		Start: "2024-03-01", End: "2024-03-31", Adjusted: false,
	}, reqs[1])
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "data: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown fallback vendor", "fallback: [tiingo, yahoo]", `unknown source "yahoo"`},
		{"local in fallback", "fallback: [local]", "not a remote vendor"},
		{"half telegram", "telegram:\n  bot_token: abc", "must be set together"},
		{"watchlist without symbol", "schedule:\n  watchlist:\n    - timeframe: 1d", "symbol is required"},
		{"bad watchlist timeframe", "schedule:\n  watchlist:\n    - symbol: SPY\n      timeframe: 4h", "unsupported timeframe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.body))
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
