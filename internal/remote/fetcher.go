// Package remote implements the remote bar sources. Every vendor shares one
// engine: range clamping, the TTL cache, backward chunking with a fixed
// delay between requests, and per-status backoff. A dialect supplies the
// vendor-specific URL, auth header and payload mapping.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"MarketBackfill/internal/bars"
	"MarketBackfill/internal/cache"
	"MarketBackfill/internal/model"
	"MarketBackfill/internal/source"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultDelay spaces consecutive requests against one API key.
	DefaultDelay = 1100 * time.Millisecond
	// DefaultMaxNarrowSteps bounds how far a rejected window is shrunk.
	DefaultMaxNarrowSteps = 60
	defaultTimeout        = 30 * time.Second
)

// Config is the per-vendor tuning. A zero MaxRateLimitRetries retries 429s
// forever.
type Config struct {
	BaseURL             string
	APIKey              string
	MaxChunkDays        int
	Delay               time.Duration
	MaxNarrowSteps      int
	MaxRateLimitRetries int
	RequestsPerMinute   int
	Timeout             time.Duration
	Proxy               string
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options carries the collaborators a Fetcher needs. Zero values select
// production defaults.
type Options struct {
	Cache  *cache.Store
	Client *http.Client
	Sleep  SleepFunc
	Now    func() time.Time
	Logger *zap.Logger
}

// Fetcher is a remote source for one vendor. The API key is resolved once at
// construction; an empty Config.APIKey falls back to the vendor's env var.
type Fetcher struct {
	cfg     Config
	d       dialect
	cache   *cache.Store
	client  *http.Client
	limiter *rate.Limiter
	sleep   SleepFunc
	now     func() time.Time
	logger  *zap.Logger
}

func newFetcher(d dialect, cfg Config, opts Options) *Fetcher {
	cfg.APIKey = ResolveAPIKey(cfg.APIKey, d.envKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.baseURL
	}
	if cfg.MaxChunkDays <= 0 {
		cfg.MaxChunkDays = d.chunkDays
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.MaxNarrowSteps <= 0 {
		cfg.MaxNarrowSteps = DefaultMaxNarrowSteps
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	f := &Fetcher{
		cfg:    cfg,
		d:      d,
		cache:  opts.Cache,
		client: opts.Client,
		sleep:  opts.Sleep,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if f.client == nil {
		f.client = newHTTPClient(cfg.Timeout, cfg.Proxy)
	}
	if f.sleep == nil {
		f.sleep = SleepContext
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.logger = f.logger.With(zap.String("vendor", d.name))
	if cfg.RequestsPerMinute > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return f
}

func newHTTPClient(timeout time.Duration, proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// ResolveAPIKey prefers an explicit key and falls back to the environment.
func ResolveAPIKey(explicit, envVar string) string {
	if k := strings.TrimSpace(explicit); k != "" {
		return k
	}
	if envVar == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envVar))
}

// SleepContext is the production SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Fetcher) Name() string { return f.d.name }

// Policy reports how this vendor treats a non-array payload.
func (f *Fetcher) Policy() MalformedPolicy { return f.d.policy }

// LoadBars serves the request from the cache when fresh, otherwise downloads
// the clamped window chunk by chunk and refreshes the cache entry.
func (f *Fetcher) LoadBars(ctx context.Context, req model.DataRequest) ([]model.Bar, error) {
	if req.Start == "" || req.End == "" {
		return nil, fmt.Errorf("%s: %w: requires start and end", f.d.name, source.ErrConfiguration)
	}
	if f.cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w: API key missing (set %s)", f.d.name, source.ErrConfiguration, f.d.envKey)
	}
	rng, err := model.ResolveFetchRange(req, f.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", f.d.name, source.ErrConfiguration, err)
	}
	if rng.Empty() {
		f.logger.Debug("window lies in the future, nothing to fetch", zap.String("request", req.String()))
		return []model.Bar{}, nil
	}

	key := cache.KeyFor(f.d.name, req)
	if f.cache != nil {
		entry, fresh, ok, err := f.cache.Get(key)
		switch {
		case err != nil:
			f.logger.Warn("cache unreadable, refetching", zap.Error(err))
		case ok && fresh:
			f.logger.Debug("cache hit",
				zap.String("symbol", req.Symbol),
				zap.Time("fetchedAt", entry.FetchedAt))
			return bars.FilterForRequest(entry.Bars, req), nil
		}
	}

	fetched, err := f.fetchRange(ctx, req, rng)
	if err != nil {
		return nil, err
	}
	list := bars.Dedupe(bars.SortChronologically(fetched))
	if f.cache != nil {
		if _, err := f.cache.Put(key, list); err != nil {
			f.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	return bars.FilterForRequest(list, req), nil
}

func (f *Fetcher) fetchRange(ctx context.Context, req model.DataRequest, rng model.FetchRange) ([]model.Bar, error) {
	chunks := Chunks(rng, f.cfg.MaxChunkDays)
	f.logger.Info("fetching",
		zap.String("request", req.String()),
		zap.Int("chunks", len(chunks)))

	var out []model.Bar
	for i, c := range chunks {
		if i > 0 {
			if err := f.sleep(ctx, f.cfg.Delay); err != nil {
				return nil, err
			}
		}
		got, err := f.fetchChunk(ctx, req, c)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Symbol, c, err)
		}
		out = append(out, got...)
	}
	return out, nil
}

// fetchChunk retries one chunk according to the failure class: 429 sleeps
// and repeats, 400 pulls the end back one day at a time, everything else is
// final.
func (f *Fetcher) fetchChunk(ctx context.Context, req model.DataRequest, c Chunk) ([]model.Bar, error) {
	var rejected error
	narrowed, limited := 0, 0
	for {
		body, err := f.get(ctx, req, c)
		if err == nil {
			return f.normalize(body, req.Adjusted)
		}
		var herr *source.HTTPError
		if !errors.As(err, &herr) {
			return nil, err
		}
		switch herr.Status {
		case http.StatusTooManyRequests:
			limited++
			if f.cfg.MaxRateLimitRetries > 0 && limited > f.cfg.MaxRateLimitRetries {
				return nil, fmt.Errorf("gave up after %d rate-limited attempts: %w", limited, err)
			}
			f.logger.Warn("rate limited, backing off",
				zap.Int("attempt", limited),
				zap.Duration("delay", f.cfg.Delay))
			if err := f.sleep(ctx, f.cfg.Delay); err != nil {
				return nil, err
			}
		case http.StatusBadRequest:
			if rejected == nil {
				rejected = err
			}
			if narrowed >= f.cfg.MaxNarrowSteps {
				return nil, rejected
			}
			narrowed++
			c.End = c.End.AddDate(0, 0, -1)
			if c.End.Before(c.Start) {
				return nil, rejected
			}
			f.logger.Debug("window rejected, narrowing", zap.String("chunk", c.String()), zap.Int("step", narrowed))
		default:
			return nil, err
		}
	}
}

func (f *Fetcher) get(ctx context.Context, req model.DataRequest, c Chunk) ([]byte, error) {
	endpoint, err := f.d.endpoint(f.cfg.BaseURL, req, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", f.d.name, source.ErrConfiguration, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	f.d.authorize(httpReq, f.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", f.d.name, source.ErrTransientHTTP, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: read body: %w", f.d.name, source.ErrTransientHTTP, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &source.HTTPError{Vendor: f.d.name, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
