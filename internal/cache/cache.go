// Package cache keeps the last full vendor download per series on disk.
//
// Entries are keyed by vendor, symbol, timeframe and adjustment only. The
// requested date window is deliberately not part of the key, so one entry
// answers any window for the series until it goes stale. There is no locking:
// two writers for the same key race and the last rename wins, which is
// harmless because the content for a given day does not change.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"MarketBackfill/internal/bars"
	"MarketBackfill/internal/model"
)

// DefaultTTL is how long a download stays fresh.
const DefaultTTL = time.Hour

// Key identifies one cached series.
type Key struct {
	Vendor    string
	Symbol    string
	Timeframe model.Timeframe
	Adjusted  bool
}

// KeyFor builds the cache key of a request for vendor.
func KeyFor(vendor string, req model.DataRequest) Key {
	return Key{Vendor: vendor, Symbol: req.Symbol, Timeframe: req.Timeframe, Adjusted: req.Adjusted}
}

// EntryPath returns the document path for key under dir.
func EntryPath(dir string, key Key) string {
	adj := "raw"
	if key.Adjusted {
		adj = "adj"
	}
	name := fmt.Sprintf("%s_%s_%s.json", bars.Slug(key.Symbol), bars.Slug(string(key.Timeframe)), adj)
	return filepath.Join(dir, bars.Slug(key.Vendor), name)
}

// Store reads and writes cache documents under Dir.
type Store struct {
	Dir string
	TTL time.Duration
	Now func() time.Time
}

// NewStore creates a store; ttl <= 0 selects DefaultTTL.
func NewStore(dir string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{Dir: dir, TTL: ttl, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Get returns the entry for key and whether it is still fresh. A missing
// entry is reported as ok=false with no error; an unreadable one is an error.
func (s *Store) Get(key Key) (entry model.CacheEntry, fresh bool, ok bool, err error) {
	data, err := os.ReadFile(EntryPath(s.Dir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.CacheEntry{}, false, false, nil
		}
		return model.CacheEntry{}, false, false, fmt.Errorf("read cache: %w", err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.CacheEntry{}, false, false, fmt.Errorf("decode cache: %w", err)
	}
	return entry, entry.Fresh(s.now(), s.TTL), true, nil
}

// Put overwrites the entry for key, stamping it with the current time.
func (s *Store) Put(key Key, list []model.Bar) (model.CacheEntry, error) {
	if list == nil {
		list = []model.Bar{}
	}
	entry := model.CacheEntry{FetchedAt: s.now().UTC(), Bars: list}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return model.CacheEntry{}, err
	}
	path := EntryPath(s.Dir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return model.CacheEntry{}, fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*.json")
	if err != nil {
		return model.CacheEntry{}, fmt.Errorf("create cache temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return model.CacheEntry{}, fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return model.CacheEntry{}, fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return model.CacheEntry{}, fmt.Errorf("replace cache: %w", err)
	}
	return entry, nil
}
