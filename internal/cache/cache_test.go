package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"MarketBackfill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestEntryPath_IgnoresWindow(t *testing.T) {
	a := model.NewDataRequest("AAPL", model.Timeframe1d, "2024-01-01", "2024-01-31")
	b := model.NewDataRequest("AAPL", model.Timeframe1d, "2020-06-01", "2023-12-31")
	assert.Equal(t, EntryPath("c", KeyFor("tiingo", a)), EntryPath("c", KeyFor("tiingo", b)))

	b.Adjusted = false
	assert.NotEqual(t, EntryPath("c", KeyFor("tiingo", a)), EntryPath("c", KeyFor("tiingo", b)))
	assert.NotEqual(t, EntryPath("c", KeyFor("tiingo", a)), EntryPath("c", KeyFor("polygon", a)))
	assert.Equal(t, filepath.Join("c", "tiingo", "aapl_1d_adj.json"), EntryPath("c", KeyFor("tiingo", a)))
}

func TestStore_PutGetFreshness(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(t.TempDir(), time.Hour)
	s.Now = clock.Now
	key := Key{Vendor: "polygon", Symbol: "MSFT", Timeframe: model.Timeframe1h, Adjusted: true}

	_, _, ok, err := s.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	list := []model.Bar{{Timestamp: "2024-04-30T14:00:00Z", Open: 1, High: 2, Low: 1, Close: 2, Volume: 5}}
	entry, err := s.Put(key, list)
	require.NoError(t, err)
	assert.Equal(t, clock.t, entry.FetchedAt)

	clock.t = clock.t.Add(30 * time.Minute)
	got, fresh, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fresh)
	assert.Equal(t, list, got.Bars)

	clock.t = clock.t.Add(31 * time.Minute)
	_, fresh, ok, err = s.Get(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, fresh)
}

func TestStore_CorruptEntry(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	assert.Equal(t, DefaultTTL, s.TTL)
	key := Key{Vendor: "tiingo", Symbol: "X", Timeframe: model.Timeframe1d}
	path := EntryPath(s.Dir, key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, _, err := s.Get(key)
	assert.Error(t, err)
}
