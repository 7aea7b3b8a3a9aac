package resultcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

func newTestCache(persistPath string) *Cache {
	inv := NewInvalidator(24*time.Hour, 0.0, nil)
	return New(2, inv, persistPath, nil, nil)
}

func TestCache_MissOnEmptyCache(t *testing.T) {
	c := newTestCache("")
	_, ok := c.Lookup(context.Background(), "missing", Context{})
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCache_StoreThenHit(t *testing.T) {
	c := newTestCache("")
	entry := Entry{
		Result:             domain.DebateResult{FinalText: "the answer"},
		StoredAt:           time.Now(),
		ObservedConfidence: 0.9,
	}
	c.Store(context.Background(), "k1", entry)

	result, ok := c.Lookup(context.Background(), "k1", Context{})
	require.True(t, ok)
	assert.Equal(t, "the answer", result.FinalText)
	assert.True(t, result.FromCache)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestCache_InvalidEntryEvictedOnLookup(t *testing.T) {
	inv := NewInvalidator(time.Millisecond, 0.0, nil)
	c := New(10, inv, "", nil, nil)
	c.Store(context.Background(), "k1", Entry{StoredAt: time.Now().Add(-time.Hour)})

	time.Sleep(2 * time.Millisecond)
	_, ok := c.Lookup(context.Background(), "k1", Context{})
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsOldestWhenAtCapacity(t *testing.T) {
	c := newTestCache("")
	now := time.Now()
	c.Store(context.Background(), "oldest", Entry{StoredAt: now.Add(-time.Hour), ObservedConfidence: 1})
	c.Store(context.Background(), "newer", Entry{StoredAt: now, ObservedConfidence: 1})
	c.Store(context.Background(), "newest", Entry{StoredAt: now.Add(time.Hour), ObservedConfidence: 1})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Lookup(context.Background(), "oldest", Context{})
	assert.False(t, ok)
}

func TestCache_PersistsAndReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	c1 := New(10, NewInvalidator(24*time.Hour, 0.0, nil), path, nil, nil)
	c1.Store(context.Background(), "k1", Entry{
		Result:             domain.DebateResult{FinalText: "persisted"},
		StoredAt:           time.Now(),
		ObservedConfidence: 0.9,
	})

	c2 := New(10, NewInvalidator(24*time.Hour, 0.0, nil), path, nil, nil)
	result, ok := c2.Lookup(context.Background(), "k1", Context{})
	require.True(t, ok)
	assert.Equal(t, "persisted", result.FinalText)
}

func TestCache_SweepDropsInvalidEntries(t *testing.T) {
	inv := NewInvalidator(time.Millisecond, 0.0, nil)
	c := New(10, inv, "", nil, nil)
	c.Store(context.Background(), "k1", Entry{StoredAt: time.Now().Add(-time.Hour)})

	dropped := c.Sweep(func(Entry) Context { return Context{} })
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, c.Len())
}

func TestCache_ApplyEventDropsMatchingKeys(t *testing.T) {
	c := New(10, NewInvalidator(24*time.Hour, 0.0, nil), "", nil, nil)
	c.Store(context.Background(), "a", Entry{StoredAt: time.Now(), ObservedConfidence: 1})
	c.Store(context.Background(), "b", Entry{StoredAt: time.Now(), ObservedConfidence: 1})

	ed := NewEventDrivenInvalidation()
	dropped := c.ApplyEvent(ed, InvalidationEvent{Type: "workdir-changed", Keys: []string{"a", "nonexistent"}})
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Stats().Invalidations)
}

func TestCache_ObserveResponseTimeTracksHitAndFreshAverages(t *testing.T) {
	c := newTestCache("")
	c.ObserveResponseTime(true, 10)
	c.ObserveResponseTime(true, 30)
	c.ObserveResponseTime(false, 1000)

	stats := c.Stats()
	assert.Equal(t, 20.0, stats.AvgHitResponseMs())
	assert.Equal(t, 1000.0, stats.AvgFreshResponseMs())
}
