// Package resultcache is a process-wide, content-addressed cache of
// DebateResults: SHA-256 keys over a canonical request description,
// oldest-first eviction at capacity, context-aware invalidation
// (time, project state, confidence, user bypass, dependency change),
// and optional persistence to a flat file and/or a Redis mirror.
package resultcache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/domain"
)

// persistedFile is the on-disk shape written atomically on every
// store when persistence is enabled.
type persistedFile struct {
	Entries map[string]Entry `json:"entries"`
	Stats   Stats            `json:"stats"`
}

// Cache is the process-wide result cache. Concurrent readers are
// permitted; writes take an exclusive lock. Readers always get deep
// copies, never aliases into stored entries.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	maxEntries  int
	invalidator *Invalidator

	persistPath string
	mirror      *RedisMirror

	stats Stats
	log   *logrus.Entry
}

// New builds a Cache. persistPath may be empty to disable file
// persistence; mirror may be nil to disable the Redis mirror.
func New(maxEntries int, invalidator *Invalidator, persistPath string, mirror *RedisMirror, log *logrus.Entry) *Cache {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Cache{
		entries:     make(map[string]Entry),
		maxEntries:  maxEntries,
		invalidator: invalidator,
		persistPath: persistPath,
		mirror:      mirror,
		log:         log.WithField("component", "resultcache"),
	}
	if persistPath != "" {
		if err := c.loadFromDisk(); err != nil {
			c.log.WithError(err).Warn("failed to load persisted cache, starting empty")
		}
	}
	return c
}

// Lookup consults the invalidator; on a valid hit it returns a deep
// copy of the stored result with FromCache=true and updates stats.
func (c *Cache) Lookup(ctx context.Context, key string, current Context) (domain.DebateResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok && c.mirror != nil {
		// Warm the in-memory map from the mirror so a restarted
		// process (or a sibling instance's store) still hits.
		mirrored, found, err := c.mirror.Get(ctx, key)
		if err != nil {
			c.log.WithError(err).Warn("redis mirror lookup failed")
		} else if found {
			entry, ok = mirrored, true
			c.mu.Lock()
			if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
				c.evictOldestLocked()
			}
			c.entries[key] = mirrored
			c.mu.Unlock()
		}
	}

	if !ok {
		c.recordMiss()
		return domain.DebateResult{}, false
	}

	if invalid, reasons := c.invalidator.ShouldInvalidate(entry, current, time.Now()); invalid {
		c.log.WithField("reasons", reasons).Debug("cache entry invalidated on lookup")
		c.mu.Lock()
		delete(c.entries, key)
		c.stats.Invalidations++
		c.mu.Unlock()
		c.recordMiss()
		return domain.DebateResult{}, false
	}

	result := deepCopyResult(entry.Result)
	result.FromCache = true
	result.CachedAt = entry.StoredAt

	c.mu.Lock()
	c.stats.Hits++
	c.stats.TokensSaved += entry.EstimatedTokens
	c.stats.CostSavedDollars += entry.EstimatedCostDollars
	c.mu.Unlock()

	return result, true
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}

// Store inserts or replaces entry under key, evicting the oldest
// entry (by StoredAt) if the cache is at capacity, then persists if
// configured.
func (c *Cache) Store(ctx context.Context, key string, entry Entry) {
	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry
	c.stats.Stores++
	c.mu.Unlock()

	if c.persistPath != "" {
		if err := c.saveToDisk(); err != nil {
			c.log.WithError(err).Warn("failed to persist cache to disk")
		}
	}
	if c.mirror != nil {
		if err := c.mirror.Set(ctx, key, entry, 0); err != nil {
			c.log.WithError(err).Warn("failed to mirror cache entry to redis")
		}
	}
}

// evictOldestLocked drops the entry with the smallest StoredAt. Caller
// must hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.StoredAt.Before(oldestAt) {
			oldestKey, oldestAt, first = k, e.StoredAt, false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// RecordProjectState scans workdir and records its current state as
// the baseline the projectChanged trigger compares against. No-op when
// no tracker is configured.
func (c *Cache) RecordProjectState(workdir string) {
	if c.invalidator == nil || c.invalidator.Tracker == nil {
		return
	}
	c.invalidator.Tracker.Record(workdir, ScanProjectState(workdir))
}

// ObserveResponseTime records a completed request's wall time against
// the hit or fresh running average.
func (c *Cache) ObserveResponseTime(fromCache bool, ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fromCache {
		c.stats.HitResponseTotalMs += ms
		c.stats.HitResponseCount++
		return
	}
	c.stats.FreshResponseTotalMs += ms
	c.stats.FreshResponseCount++
}

// InvalidateKeys drops the given keys, returning how many were
// present. Used by event/tag-driven invalidation strategies.
func (c *Cache) InvalidateKeys(keys ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for _, k := range keys {
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			c.stats.Invalidations++
			dropped++
		}
	}
	return dropped
}

// ApplyEvent runs strategy over event and drops every key it returns.
func (c *Cache) ApplyEvent(strategy InvalidationStrategy, event InvalidationEvent) int {
	return c.InvalidateKeys(strategy.ShouldInvalidate(event)...)
}

// Stats returns a snapshot of the cache's effectiveness counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Len reports the current number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep runs ShouldInvalidate over every stored entry against a
// per-entry Context builder, dropping any that fail. Intended for a
// periodic background scan.
func (c *Cache) Sweep(ctxFor func(Entry) Context) int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, entry := range c.entries {
		if invalid, _ := c.invalidator.ShouldInvalidate(entry, ctxFor(entry), now); invalid {
			delete(c.entries, key)
			c.stats.Invalidations++
			dropped++
		}
	}
	return dropped
}

func (c *Cache) saveToDisk() error {
	c.mu.RLock()
	snapshot := persistedFile{
		Entries: make(map[string]Entry, len(c.entries)),
		Stats:   c.stats,
	}
	for k, v := range c.entries {
		snapshot.Entries[k] = v
	}
	c.mu.RUnlock()

	buf, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.persistPath)
	tmp, err := os.CreateTemp(dir, ".resultcache-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, c.persistPath)
}

func (c *Cache) loadFromDisk() error {
	buf, err := os.ReadFile(c.persistPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var snapshot persistedFile
	if err := json.Unmarshal(buf, &snapshot); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snapshot.Entries != nil {
		c.entries = snapshot.Entries
	}
	c.stats = snapshot.Stats
	return nil
}

func deepCopyResult(r domain.DebateResult) domain.DebateResult {
	buf, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var out domain.DebateResult
	if err := json.Unmarshal(buf, &out); err != nil {
		return r
	}
	return out
}
