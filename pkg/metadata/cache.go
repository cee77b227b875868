// Package metadata provides cached catalog/database/table/column lookups,
// issued as SQL statements through the execution engine.
package metadata

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/streamsql/workbench/pkg/infrastructure/metrics"
)

// DefaultTTL is how long a cache entry stays fresh. Entries can also be
// evicted explicitly, which the DDL-refresh path relies on.
const DefaultTTL = 60 * time.Second

// FetchFunc loads the value for a cache key.
type FetchFunc func(ctx context.Context) (interface{}, error)

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a keyed TTL cache with request de-duplication: concurrent callers
// for the same uncached key share one in-flight fetch. A failed fetch leaves
// no entry behind, so the next call retries instead of caching the failure.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	group   singleflight.Group
	metrics metrics.Collector
}

// NewCache creates a cache with the given TTL; zero means DefaultTTL.
func NewCache(ttl time.Duration, collector metrics.Collector) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		metrics: collector,
	}
}

// GetOrFetch returns the cached value for key, fetching it if absent or
// expired. Concurrent calls for the same key issue exactly one fetch.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (interface{}, error) {
	if value, ok := c.lookup(key); ok {
		c.metrics.IncrementCounter("workbench_metadata_cache_hits_total")
		return value, nil
	}
	c.metrics.IncrementCounter("workbench_metadata_cache_misses_total")

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have filled the entry while this one was
		// waiting on the flight group.
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (c *Cache) lookup(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *Cache) store(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// Invalidate evicts one key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear evicts everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
