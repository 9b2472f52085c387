// Package cache provides the in-process query result cache. It is advisory:
// callers must behave correctly when it is empty or cleared at any time.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTTL is how long an entry is served after it was written.
const DefaultTTL = 5 * time.Minute

// pruneEvery controls how many puts happen between sweeps of expired entries.
const pruneEvery = 256

type entry struct {
	value   any
	written time.Time
}

// Cache is a time boxed map of query results safe for concurrent use.
// Values are stored as given; callers that hand out mutable values must copy them.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	puts    int
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for write timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache whose entries expire ttl after being written.
// A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key, or false when missing or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.written) > c.ttl {
		record(telemetry.GetMetrics().CacheMissesTotal, key)
		return nil, false
	}

	record(telemetry.GetMetrics().CacheHitsTotal, key)
	return e.value, true
}

// Put stores value under key with the current time as its write timestamp.
func (c *Cache) Put(key string, value any) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{value: value, written: now}
	c.puts++
	if c.puts%pruneEvery == 0 {
		c.pruneLocked(now)
	}
}

// Invalidate removes every entry whose key contains pattern and returns how
// many were removed. An empty pattern clears the cache.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		telemetry.GetMetrics().CacheInvalidationsTotal.Add(context.Background(), int64(removed))
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet pruned.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) pruneLocked(now time.Time) {
	for key, e := range c.entries {
		if now.Sub(e.written) > c.ttl {
			delete(c.entries, key)
		}
	}
}

func record(counter metric.Int64Counter, key string) {
	op, _, _ := strings.Cut(key, keySeparator)
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("operation", op)))
}
