// Package cache holds the most recent aggregation result for a fixed window.
package cache

import (
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/catalog-aggregator/internal/config"
	"github.com/stacklok/catalog-aggregator/internal/sources"
)

// Entry is one stored aggregation result and the time it was produced
type Entry struct {
	Result    []sources.ResolvedSource
	Timestamp time.Time
}

// ResultCache keeps the last aggregation result until it is older than its TTL.
// Entries are replaced whole; readers never see a partially written entry.
type ResultCache struct {
	ttl   time.Duration
	clock clock.PassiveClock
	entry atomic.Pointer[Entry]
}

// Option configures a ResultCache
type Option func(*ResultCache)

// WithClock sets the clock used to timestamp and age entries
func WithClock(c clock.PassiveClock) Option {
	return func(rc *ResultCache) {
		rc.clock = c
	}
}

// New creates an empty cache. A non-positive ttl uses config.DefaultCacheTTL.
func New(ttl time.Duration, opts ...Option) *ResultCache {
	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}
	rc := &ResultCache{
		ttl:   ttl,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// TTL returns the validity window of an entry
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached result, or false when the cache is empty or the
// entry is older than the TTL. Expired entries are left in place.
func (c *ResultCache) Get() ([]sources.ResolvedSource, bool) {
	e := c.entry.Load()
	if e == nil || c.clock.Since(e.Timestamp) > c.ttl {
		return nil, false
	}
	return e.Result, true
}

// Set replaces the cached entry with result, timestamped now
func (c *ResultCache) Set(result []sources.ResolvedSource) {
	c.entry.Store(&Entry{
		Result:    result,
		Timestamp: c.clock.Now(),
	})
}

// Peek returns the current entry regardless of age, or nil
func (c *ResultCache) Peek() *Entry {
	return c.entry.Load()
}
