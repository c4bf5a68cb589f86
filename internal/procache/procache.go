// Package procache implements a generic process-wide, lock-free cache
// with TTL expiry. No other package in the repository uses it: the
// compile-db and manifest caches live in internal/ctxsvc as
// mutex-guarded maps. Entries are immutable once inserted — callers that
// need a fresh value call Invalidate rather than mutating in place.
//
// Grounded on the teacher's internal/cache (MetricsCache): a sync.Map per
// cache with atomic hit/miss counters and TTL-by-timestamp expiry,
// generalized from content/symbol/parser entries to generic (key, value)
// entries.
package procache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a lock-free, TTL'd cache over a uint64 key space (callers hash
// their own composite keys, e.g. with xxhash, before calling in).
type Cache[V any] struct {
	entries sync.Map // map[uint64]entry[V]
	ttl     int64    // nanoseconds; 0 means entries never expire

	hits   int64
	misses int64
}

type entry[V any] struct {
	value    V
	cachedAt int64
}

// New builds a Cache with the given TTL. A zero TTL means entries are
// immutable for the process lifetime (appropriate for compile-db and
// manifest entries, which only change via explicit Invalidate).
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{ttl: ttl.Nanoseconds()}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	var zero V
	raw, ok := c.entries.Load(key)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return zero, false
	}
	e := raw.(entry[V])
	if c.ttl > 0 && time.Now().UnixNano()-e.cachedAt > c.ttl {
		c.entries.Delete(key)
		atomic.AddInt64(&c.misses, 1)
		return zero, false
	}
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// Set inserts or replaces the value for key.
func (c *Cache[V]) Set(key uint64, value V) {
	c.entries.Store(key, entry[V]{value: value, cachedAt: time.Now().UnixNano()})
}

// Invalidate removes one key, used when a specific manifest/compile-db
// path is known to have changed.
func (c *Cache[V]) Invalidate(key uint64) {
	c.entries.Delete(key)
}

// InvalidateAll clears the entire cache.
func (c *Cache[V]) InvalidateAll() {
	c.entries.Range(func(k, _ any) bool {
		c.entries.Delete(k)
		return true
	})
}

// Stats reports cache hit/miss counters for observability.
func (c *Cache[V]) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
