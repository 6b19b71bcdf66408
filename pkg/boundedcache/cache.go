// Package boundedcache provides a thread-safe, size-bounded cache with
// FIFO bulk eviction. Each analyzer owns one cache keyed by content
// fingerprints; when an insert pushes the cache past its maximum size, the
// oldest ~30% of entries are dropped in a single pass. Entries may also
// carry a TTL checked on read.
//
// Example usage:
//
//	cache := boundedcache.New[*engine.SemanticProfile](500, 0)
//	cache.Put(fingerprint, profile)
//	profile, ok := cache.Get(fingerprint)
package boundedcache

import (
	"sync"
	"time"
)

// evictFraction is the share of entries dropped when the cache overflows.
const evictFraction = 0.3

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a mutex-guarded map with insertion-order tracking. The zero
// value is not usable; construct with New.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	order   []string
	max     int
	ttl     time.Duration
	metrics *Metrics
}

// New creates a cache holding at most maxEntries values. A ttl of zero
// disables expiry.
func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		max:     maxEntries,
		ttl:     ttl,
	}
}

// SetMetrics attaches optional metric instrumentation. Call once, before
// the cache is shared across goroutines.
func (c *Cache[V]) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Get returns the cached value for key. Expired entries are removed and
// reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	m := c.metrics
	c.mu.RUnlock()

	if !ok {
		if m != nil {
			m.recordMiss()
		}
		var zero V
		return zero, false
	}

	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
		if m != nil {
			m.recordMiss()
		}
		var zero V
		return zero, false
	}

	if m != nil {
		m.recordHit()
	}
	return e.value, true
}

// Put stores a value. If the insert pushes the cache past its maximum, the
// oldest ~30% of entries are evicted in one pass, so the size briefly
// exceeds the maximum by at most the one pending insert.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeFromOrder(key)
	}
	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.order = append(c.order, key)

	if len(c.entries) > c.max {
		c.evictOldest()
	}
	if c.metrics != nil {
		c.metrics.setSize(len(c.entries))
	}
}

// Len returns the current number of entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
	c.order = nil
	if c.metrics != nil {
		c.metrics.setSize(0)
	}
}

// evictOldest drops the oldest evictFraction of entries. Caller must hold
// the write lock.
func (c *Cache[V]) evictOldest() {
	n := int(float64(len(c.order))*evictFraction + 0.999)
	if n < 1 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = append([]string(nil), c.order[n:]...)
	if c.metrics != nil {
		c.metrics.recordEvictions(n)
	}
}

// removeFromOrder deletes key from the insertion-order slice. Caller must
// hold the write lock.
func (c *Cache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
