// Package cache provides a generic in-memory TTL cache with bounded size.
package cache

import (
	"context"
	"sync"
	"time"
)

const defaultMaxEntries = 10_000

type entry[V any] struct {
	value     V
	expiresAt time.Time
	storedAt  time.Time
}

// Cache is a concurrency-safe TTL cache. Entries are replaced atomically per
// key, readers never block on the janitor, and the entry count is bounded:
// when full, the entry closest to expiry is evicted to make room.
type Cache[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]entry[V]
	maxEntries int
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a Cache whose janitor sweeps expired entries every cleanupInterval.
func New[K comparable, V any](cleanupInterval time.Duration) *Cache[K, V] {
	return NewWithSize[K, V](cleanupInterval, defaultMaxEntries)
}

// NewWithSize creates a Cache bounded to maxEntries.
func NewWithSize[K comparable, V any](cleanupInterval time.Duration, maxEntries int) *Cache[K, V] {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	c := &Cache[K, V]{
		entries:    make(map[K]entry[V]),
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}

	go c.janitor(cleanupInterval)

	return c
}

// Get returns the value stored under key if present and not expired.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetWithAge returns the value and how long ago it was stored. Callers use the
// age to downgrade confidence on stale data instead of treating it as a miss.
func (c *Cache[K, V]) GetWithAge(ctx context.Context, key K) (V, time.Duration, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, 0, false
	}
	return e.value, time.Since(e.storedAt), true
}

// Set stores value under key for ttl, replacing any existing entry.
func (c *Cache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictSoonestLocked()
	}

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: now.Add(ttl),
		storedAt:  now,
	}
}

// Delete removes key from the cache.
func (c *Cache[K, V]) Delete(ctx context.Context, key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the janitor goroutine.
func (c *Cache[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// evictSoonestLocked drops the entry closest to expiry. Caller holds mu.
func (c *Cache[K, V]) evictSoonestLocked() {
	var (
		victim K
		oldest time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(oldest) {
			victim, oldest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

func (c *Cache[K, V]) janitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
