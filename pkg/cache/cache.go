// Package cache provides a small thread-safe TTL cache.
package cache

import (
	"sync"
	"time"
)

// Observer receives lookup outcomes, e.g. a metrics collector.
type Observer interface {
	RecordCacheHit(name string)
	RecordCacheMiss(name string)
	UpdateCacheSize(name string, size int)
}

// Config configures cache behavior.
type Config struct {
	TTL     time.Duration // Time to live for entries
	MaxSize int           // Maximum number of entries, 0 means unbounded

	// Name labels the cache for the Observer.
	Name     string
	Observer Observer
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps keys to values that expire after a TTL.
//
// When MaxSize is reached the entry closest to expiry is evicted to make room.
type Cache[K comparable, V any] struct {
	config  Config
	entries map[K]*entry[V]
	mu      sync.RWMutex
	now     func() time.Time
}

// New creates a cache with the given configuration.
func New[K comparable, V any](config Config) *Cache[K, V] {
	return &Cache[K, V]{
		config:  config,
		entries: make(map[K]*entry[V]),
		now:     time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.get(key)
	if obs := c.config.Observer; obs != nil {
		if ok {
			obs.RecordCacheHit(c.config.Name)
		} else {
			obs.RecordCacheMiss(c.config.Name)
		}
	}
	return v, ok
}

func (c *Cache[K, V]) get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the configured TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.config.TTL)
}

// SetWithTTL stores value under key for ttl.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && c.config.MaxSize > 0 && len(c.entries) >= c.config.MaxSize {
		c.evictLocked()
	}
	c.entries[key] = &entry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	size := len(c.entries)
	c.mu.Unlock()

	if obs := c.config.Observer; obs != nil {
		obs.UpdateCacheSize(c.config.Name, size)
	}
}

// evictLocked drops expired entries, or the one expiring soonest if none are.
func (c *Cache[K, V]) evictLocked() {
	now := c.now()
	var (
		oldestKey  K
		oldestTime time.Time
		first      = true
		removed    bool
	)
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed = true
			continue
		}
		if first || e.expiresAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.expiresAt
			first = false
		}
	}
	if !removed && !first {
		delete(c.entries, oldestKey)
	}
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V])
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
