// Package cache provides a process-wide TTL cache with a defined lifecycle.
// Entries expire on read and a background sweeper bounds growth for keys
// that stop being accessed.
package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe map of string keys to values with per-entry
// expiry. The zero value is not usable; create one with New.
type Cache[V any] struct {
	entries *xsync.MapOf[string, entry[V]]
	done    chan struct{}
}

// New creates a cache. If sweepInterval is positive, a background goroutine
// removes expired entries at that interval until Close is called.
func New[V any](sweepInterval time.Duration) *Cache[V] {
	c := &Cache[V]{
		entries: xsync.NewMapOf[string, entry[V]](),
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweep(sweepInterval)
	}
	return c
}

// Get returns the value for key if present and not expired.
// Expired entries are deleted on access.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.entries.Load(key)
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.entries.Delete(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.entries.Store(key, entry[V]{value: value, expiresAt: time.Now().Add(ttl)})
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.entries.Delete(key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	return c.entries.Size()
}

// Close stops the background sweeper.
func (c *Cache[V]) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Cache[V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.entries.Range(func(key string, e entry[V]) bool {
				if now.After(e.expiresAt) {
					c.entries.Delete(key)
				}
				return true
			})
		}
	}
}
