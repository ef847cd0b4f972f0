package listener

import (
	"sync"
	"time"
)

// Cache is the out-of-scope keyspace-notification cache boundary: Set
// establishes a key with a TTL, Refresh extends it, and Expired emits
// the key once its TTL lapses without being refreshed. A production
// deployment wires a Redis-like cache with real keyspace notifications;
// ttlCache below is a faithful in-process implementation for this
// process's own use and for tests.
type Cache interface {
	Set(key string, ttl time.Duration)
	Refresh(key string)
	Expired() <-chan string
}

type ttlEntry struct {
	deadline time.Time
	ttl      time.Duration
}

// ttlCache is an in-process TTL cache: a sweep goroutine checks for
// lapsed entries on a fixed tick and emits them on expired.
type ttlCache struct {
	mu      sync.Mutex
	entries map[string]ttlEntry
	expired chan string
	done    chan struct{}
}

// NewTTLCache starts a sweep goroutine ticking every sweepInterval.
func NewTTLCache(sweepInterval time.Duration) *ttlCache {
	c := &ttlCache{
		entries: make(map[string]ttlEntry),
		expired: make(chan string, 256),
		done:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

func (c *ttlCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

func (c *ttlCache) sweep(now time.Time) {
	c.mu.Lock()
	var lapsed []string
	for key, entry := range c.entries {
		if now.After(entry.deadline) {
			lapsed = append(lapsed, key)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for _, key := range lapsed {
		c.expired <- key
	}
}

// Set establishes key with ttl, overwriting any existing entry.
func (c *ttlCache) Set(key string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry{deadline: time.Now().Add(ttl), ttl: ttl}
}

// Refresh resets key's deadline to now plus its original TTL. A refresh on a key
// that isn't present is a no-op (matches "always refresh" being safe to
// call even before the first Set completes).
func (c *ttlCache) Refresh(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	entry.deadline = time.Now().Add(entry.ttl)
	c.entries[key] = entry
}

// Expired delivers keys whose TTL lapsed without a Refresh.
func (c *ttlCache) Expired() <-chan string {
	return c.expired
}

// Close stops the sweep goroutine.
func (c *ttlCache) Close() {
	close(c.done)
}
