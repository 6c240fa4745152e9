package sysconfig

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a policy value can be. A slightly stale
// threshold is an accepted race, not a correctness bug.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	value    string
	expireAt time.Time
}

// TTLCache is a concurrency-safe per-key cache with last-writer-wins
// semantics. It is an explicit, injectable value so tests can instantiate
// independent instances with their own clocks.
type TTLCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewTTLCache returns a cache whose entries expire ttl after they are set.
// A non-positive ttl falls back to DefaultCacheTTL.
func NewTTLCache(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &TTLCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// WithClock overrides the cache's time source. Test hook.
func (c *TTLCache) WithClock(now func() time.Time) *TTLCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

func (c *TTLCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expireAt) {
		return "", false
	}
	return entry.value, true
}

func (c *TTLCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expireAt: c.now().Add(c.ttl)}
}
