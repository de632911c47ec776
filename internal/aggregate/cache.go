package aggregate

import (
	"sync"
	"time"
)

// resultCache is a small TTL cache of last-known-good downstream results,
// consulted by circuit-breaker fallbacks. Serving an entry past its own
// freshness but within TTL is the deliberate staleness/availability
// trade-off of the dashboard; responses built from it are labeled cached.
type resultCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value    any
	storedAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// get returns the cached value for key when present and within TTL.
func (c *resultCache) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Since(e.storedAt) > c.ttl {
		return nil, false
	}
	return e.value, true
}

// put stores value under key, restarting its TTL. Expired entries are
// evicted opportunistically to bound memory.
func (c *resultCache) put(key string, value any) {
	now := time.Now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{value: value, storedAt: now}
	c.mu.Unlock()
}
