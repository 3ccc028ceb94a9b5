package automation

import (
	"sync"
	"time"
)

// InMemoryRulesCache is a process-local RulesCache.
type InMemoryRulesCache struct {
	config   CacheConfig
	mu       sync.RWMutex
	rules    []*Rule
	cachedAt time.Time
	valid    bool
}

// NewInMemoryRulesCache creates an empty cache with the given config.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

// Get returns the cached rules list, or nil when the cache is invalid or
// the TTL has elapsed. The returned slice is a copy; callers cannot corrupt
// the cached list.
func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Set stores a copy of the rules list.
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]*Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.valid = true
}

// Invalidate clears the cache.
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
}
