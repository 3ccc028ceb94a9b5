package automation

import "time"

// RulesCache caches the active rules list between evaluations so the hot
// conversion postback path does not query the store on every record.
// Implementations must be safe for concurrent use.
type RulesCache interface {
	// Get returns the cached rules, or nil on a miss or expired entry.
	Get() []*Rule

	// Set stores the active rules list.
	Set(rules []*Rule)

	// Invalidate clears the cache; the next Get reports a miss.
	Invalidate()
}

// CacheConfig controls cache expiry.
type CacheConfig struct {
	// TTL bounds how stale a cached rules list may be. Zero disables
	// expiry and leaves invalidation entirely to rule mutations.
	TTL time.Duration
}

// DefaultCacheConfig expires entries after 30 seconds, bounding how long a
// rule change can take to reach evaluators that missed the invalidation
// (e.g. other processes sharing a Redis cache).
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 30 * time.Second}
}
