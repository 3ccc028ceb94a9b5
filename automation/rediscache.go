package automation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisRulesKey = "affilium:rules:active"

// RedisRulesCache shares the active rules list across processes through
// Redis. Any Redis error is treated as a cache miss; the store remains the
// source of truth and evaluation proceeds without the cache.
type RedisRulesCache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisRulesCache creates a Redis-backed RulesCache. A zero TTL falls
// back to the default config's TTL; an unbounded shared cache would let
// deleted rules keep firing on nodes that never see an invalidation.
func NewRedisRulesCache(client *redis.Client, config CacheConfig) *RedisRulesCache {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultCacheConfig().TTL
	}
	return &RedisRulesCache{
		client:  client,
		ttl:     ttl,
		timeout: 2 * time.Second,
	}
}

// Get fetches and decodes the cached rules list.
func (c *RedisRulesCache) Get() []*Rule {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	payload, err := c.client.Get(ctx, redisRulesKey).Bytes()
	if err != nil {
		return nil
	}

	var rules []*Rule
	if err := json.Unmarshal(payload, &rules); err != nil {
		return nil
	}
	return rules
}

// Set encodes and stores the rules list with the configured TTL.
func (c *RedisRulesCache) Set(rules []*Rule) {
	payload, err := json.Marshal(rules)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.client.Set(ctx, redisRulesKey, payload, c.ttl)
}

// Invalidate deletes the cached list.
func (c *RedisRulesCache) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.client.Del(ctx, redisRulesKey)
}
