// Package cache implements core.Cache, the read-through TTL cache sitting
// in front of Store.FindDoneWithinTTL (§4.1 cache lookup). Adapted from the
// teacher's DragonflyCache; the Cache interface and Stats/SetNX/Incr extras
// are dropped in favor of the narrower core.Cache contract the rest of the
// pipeline depends on, avoiding the redundant type-parameterized TypedCache
// wrapper the teacher needed for generic job payloads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements core.Cache over a Redis/DragonflyDB client.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// New creates a RedisCache with keys scoped under prefix.
func New(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) scopedKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get returns the cached value for key, or (nil, false, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.scopedKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}
	return data, true, nil
}

// Set stores value under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.scopedKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Delete removes key. It is not part of core.Cache, and the admission path
// never calls it; entries leave the cache only by expiring.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.scopedKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}
