package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCacheTTL = time.Hour

// RedisCache is a best-effort JSON cache over Redis. A nil client turns every call
// into a miss or no-op.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client, which may be nil.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns cached bytes for key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			L().Debug("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return b, true
}

// SetJSON marshals v and stores it under key.
func (c *RedisCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		L().Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.client.Set(ctx, key, b, ttl).Err(); err != nil {
		L().Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidatePrefix deletes keys that match the given prefix using SCAN.
func (c *RedisCache) InvalidatePrefix(ctx context.Context, prefix string) {
	if c == nil || c.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // bounded so a huge keyspace cannot stall a request
		keys, cur, err := c.client.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			L().Warn("cache invalidate failed", zap.String("prefix", prefix), zap.Error(err))
			return
		}
		cursor = cur
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				L().Warn("cache delete failed", zap.String("prefix", prefix), zap.Error(err))
			}
		}
		if cursor == 0 {
			return
		}
	}
}
