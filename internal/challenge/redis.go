// ABOUTME: Redis-backed take-once cache for multi-process deployments
// ABOUTME: GETDEL gives the same consume-exactly-once guarantee as MemoryCache

package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tomepile:challenge:"

// RedisCache implements Cache on a shared Redis instance so that a verify
// request can land on a different process than the one that issued the
// options.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a cache on rdb whose entries live for ttl.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Put(ctx context.Context, key string, data []byte) error {
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("storing challenge: %w", err)
	}
	return nil
}

func (c *RedisCache) Take(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.GetDel(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("taking challenge: %w", err)
	}
	return data, nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
