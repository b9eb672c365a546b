package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces ESI entries in a shared redis database
const DefaultRedisPrefix = "esi:cache:"

// RedisCache stores entries as JSON values in redis
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache wraps an existing redis client. An empty prefix uses DefaultRedisPrefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get implements Reader
func (rc *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := rc.client.Get(ctx, rc.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode redis entry: %w", err)
	}
	return &entry, nil
}

// Set implements Writer
func (rc *RedisCache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := rc.client.Set(ctx, rc.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Forget implements Forgetter
func (rc *RedisCache) Forget(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, rc.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying client
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
