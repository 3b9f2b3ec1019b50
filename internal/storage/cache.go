// Package storage provides the Redis-backed cache used for queue URL resolution.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/our-edu/go-sqs-consumer/internal/contracts"
)

// DefaultTTL applies when Set is called without a TTL. Queue URLs rarely change.
const DefaultTTL = 24 * time.Hour

// RedisCache implements contracts.Cache on top of Redis
type RedisCache struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedisCache creates a cache whose keys are namespaced under prefix
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return NewRedisCacheWithTTL(client, prefix, DefaultTTL)
}

// NewRedisCacheWithTTL creates a cache with a custom default TTL.
// A ttl <= 0 stores entries without expiration.
func NewRedisCacheWithTTL(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client:     client,
		prefix:     prefix,
		defaultTTL: ttl,
	}
}

var _ contracts.Cache = (*RedisCache)(nil)

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get returns the cached value, or "" when the key is missing
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

// Set stores a value. ttlSeconds <= 0 uses the cache default TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttlSeconds int) error {
	ttl := c.defaultTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// DeleteByPrefix removes every value whose key starts with prefix
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, c.key(prefix)+"*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete by prefix failed: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is healthy
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
