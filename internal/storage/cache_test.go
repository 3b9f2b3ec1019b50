package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, client
}

func TestRedisCache_Key(t *testing.T) {
	_, client := setupTestRedis(t)

	tests := []struct {
		name     string
		prefix   string
		key      string
		expected string
	}{
		{"with prefix", "sqsconsumer", "queue_url:orders", "sqsconsumer:queue_url:orders"},
		{"empty prefix", "", "queue_url:orders", "queue_url:orders"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewRedisCache(client, tt.prefix)
			if got := cache.key(tt.key); got != tt.expected {
				t.Errorf("expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestRedisCache_SetAndGet(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewRedisCache(client, "test")
	ctx := context.Background()

	url := "https://sqs.us-east-1.amazonaws.com/123456789/my-queue"
	if err := cache.Set(ctx, "queue_url:my-queue", url, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := cache.Get(ctx, "queue_url:my-queue")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != url {
		t.Errorf("expected '%s', got '%s'", url, value)
	}

	ttl := mr.TTL("test:queue_url:my-queue")
	if ttl < 23*time.Hour || ttl > DefaultTTL {
		t.Errorf("expected TTL around 24 hours, got %v", ttl)
	}
}

func TestRedisCache_GetMissing(t *testing.T) {
	_, client := setupTestRedis(t)
	cache := NewRedisCache(client, "test")

	value, err := cache.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get should not error for missing key: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty string, got '%s'", value)
	}
}

func TestRedisCache_ExplicitTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewRedisCache(client, "test")
	ctx := context.Background()

	if err := cache.Set(ctx, "expiring", "value", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	mr.FastForward(2 * time.Second)

	value, err := cache.Get(ctx, "expiring")
	if err != nil {
		t.Fatalf("Get failed after expiry: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty string after expiry, got '%s'", value)
	}
}

func TestRedisCache_NoExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewRedisCacheWithTTL(client, "test", 0)

	if err := cache.Set(context.Background(), "forever", "value", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ttl := mr.TTL("test:forever"); ttl != 0 {
		t.Errorf("expected no TTL, got %v", ttl)
	}
}

func TestRedisCache_DeleteByPrefix(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewRedisCache(client, "app")
	ctx := context.Background()

	_ = cache.Set(ctx, "queue_url:a", "url-a", 0)
	_ = cache.Set(ctx, "queue_url:b", "url-b", 0)
	_ = cache.Set(ctx, "other:c", "value", 0)

	if err := cache.DeleteByPrefix(ctx, "queue_url:"); err != nil {
		t.Fatalf("DeleteByPrefix failed: %v", err)
	}

	for _, key := range []string{"queue_url:a", "queue_url:b"} {
		if mr.Exists("app:" + key) {
			t.Errorf("expected key '%s' to be deleted", key)
		}
	}
	if !mr.Exists("app:other:c") {
		t.Error("expected unrelated key to remain")
	}

	if err := cache.DeleteByPrefix(ctx, "nothing:"); err != nil {
		t.Errorf("DeleteByPrefix should not error when no keys match: %v", err)
	}
}

func TestRedisCache_Ping(t *testing.T) {
	_, client := setupTestRedis(t)
	cache := NewRedisCache(client, "test")

	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisCache_PingFailure(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewRedisCache(client, "test")
	mr.Close()

	if err := cache.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail once the server is gone")
	}
}
