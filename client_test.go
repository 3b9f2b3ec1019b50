package sqsconsumer

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/config"
	sqsdriver "github.com/our-edu/go-sqs-consumer/internal/drivers/sqs"
)

// urlLookupAPI answers GetQueueUrl only
type urlLookupAPI struct {
	sqsdriver.API
	queueURL string
	lookups  int
}

func (a *urlLookupAPI) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	a.lookups++
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(a.queueURL)}, nil
}

func setupResolveRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestResolveQueueURL_UsesCachedURL(t *testing.T) {
	mr, client := setupResolveRedis(t)
	mr.Set("sqsconsumer:queue_url:dev-orders", "https://sqs/stale")

	cfg := config.DefaultConfig()
	cfg.SQS.Prefix = "dev"
	cfg.SQS.QueueName = "orders"
	api := &urlLookupAPI{queueURL: testQueueURL}

	url, err := ResolveQueueURL(context.Background(), api, client, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://sqs/stale" {
		t.Errorf("expected the cached URL, got %s", url)
	}
	if api.lookups != 0 {
		t.Errorf("expected no GetQueueUrl call, got %d", api.lookups)
	}
}

func TestResolveQueueURL_RefreshCache(t *testing.T) {
	mr, client := setupResolveRedis(t)
	mr.Set("sqsconsumer:queue_url:dev-orders", "https://sqs/stale")
	mr.Set("sqsconsumer:queue_url:dev-payments", "https://sqs/stale-payments")

	cfg := config.DefaultConfig()
	cfg.SQS.Prefix = "dev"
	cfg.SQS.QueueName = "orders"
	cfg.SQS.RefreshCache = true
	api := &urlLookupAPI{queueURL: testQueueURL}

	url, err := ResolveQueueURL(context.Background(), api, client, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != testQueueURL {
		t.Errorf("expected %s, got %s", testQueueURL, url)
	}
	if api.lookups != 1 {
		t.Errorf("expected 1 GetQueueUrl call, got %d", api.lookups)
	}
	if got, _ := mr.Get("sqsconsumer:queue_url:dev-orders"); got != testQueueURL {
		t.Errorf("expected the fresh URL to be cached, got %q", got)
	}
	if mr.Exists("sqsconsumer:queue_url:dev-payments") {
		t.Error("expected other cached queue URLs to be dropped")
	}
}

func TestResolveQueueURL_RedisDown(t *testing.T) {
	mr, client := setupResolveRedis(t)
	mr.Close()

	cfg := config.DefaultConfig()
	cfg.SQS.QueueName = "orders"

	_, err := ResolveQueueURL(context.Background(), &urlLookupAPI{queueURL: testQueueURL}, client, cfg, zerolog.Nop())
	if !errors.Is(err, ErrRedisConnectionFailed) {
		t.Errorf("expected ErrRedisConnectionFailed, got %v", err)
	}
}
