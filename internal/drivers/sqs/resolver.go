package sqs

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/config"
	"github.com/our-edu/go-sqs-consumer/internal/contracts"
)

const queueURLCacheKeyPrefix = "queue_url:"

// Resolver resolves queue names to URLs with an in-process cache and an
// optional shared cache. It never creates queues.
type Resolver struct {
	api    API
	config *config.Config
	logger zerolog.Logger
	shared contracts.Cache
	cache  map[string]string
	mutex  sync.RWMutex
}

// NewResolver creates a new SQS queue resolver. shared may be nil.
func NewResolver(api API, cfg *config.Config, logger zerolog.Logger, shared contracts.Cache) *Resolver {
	return &Resolver{
		api:    api,
		config: cfg,
		logger: logger,
		shared: shared,
		cache:  make(map[string]string),
	}
}

// Resolve returns the URL of an existing queue
func (r *Resolver) Resolve(ctx context.Context, queueName string) (string, error) {
	prefixedName := r.config.GetPrefixedQueueName(queueName)

	r.mutex.RLock()
	if url, ok := r.cache[prefixedName]; ok {
		r.mutex.RUnlock()
		return url, nil
	}
	r.mutex.RUnlock()

	if r.shared != nil {
		url, err := r.shared.Get(ctx, queueURLCacheKeyPrefix+prefixedName)
		if err != nil {
			r.logger.Warn().Err(err).Str("queue", prefixedName).Msg("Queue URL cache lookup failed")
		} else if url != "" {
			r.cacheURL(prefixedName, url)
			return url, nil
		}
	}

	result, err := r.api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(prefixedName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve queue %s: %w", prefixedName, err)
	}
	url := aws.ToString(result.QueueUrl)

	r.cacheURL(prefixedName, url)
	if r.shared != nil {
		if err := r.shared.Set(ctx, queueURLCacheKeyPrefix+prefixedName, url, 0); err != nil {
			r.logger.Warn().Err(err).Str("queue", prefixedName).Msg("Failed to cache queue URL")
		}
	}

	r.logger.Debug().Str("queue", prefixedName).Str("queue_url", url).Msg("Resolved queue URL")
	return url, nil
}

func (r *Resolver) cacheURL(name, url string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache[name] = url
}

// ClearCache clears the in-process and shared queue URL caches
func (r *Resolver) ClearCache(ctx context.Context) error {
	r.mutex.Lock()
	r.cache = make(map[string]string)
	r.mutex.Unlock()

	if r.shared != nil {
		return r.shared.DeleteByPrefix(ctx, queueURLCacheKeyPrefix)
	}
	return nil
}
