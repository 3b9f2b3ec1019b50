// Package sqsconsumer provides a long-polling AWS SQS consumer for Go applications.
//
// A Consumer repeatedly receives batches of messages, hands each one to a
// Handler with bounded concurrency and deletes or returns the message to
// the queue depending on how the handler acknowledges it:
//   - at most one receive call is outstanding at a time
//   - at most BatchSize messages are in flight at a time
//   - ack(nil) deletes the message, ack(err) makes it visible again immediately
//   - Stop waits for in-flight messages up to a graceful timeout
//   - CloudWatch and Prometheus metrics integration
//   - Queue name resolution with an optional Redis cache
//
// Basic Usage:
//
//	consumer, err := sqsconsumer.New(
//	    func(ctx context.Context, msg sqsconsumer.Message, ack sqsconsumer.AckFunc) error {
//	        ack(process(msg.Body))
//	        return nil
//	    },
//	    sqsconsumer.WithQueueURL("https://sqs.us-east-2.amazonaws.com/123456789012/orders"),
//	    sqsconsumer.WithBatchSize(10),
//	    sqsconsumer.WithWaitTimeSeconds(20),
//	    sqsconsumer.WithOnError(func(err error) { log.Println(err) }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := consumer.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	<-ctx.Done()
//	consumer.Stop(20 * time.Second)
package sqsconsumer

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/config"
	"github.com/our-edu/go-sqs-consumer/internal/contracts"
	sqsdriver "github.com/our-edu/go-sqs-consumer/internal/drivers/sqs"
	"github.com/our-edu/go-sqs-consumer/internal/metrics"
	"github.com/our-edu/go-sqs-consumer/internal/storage"
)

// redisKeyPrefix namespaces the consumer's keys in a shared Redis
const redisKeyPrefix = "sqsconsumer"

// New creates a consumer for handler. The queue is set with WithQueueURL,
// WithQueueName or an injected client via WithQueueClient. Nothing is
// received until Start is called.
//
// Example:
//
//	consumer, err := sqsconsumer.New(handler,
//	    sqsconsumer.WithAWSRegion("us-east-2"),
//	    sqsconsumer.WithQueuePrefix("prod"),
//	    sqsconsumer.WithQueueName("orders"),
//	    sqsconsumer.WithRedis("localhost:6379", "", 0),  // Optional queue URL cache
//	)
func New(handler Handler, opts ...Option) (*Consumer, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	// Apply default configuration
	options := &Options{
		config: config.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}
	cfg := options.config

	if cfg.Consumer.BatchSize < 1 {
		return nil, ErrInvalidBatchSize
	}
	cfg.Consumer.WaitTimeSeconds = config.ClampWaitTime(cfg.Consumer.WaitTimeSeconds)
	if cfg.Consumer.WatchdogInterval <= 0 {
		cfg.Consumer.WatchdogInterval = config.DefaultWatchdogInterval
	}

	// Initialize logger - check if a logger was explicitly set
	logger := options.logger
	if !options.loggerSet {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	id := uuid.NewString()
	logger = logger.With().Str("consumer_id", id).Logger()

	if options.queueClient == nil && cfg.SQS.QueueURL == "" && cfg.SQS.QueueName == "" {
		return nil, ErrQueueNotSet
	}

	ctx := context.Background()
	b := &bootstrap{cfg: cfg}

	var closers []func() error
	if options.redisClient != nil {
		closers = append(closers, options.redisClient.Close)
	}

	client := options.queueClient
	queueURL := cfg.SQS.QueueURL
	if client == nil {
		sqsClient := options.sqsClient
		if sqsClient == nil {
			awsCfg, err := b.awsConfig(ctx)
			if err != nil {
				return nil, err
			}
			sqsClient = newSQSClient(awsCfg, cfg)
		}

		if queueURL == "" {
			redisClient := options.redisClient
			if redisClient == nil && cfg.Redis.Enabled {
				redisClient = newRedisClient(cfg.Redis)
				closers = append(closers, redisClient.Close)
			}
			resolved, err := ResolveQueueURL(ctx, sqsClient, redisClient, cfg, logger)
			if err != nil {
				return nil, err
			}
			queueURL = resolved
		}

		sqsQueue, err := sqsdriver.NewClient(sqsClient, queueURL, logger)
		if err != nil {
			return nil, err
		}
		client = sqsQueue
	} else if queueURL == "" {
		queueURL = cfg.GetPrefixedQueueName(cfg.SQS.QueueName)
	}

	provider := options.metrics
	if provider == nil {
		factory := metrics.NewFactoryFromConfig(cfg, nil, logger)
		if options.prometheusRegistry != nil {
			factory.WithPrometheusRegistry(options.prometheusRegistry)
		}
		if cfg.Metrics.CloudWatch.Enabled {
			awsCfg, err := b.awsConfig(ctx)
			if err != nil {
				return nil, err
			}
			factory.WithCloudWatchClient(newCloudWatchClient(awsCfg, cfg))
		}
		provider = factory.Create()
	}

	logger = logger.With().Str("queue_url", queueURL).Logger()
	logger.Debug().
		Str("metrics_provider", provider.Name()).
		Msg("Consumer created")

	return &Consumer{
		id:               id,
		queueURL:         queueURL,
		client:           client,
		handler:          handler,
		batchSize:        cfg.Consumer.BatchSize,
		waitTimeSeconds:  cfg.Consumer.WaitTimeSeconds,
		attributeNames:   cfg.Consumer.MessageAttributeNames,
		watchdogInterval: cfg.Consumer.WatchdogInterval,
		logger:           logger,
		metrics:          provider,
		closers:          closers,
		baseCtx:          context.Background(),
		onError:          options.onError,
		onPoll:           options.onPoll,
	}, nil
}

// bootstrap loads the AWS configuration at most once per New call
type bootstrap struct {
	cfg *config.Config
	aws *aws.Config
}

func (b *bootstrap) awsConfig(ctx context.Context) (aws.Config, error) {
	if b.aws != nil {
		return *b.aws, nil
	}
	awsCfg, err := LoadAWSConfig(ctx, b.cfg)
	if err != nil {
		return aws.Config{}, err
	}
	b.aws = &awsCfg
	return awsCfg, nil
}

// LoadAWSConfig builds the AWS SDK configuration from cfg: region, and
// static credentials when both keys are set.
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}

	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AWS.AccessKeyID,
				cfg.AWS.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewSQSClient creates an SQS client honouring a custom endpoint (LocalStack, ElasticMQ).
func NewSQSClient(ctx context.Context, cfg *config.Config) (*sqs.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newSQSClient(awsCfg, cfg), nil
}

func newSQSClient(awsCfg aws.Config, cfg *config.Config) *sqs.Client {
	if cfg.AWS.Endpoint == "" {
		return sqs.NewFromConfig(awsCfg)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
	})
}

func newCloudWatchClient(awsCfg aws.Config, cfg *config.Config) *cloudwatch.Client {
	if cfg.AWS.Endpoint == "" {
		return cloudwatch.NewFromConfig(awsCfg)
	}
	return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
	})
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// ResolveQueueURL resolves the configured queue name to a URL, using
// redisClient as a shared cache when it is not nil. With
// cfg.SQS.RefreshCache set, cached URLs are dropped first so a queue that
// was recreated under the same name is looked up again.
func ResolveQueueURL(ctx context.Context, api sqsdriver.API, redisClient *redis.Client, cfg *config.Config, logger zerolog.Logger) (string, error) {
	var shared contracts.Cache
	if redisClient != nil {
		cache := storage.NewRedisCache(redisClient, redisKeyPrefix)
		if err := cache.Ping(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRedisConnectionFailed, err)
		}
		logger.Debug().Msg("Redis connection verified")
		shared = cache
	}

	resolver := sqsdriver.NewResolver(api, cfg, logger, shared)
	if cfg.SQS.RefreshCache {
		if err := resolver.ClearCache(ctx); err != nil {
			return "", fmt.Errorf("failed to clear queue URL cache: %w", err)
		}
		logger.Info().Msg("Queue URL cache cleared")
	}
	url, err := resolver.Resolve(ctx, cfg.SQS.QueueName)
	if err != nil {
		return "", err
	}
	return url, nil
}
