package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	sqsconsumer "github.com/our-edu/go-sqs-consumer"
	"github.com/our-edu/go-sqs-consumer/internal/config"
)

// errRejected is the completion error used by the --nack handler
var errRejected = errors.New("message rejected by consumer")

// consumeOptions holds the flags of the consume command
type consumeOptions struct {
	batchSize       int
	waitTime        int
	nack            bool
	metricsAddr     string
	gracefulTimeout time.Duration
	depthInterval   time.Duration
	refreshCache    bool
}

// newConsumeCmd creates the consume command
func newConsumeCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	opts := consumeOptions{}

	cmd := &cobra.Command{
		Use:   "consume [queue]",
		Short: "Consume messages from a queue",
		Long: `Consume messages from a queue and log each one. This command is designed
to be run under Supervisor for production deployments.

The consumer implements:
- Long polling with at most one outstanding receive
- Up to --batch messages in flight at once
- Delete on success, immediate redelivery with --nack
- Graceful shutdown on SIGINT/SIGTERM
- Prometheus metrics on --metrics-addr`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsumer(cmd.Context(), withRefresh(withQueue(cfg, args), opts.refreshCache), logger, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.batchSize, "batch", "b", cfg.Consumer.BatchSize, "Maximum messages in flight")
	cmd.Flags().IntVarP(&opts.waitTime, "wait", "w", cfg.Consumer.WaitTimeSeconds, "Long polling wait time in seconds")
	cmd.Flags().BoolVar(&opts.nack, "nack", false, "Return every message to the queue instead of deleting it")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", cfg.Metrics.Prometheus.Addr, "Listen address of the Prometheus /metrics endpoint")
	cmd.Flags().DurationVar(&opts.gracefulTimeout, "graceful-timeout", cfg.Consumer.GracefulTimeout, "How long to wait for in-flight messages on shutdown")
	cmd.Flags().DurationVar(&opts.depthInterval, "depth-interval", 30*time.Second, "Queue depth reporting interval (0 disables)")
	addRefreshCacheFlag(cmd, &opts.refreshCache)

	return cmd
}

// runConsumer consumes until ctx is cancelled, then drains in-flight messages
func runConsumer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts consumeOptions) error {
	queue, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer queue.Close()

	logger.Info().
		Str("driver", string(cfg.Driver)).
		Str("queue", queue.url).
		Int("batch_size", opts.batchSize).
		Int("wait_time", opts.waitTime).
		Msg("Starting consumer")

	consumer, err := sqsconsumer.New(logHandler(logger, opts.nack),
		sqsconsumer.WithConfig(cfg),
		sqsconsumer.WithQueueClient(queue.client),
		sqsconsumer.WithQueueURL(queue.url),
		sqsconsumer.WithLogger(logger),
		sqsconsumer.WithBatchSize(opts.batchSize),
		sqsconsumer.WithWaitTimeSeconds(opts.waitTime),
		sqsconsumer.WithOnError(func(err error) {
			logger.Error().
				Err(err).
				Str("kind", sqsconsumer.ClassifyError(err).String()).
				Msg("Consumer error")
		}),
	)
	if err != nil {
		return err
	}
	defer consumer.Close()

	var server *http.Server
	if opts.metricsAddr != "" && consumer.PrometheusEnabled() {
		server = serveMetrics(opts.metricsAddr, consumer.PrometheusHandler(), logger)
	}

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	logger.Info().Msg("Consumer started, waiting for messages...")

	if opts.depthInterval > 0 {
		go reportDepth(ctx, consumer, opts.depthInterval, logger)
	}

	<-ctx.Done()
	logger.Info().
		Int("in_flight", consumer.InFlight()).
		Dur("timeout", opts.gracefulTimeout).
		Msg("Consumer shutting down")

	stopErr := consumer.Stop(opts.gracefulTimeout)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	if errors.Is(stopErr, sqsconsumer.ErrDrainTimeout) {
		// Undrained messages reappear after their visibility timeout.
		return nil
	}
	return stopErr
}

// logHandler logs every message and acks it, or nacks it when nack is set
func logHandler(logger zerolog.Logger, nack bool) sqsconsumer.Handler {
	return func(ctx context.Context, msg sqsconsumer.Message, ack sqsconsumer.AckFunc) error {
		logger.Info().
			Str("message_id", msg.MessageID).
			Int("receive_count", sqsconsumer.ReceiveCountFromContext(ctx)).
			Int("body_bytes", len(msg.Body)).
			Msg("Received message")

		if nack {
			ack(errRejected)
			return nil
		}
		ack(nil)
		return nil
	}
}

// serveMetrics exposes handler on addr/metrics in the background
func serveMetrics(addr string, handler http.Handler, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return server
}

// reportDepth refreshes the queue depth gauge until ctx is done
func reportDepth(ctx context.Context, consumer *sqsconsumer.Consumer, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := consumer.QueueDepth(ctx)
			if errors.Is(err, sqsconsumer.ErrDepthUnsupported) {
				return
			}
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to get queue depth")
				continue
			}
			logger.Debug().Int64("depth", depth).Msg("Queue depth")
		}
	}
}
