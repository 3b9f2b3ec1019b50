// Package commands provides the cobra commands of the consumer CLI. They can
// be mounted on any root command with AddCommands.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	sqsconsumer "github.com/our-edu/go-sqs-consumer"
	"github.com/our-edu/go-sqs-consumer/internal/config"
	"github.com/our-edu/go-sqs-consumer/internal/contracts"
	"github.com/our-edu/go-sqs-consumer/internal/drivers/rabbitmq"
	sqsdriver "github.com/our-edu/go-sqs-consumer/internal/drivers/sqs"
)

// AddCommands adds all consumer commands to the provided root command
func AddCommands(rootCmd *cobra.Command, cfg *config.Config, logger zerolog.Logger) {
	rootCmd.AddCommand(
		newConsumeCmd(cfg, logger),
		newStatusCmd(cfg, logger),
		newTestConnectionCmd(cfg, logger),
		newTestReceiveCmd(cfg, logger),
	)
}

// newStatusCmd creates the status command
func newStatusCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	var refreshCache bool

	cmd := &cobra.Command{
		Use:   "status [queue]",
		Short: "Show the approximate number of messages in a queue",
		Long: `Shows the approximate number of visible messages in the queue.
The queue defaults to the configured one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), withRefresh(withQueue(cfg, args), refreshCache), logger)
		},
	}

	addRefreshCacheFlag(cmd, &refreshCache)

	return cmd
}

// newTestConnectionCmd creates the test-connection command
func newTestConnectionCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Test the AWS SQS connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestConnection(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

// newTestReceiveCmd creates the test-receive command
func newTestReceiveCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	var maxMessages int
	var waitTime int

	cmd := &cobra.Command{
		Use:   "test-receive [queue]",
		Short: "Receive messages once without acknowledging them",
		Long: `Performs a single receive and prints the messages. Nothing is deleted,
received messages become visible again once their visibility timeout expires.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestReceive(cmd.Context(), cmd.OutOrStdout(), withQueue(cfg, args), logger, maxMessages, waitTime)
		},
	}

	cmd.Flags().IntVarP(&maxMessages, "max", "m", 1, "Maximum messages to receive (1-10)")
	cmd.Flags().IntVarP(&waitTime, "wait", "w", 5, "Long polling wait time in seconds")

	return cmd
}

// runStatus prints the queue depth
func runStatus(ctx context.Context, out io.Writer, cfg *config.Config, logger zerolog.Logger) error {
	queue, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	defer queue.Close()

	reporter, ok := queue.client.(contracts.DepthReporter)
	if !ok {
		return sqsconsumer.ErrDepthUnsupported
	}
	depth, err := reporter.GetQueueDepth(ctx)
	if err != nil {
		return fmt.Errorf("failed to get queue depth: %w", err)
	}

	fmt.Fprintf(out, "\n=== Queue Status ===\n")
	fmt.Fprintf(out, "Driver: %s\n", cfg.Driver)
	fmt.Fprintf(out, "Queue: %s\n", queue.url)
	fmt.Fprintf(out, "Messages in Queue: %d\n", depth)
	fmt.Fprintf(out, "====================\n\n")

	return nil
}

// runTestConnection lists a single queue to check credentials and endpoint
func runTestConnection(ctx context.Context, out io.Writer, cfg *config.Config) error {
	fmt.Fprintln(out, "Testing AWS SQS connection...")

	sqsClient, err := newSQSAPI(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create SQS client: %w", err)
	}
	if err := sqsdriver.Ping(ctx, sqsClient); err != nil {
		return err
	}

	fmt.Fprintln(out, "Connection successful!")
	fmt.Fprintf(out, "Region: %s\n", cfg.AWS.Region)
	if cfg.AWS.Endpoint != "" {
		fmt.Fprintf(out, "Endpoint: %s\n", cfg.AWS.Endpoint)
	}
	fmt.Fprintf(out, "Queue Prefix: %s\n", cfg.SQS.Prefix)

	return nil
}

// runTestReceive performs one receive and prints what came back
func runTestReceive(ctx context.Context, out io.Writer, cfg *config.Config, logger zerolog.Logger, maxMessages, waitTime int) error {
	if maxMessages < 1 || maxMessages > contracts.MaxReceiveBatch {
		return fmt.Errorf("--max must be between 1 and %d", contracts.MaxReceiveBatch)
	}

	queue, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	defer queue.Close()

	fmt.Fprintf(out, "Receiving messages from %s...\n", queue.url)
	messages, err := queue.client.ReceiveMessages(ctx, contracts.ReceiveRequest{
		MaxMessages:           maxMessages,
		WaitTimeSeconds:       config.ClampWaitTime(waitTime),
		MessageAttributeNames: cfg.Consumer.MessageAttributeNames,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Fprintln(out, "No messages received")
		return nil
	}

	for _, msg := range messages {
		fmt.Fprintf(out, "\nMessage ID: %s\n", msg.MessageID)
		if count, ok := msg.Attributes["ApproximateReceiveCount"]; ok {
			fmt.Fprintf(out, "Receive Count: %s\n", count)
		}
		for name, attr := range msg.MessageAttributes {
			fmt.Fprintf(out, "Attribute %s (%s): %s\n", name, attr.DataType, attr.Value)
		}
		fmt.Fprintf(out, "Body: %s\n", msg.Body)
	}

	return nil
}

// queueHandle is an open queue client plus whatever must be released with it
type queueHandle struct {
	client  contracts.QueueClient
	url     string
	closers []func() error
}

// Close releases the connections opened for the queue
func (q *queueHandle) Close() error {
	var lastErr error
	for _, closeFn := range q.closers {
		if err := closeFn(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// openQueue builds the queue client of the configured driver
var openQueue = func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*queueHandle, error) {
	switch cfg.Driver {
	case config.DriverRabbitMQ:
		driver, err := rabbitmq.NewDriver(cfg.RabbitMQ, logger)
		if err != nil {
			return nil, err
		}
		return &queueHandle{
			client:  driver,
			url:     "amqp://" + cfg.RabbitMQ.Queue,
			closers: []func() error{driver.Close},
		}, nil
	case config.DriverSQS, "":
		return openSQSQueue(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

func openSQSQueue(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*queueHandle, error) {
	sqsClient, err := newSQSAPI(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS client: %w", err)
	}

	handle := &queueHandle{url: cfg.SQS.QueueURL}
	if handle.url == "" {
		if cfg.SQS.QueueName == "" {
			return nil, sqsconsumer.ErrQueueNotSet
		}
		var redisClient *redis.Client
		if cfg.Redis.Enabled {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			handle.closers = append(handle.closers, redisClient.Close)
		}
		handle.url, err = sqsconsumer.ResolveQueueURL(ctx, sqsClient, redisClient, cfg, logger)
		if err != nil {
			handle.Close()
			return nil, err
		}
	}

	client, err := sqsdriver.NewClient(sqsClient, handle.url, logger)
	if err != nil {
		handle.Close()
		return nil, err
	}
	handle.client = client
	return handle, nil
}

// newSQSAPI builds the AWS client, replaceable in tests
var newSQSAPI = func(ctx context.Context, cfg *config.Config) (sqsdriver.API, error) {
	client, err := sqsconsumer.NewSQSClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// addRefreshCacheFlag registers --refresh-cache
func addRefreshCacheFlag(cmd *cobra.Command, refresh *bool) {
	cmd.Flags().BoolVar(refresh, "refresh-cache", false, "Drop queue URLs cached in Redis before resolving the queue")
}

// withRefresh returns cfg with queue URL cache refresh enabled when refresh is set
func withRefresh(cfg *config.Config, refresh bool) *config.Config {
	if !refresh {
		return cfg
	}
	override := *cfg
	override.SQS.RefreshCache = true
	return &override
}

// withQueue returns cfg with the queue overridden by the optional argument
func withQueue(cfg *config.Config, args []string) *config.Config {
	if len(args) == 0 {
		return cfg
	}
	override := *cfg
	override.SQS.QueueURL = ""
	override.SQS.QueueName = args[0]
	override.RabbitMQ.Queue = args[0]
	return &override
}
