// Package sqs provides the AWS SQS queue client used by the consumer.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/contracts"
)

// ErrQueueURLRequired is returned when a client is built without a queue URL
var ErrQueueURLRequired = errors.New("sqs: queue URL is required")

// API is the subset of the SQS client used by this package (for testing)
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
}

var _ API = (*sqs.Client)(nil)

// Client is a contracts.QueueClient bound to a single SQS queue
type Client struct {
	api      API
	logger   zerolog.Logger
	queueURL string
}

// NewClient creates a queue client for queueURL
func NewClient(api API, queueURL string, logger zerolog.Logger) (*Client, error) {
	if queueURL == "" {
		return nil, ErrQueueURLRequired
	}
	return &Client{
		api:      api,
		logger:   logger,
		queueURL: queueURL,
	}, nil
}

// Ensure Client implements the consumer contracts
var _ contracts.QueueClient = (*Client)(nil)
var _ contracts.DepthReporter = (*Client)(nil)

// QueueURL returns the queue the client is bound to
func (c *Client) QueueURL() string {
	return c.queueURL
}

// ReceiveMessages long-polls the queue. All system attributes are requested
// together with the configured message attribute names.
func (c *Client) ReceiveMessages(ctx context.Context, req contracts.ReceiveRequest) ([]contracts.Message, error) {
	maxMessages := req.MaxMessages
	if maxMessages > contracts.MaxReceiveBatch {
		maxMessages = contracts.MaxReceiveBatch
	}
	if maxMessages < 1 {
		maxMessages = 1
	}

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(req.WaitTimeSeconds),
		AttributeNames:      []types.QueueAttributeName{types.QueueAttributeNameAll},
	}
	if len(req.MessageAttributeNames) > 0 {
		input.MessageAttributeNames = req.MessageAttributeNames
	}

	result, err := c.api.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	messages := make([]contracts.Message, len(result.Messages))
	for i, msg := range result.Messages {
		messages[i] = contracts.Message{
			MessageID:         aws.ToString(msg.MessageId),
			ReceiptHandle:     aws.ToString(msg.ReceiptHandle),
			Body:              aws.ToString(msg.Body),
			Attributes:        msg.Attributes,
			MessageAttributes: convertMessageAttributes(msg.MessageAttributes),
		}
	}

	if len(messages) > 0 {
		c.logger.Debug().
			Int("count", len(messages)).
			Str("queue_url", c.queueURL).
			Msg("Received messages")
	}

	return messages, nil
}

// DeleteMessage acknowledges and removes a message from the queue
func (c *Client) DeleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ChangeVisibilityTimeout sets the visibility timeout of an in-flight message.
// A timeout of 0 makes the message immediately available again.
func (c *Client) ChangeVisibilityTimeout(ctx context.Context, receiptHandle string, timeout int) error {
	_, err := c.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(timeout),
	})
	if err != nil {
		return fmt.Errorf("failed to change visibility timeout: %w", err)
	}
	return nil
}

// GetQueueDepth returns the approximate number of messages in the queue
func (c *Client) GetQueueDepth(ctx context.Context) (int64, error) {
	result, err := c.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(c.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get queue attributes: %w", err)
	}

	countStr := result.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	count, err := strconv.ParseInt(countStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse message count: %w", err)
	}

	return count, nil
}

// Ping checks that the SQS endpoint is reachable with the configured credentials
func Ping(ctx context.Context, api API) error {
	_, err := api.ListQueues(ctx, &sqs.ListQueuesInput{
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

func convertMessageAttributes(attrs map[string]types.MessageAttributeValue) map[string]contracts.MessageAttribute {
	result := make(map[string]contracts.MessageAttribute, len(attrs))
	for k, v := range attrs {
		result[k] = contracts.MessageAttribute{
			DataType: aws.ToString(v.DataType),
			Value:    aws.ToString(v.StringValue),
		}
	}
	return result
}
