// Package contracts defines the interfaces shared by the consumer and its drivers.
package contracts

import (
	"context"
)

// MaxReceiveBatch is the largest number of messages a single receive may request.
const MaxReceiveBatch = 10

// ReceiveRequest describes a single receive call against a queue
type ReceiveRequest struct {
	// MaxMessages is the number of messages to request (1..10)
	MaxMessages int
	// WaitTimeSeconds is the long polling duration (0..20)
	WaitTimeSeconds int
	// MessageAttributeNames lists the custom attributes to return with each message
	MessageAttributeNames []string
}

// QueueClient is the capability the consumer needs from a queue provider.
// Implementations must honour context cancellation on ReceiveMessages.
type QueueClient interface {
	// ReceiveMessages long-polls the queue for up to req.MaxMessages messages
	ReceiveMessages(ctx context.Context, req ReceiveRequest) ([]Message, error)
	// DeleteMessage acknowledges and removes a message from the queue
	DeleteMessage(ctx context.Context, receiptHandle string) error
	// ChangeVisibilityTimeout sets the visibility timeout of an in-flight message
	ChangeVisibilityTimeout(ctx context.Context, receiptHandle string, timeout int) error
}

// DepthReporter is implemented by queue clients able to report queue depth
type DepthReporter interface {
	// GetQueueDepth returns the approximate number of visible messages
	GetQueueDepth(ctx context.Context) (int64, error)
}

// Message represents a received message from the queue
type Message struct {
	// MessageID is the unique message identifier
	MessageID string
	// ReceiptHandle is used to delete or modify the message. Empty means
	// the message cannot be acknowledged.
	ReceiptHandle string
	// Body is the raw message body
	Body string
	// Attributes contains system attributes (ApproximateReceiveCount, SentTimestamp, ...)
	Attributes map[string]string
	// MessageAttributes contains custom message attributes
	MessageAttributes map[string]MessageAttribute
}

// MessageAttribute represents a message attribute
type MessageAttribute struct {
	DataType string
	Value    string
}

// AckFunc completes a message. A nil error deletes the message, a non-nil
// error makes it immediately visible again.
type AckFunc func(err error)

// MessageHandler processes one message and must call ack exactly once.
// The returned error is reported as a handler fault and does not complete
// the message.
type MessageHandler func(ctx context.Context, msg Message, ack AckFunc) error

// Cache is a string key/value cache
type Cache interface {
	// Get returns the cached value or "" when missing
	Get(ctx context.Context, key string) (string, error)
	// Set stores a value, ttlSeconds <= 0 uses the implementation default
	Set(ctx context.Context, key string, value string, ttlSeconds int) error
	// DeleteByPrefix removes every value whose key starts with prefix
	DeleteByPrefix(ctx context.Context, prefix string) error
}
