package sqsconsumer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/our-edu/go-sqs-consumer/internal/contracts"
)

// Context keys for message metadata
type contextKey string

const (
	// ContextKeyQueueURL is the context key for the queue URL
	ContextKeyQueueURL contextKey = "sqsconsumer.queue_url"
	// ContextKeyMessageID is the context key for the message ID
	ContextKeyMessageID contextKey = "sqsconsumer.message_id"
	// ContextKeyReceiveCount is the context key for the approximate receive count
	ContextKeyReceiveCount contextKey = "sqsconsumer.receive_count"
)

// QueueURLFromContext returns the URL of the queue the message was received from.
// Returns empty string if not set.
func QueueURLFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyQueueURL).(string); ok {
		return v
	}
	return ""
}

// MessageIDFromContext returns the message ID from the context.
// Returns empty string if not set.
func MessageIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyMessageID).(string); ok {
		return v
	}
	return ""
}

// ReceiveCountFromContext returns how many times the message has been
// received, or 0 if the provider did not report it.
func ReceiveCountFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(ContextKeyReceiveCount).(int); ok {
		return v
	}
	return 0
}

func messageContext(ctx context.Context, queueURL string, msg Message) context.Context {
	ctx = context.WithValue(ctx, ContextKeyQueueURL, queueURL)
	ctx = context.WithValue(ctx, ContextKeyMessageID, msg.MessageID)
	if n, err := strconv.Atoi(msg.Attributes["ApproximateReceiveCount"]); err == nil {
		ctx = context.WithValue(ctx, ContextKeyReceiveCount, n)
	}
	return ctx
}

// Message represents a received message.
type Message = contracts.Message

// MessageAttribute is a custom attribute attached to a message.
type MessageAttribute = contracts.MessageAttribute

// AckFunc completes a message. Call it with nil to delete the message or
// with an error to make it visible again immediately. Only the first call
// has an effect.
type AckFunc = contracts.AckFunc

// Handler processes one message.
// It must call ack exactly once; until it does, the message occupies one
// slot of the batch size. The context contains message metadata accessible
// via helper functions:
//   - QueueURLFromContext(ctx) - the queue the message was received from
//   - MessageIDFromContext(ctx) - the SQS message ID
//   - ReceiveCountFromContext(ctx) - the approximate receive count
//
// A returned error (or a panic) is reported as a HandlerFault and does not
// ack or nack the message.
type Handler = contracts.MessageHandler

// QueueClient is the queue capability the consumer polls.
type QueueClient = contracts.QueueClient

// ReceiveRequest describes one receive call.
type ReceiveRequest = contracts.ReceiveRequest

// State is the lifecycle state of a Consumer.
type State int

const (
	// StateStopped is the initial and final state
	StateStopped State = iota
	// StateStarting is held while the first poll runs
	StateStarting
	// StateRunning means the consumer is polling
	StateRunning
	// StateStopping is held while Stop drains in-flight messages
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Common errors
var (
	// ErrAlreadyStarted is returned when Start is called on a consumer that is not stopped
	ErrAlreadyStarted = errors.New("sqsconsumer: consumer already started")

	// ErrDrainTimeout is returned by Stop when messages were still in flight at the deadline
	ErrDrainTimeout = errors.New("sqsconsumer: graceful timeout elapsed with messages in flight")

	// ErrQueueNotSet is returned when neither a queue URL nor a queue name is configured
	ErrQueueNotSet = errors.New("sqsconsumer: queue not set")

	// ErrNilHandler is returned when New is called without a handler
	ErrNilHandler = errors.New("sqsconsumer: handler is required")

	// ErrInvalidBatchSize is returned when the batch size is below 1
	ErrInvalidBatchSize = errors.New("sqsconsumer: batch size must be at least 1")

	// ErrRedisConnectionFailed is returned when the queue URL cache cannot be reached
	ErrRedisConnectionFailed = errors.New("sqsconsumer: failed to connect to Redis")

	// ErrDepthUnsupported is returned by QueueDepth when the queue client cannot report depth
	ErrDepthUnsupported = errors.New("sqsconsumer: queue client does not report queue depth")
)

// ErrorKind represents the classification of an error reported by a consumer
type ErrorKind int

const (
	// ErrorKindUnknown is an unclassified error
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindReceive is a failed or timed out receive call
	ErrorKindReceive
	// ErrorKindHandler is a handler that returned an error or panicked
	ErrorKindHandler
	// ErrorKindAck is a failed delete or visibility reset
	ErrorKindAck
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindReceive:
		return "receive"
	case ErrorKindHandler:
		return "handler"
	case ErrorKindAck:
		return "ack"
	default:
		return "unknown"
	}
}

// ReceiveError is a receive call that failed at the provider or was
// cancelled after waiting longer than the long-poll time plus five seconds.
type ReceiveError struct {
	QueueURL string
	TimedOut bool
	Err      error
}

func (e *ReceiveError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("receive from %s timed out: %v", e.QueueURL, e.Err)
	}
	return fmt.Sprintf("receive from %s failed: %v", e.QueueURL, e.Err)
}

func (e *ReceiveError) Unwrap() error {
	return e.Err
}

// HandlerFault is reported when a handler returns an error or panics.
// It does not complete the message.
type HandlerFault struct {
	MessageID string
	// Panic holds the recovered value when the handler panicked
	Panic any
	Err   error
}

func (e *HandlerFault) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler panicked on message %s: %v", e.MessageID, e.Panic)
	}
	return fmt.Sprintf("handler failed on message %s: %v", e.MessageID, e.Err)
}

func (e *HandlerFault) Unwrap() error {
	return e.Err
}

// AckOp names the queue call an AckError came from
type AckOp string

const (
	// OpDelete is the delete issued by a successful ack
	OpDelete AckOp = "delete"
	// OpChangeVisibility is the visibility reset issued by a nack
	OpChangeVisibility AckOp = "change_visibility"
)

// AckError is a delete or visibility reset that failed. It is not retried;
// the message becomes visible again when its visibility timeout expires.
type AckError struct {
	Op        AckOp
	MessageID string
	Err       error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s of message %s failed: %v", e.Op, e.MessageID, e.Err)
}

func (e *AckError) Unwrap() error {
	return e.Err
}

// IsReceiveError checks if an error is a receive error.
func IsReceiveError(err error) bool {
	var recvErr *ReceiveError
	return errors.As(err, &recvErr)
}

// IsHandlerFault checks if an error is a handler fault.
func IsHandlerFault(err error) bool {
	var fault *HandlerFault
	return errors.As(err, &fault)
}

// IsAckError checks if an error is an ack error.
func IsAckError(err error) bool {
	var ackErr *AckError
	return errors.As(err, &ackErr)
}

// ClassifyError returns the error kind for the given error.
func ClassifyError(err error) ErrorKind {
	if IsReceiveError(err) {
		return ErrorKindReceive
	}
	if IsHandlerFault(err) {
		return ErrorKindHandler
	}
	if IsAckError(err) {
		return ErrorKindAck
	}
	return ErrorKindUnknown
}
