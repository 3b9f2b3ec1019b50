// Package rabbitmq provides a RabbitMQ queue client for services migrating to SQS
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/config"
	"github.com/our-edu/go-sqs-consumer/internal/contracts"
)

// ErrVisibilityUnsupported is returned for visibility timeouts other than 0.
// RabbitMQ can only requeue a delivery immediately.
var ErrVisibilityUnsupported = errors.New("rabbitmq: only a visibility timeout of 0 (requeue) is supported")

// emptyPollInterval is how often an empty queue is re-checked while long polling
const emptyPollInterval = 100 * time.Millisecond

// Channel is the subset of *amqp.Channel used by the client (for testing)
type Channel interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// Driver is a contracts.QueueClient backed by a RabbitMQ queue.
// Receipt handles are delivery tags of the driver's channel.
type Driver struct {
	conn    *amqp.Connection
	channel Channel
	queue   string
	logger  zerolog.Logger
}

// NewDriver connects to RabbitMQ and binds the driver to an existing queue
func NewDriver(cfg config.RabbitMQConfig, logger zerolog.Logger) (*Driver, error) {
	if cfg.Queue == "" {
		return nil, errors.New("rabbitmq: queue name is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclarePassive(cfg.Queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to inspect queue %s: %w", cfg.Queue, err)
	}

	d := NewDriverWithChannel(channel, cfg.Queue, logger)
	d.conn = conn
	return d, nil
}

// NewDriverWithChannel creates a driver on an already open channel
func NewDriverWithChannel(channel Channel, queue string, logger zerolog.Logger) *Driver {
	return &Driver{
		channel: channel,
		queue:   queue,
		logger:  logger,
	}
}

var _ contracts.QueueClient = (*Driver)(nil)
var _ contracts.DepthReporter = (*Driver)(nil)

// Name returns the driver name
func (d *Driver) Name() string {
	return string(config.DriverRabbitMQ)
}

// ReceiveMessages fetches up to req.MaxMessages deliveries. When the queue is
// empty it keeps checking until WaitTimeSeconds elapse or ctx is cancelled.
func (d *Driver) ReceiveMessages(ctx context.Context, req contracts.ReceiveRequest) ([]contracts.Message, error) {
	maxMessages := req.MaxMessages
	if maxMessages < 1 {
		maxMessages = 1
	}
	if maxMessages > contracts.MaxReceiveBatch {
		maxMessages = contracts.MaxReceiveBatch
	}
	deadline := time.Now().Add(time.Duration(req.WaitTimeSeconds) * time.Second)

	for {
		messages, err := d.drain(maxMessages, req.MessageAttributeNames)
		if err != nil || len(messages) > 0 {
			return messages, err
		}
		if !time.Now().Before(deadline) {
			return messages, nil
		}

		timer := time.NewTimer(emptyPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *Driver) drain(maxMessages int, attributeNames []string) ([]contracts.Message, error) {
	var messages []contracts.Message
	for len(messages) < maxMessages {
		delivery, ok, err := d.channel.Get(d.queue, false)
		if err != nil {
			if len(messages) == 0 {
				return nil, fmt.Errorf("failed to get message: %w", err)
			}
			// Deliveries already fetched are unacked; hand them over and
			// let the next receive report the error.
			d.logger.Warn().
				Err(err).
				Int("count", len(messages)).
				Str("queue", d.queue).
				Msg("Get failed mid-batch, returning partial batch")
			break
		}
		if !ok {
			break
		}
		messages = append(messages, convertDelivery(delivery, attributeNames))
	}

	if len(messages) > 0 {
		d.logger.Debug().
			Int("count", len(messages)).
			Str("queue", d.queue).
			Msg("Received messages")
	}
	return messages, nil
}

// DeleteMessage acknowledges a delivery
func (d *Driver) DeleteMessage(ctx context.Context, receiptHandle string) error {
	tag, err := strconv.ParseUint(receiptHandle, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid receipt handle %q: %w", receiptHandle, err)
	}
	if err := d.channel.Ack(tag, false); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ChangeVisibilityTimeout requeues a delivery when timeout is 0
func (d *Driver) ChangeVisibilityTimeout(ctx context.Context, receiptHandle string, timeout int) error {
	if timeout != 0 {
		return ErrVisibilityUnsupported
	}
	tag, err := strconv.ParseUint(receiptHandle, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid receipt handle %q: %w", receiptHandle, err)
	}
	if err := d.channel.Nack(tag, false, true); err != nil {
		return fmt.Errorf("failed to requeue message: %w", err)
	}
	return nil
}

// GetQueueDepth returns the number of ready messages
func (d *Driver) GetQueueDepth(ctx context.Context) (int64, error) {
	q, err := d.channel.QueueDeclarePassive(d.queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return int64(q.Messages), nil
}

// Close closes the channel and the connection
func (d *Driver) Close() error {
	if d.channel != nil {
		d.channel.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func convertDelivery(delivery amqp.Delivery, attributeNames []string) contracts.Message {
	attrs := map[string]string{
		"ApproximateReceiveCount": "1",
	}
	if delivery.Redelivered {
		attrs["ApproximateReceiveCount"] = "2"
	}
	// Quorum queues track the exact count
	if count, ok := delivery.Headers["x-delivery-count"]; ok {
		if n, err := strconv.ParseInt(fmt.Sprint(count), 10, 64); err == nil {
			attrs["ApproximateReceiveCount"] = strconv.FormatInt(n+1, 10)
		}
	}
	if !delivery.Timestamp.IsZero() {
		attrs["SentTimestamp"] = strconv.FormatInt(delivery.Timestamp.UnixMilli(), 10)
	}

	return contracts.Message{
		MessageID:         delivery.MessageId,
		ReceiptHandle:     strconv.FormatUint(delivery.DeliveryTag, 10),
		Body:              string(delivery.Body),
		Attributes:        attrs,
		MessageAttributes: convertHeaders(delivery.Headers, attributeNames),
	}
}

func convertHeaders(headers amqp.Table, names []string) map[string]contracts.MessageAttribute {
	result := make(map[string]contracts.MessageAttribute)
	if len(names) == 0 {
		return result
	}

	wantAll := false
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "All" || n == ".*" {
			wantAll = true
		}
		wanted[n] = true
	}

	for k, v := range headers {
		if !wantAll && !wanted[k] {
			continue
		}
		dataType := "String"
		switch v.(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64, float32, float64:
			dataType = "Number"
		case []byte:
			dataType = "Binary"
		}
		result[k] = contracts.MessageAttribute{DataType: dataType, Value: fmt.Sprint(v)}
	}
	return result
}
