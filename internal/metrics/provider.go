// Package metrics provides metrics integration for the SQS consumer
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Provider defines the unified interface for all metrics providers.
// Implementations include CloudWatch, Prometheus, Noop, and Composite providers.
type Provider interface {
	// Core metrics methods
	PutMetric(ctx context.Context, name string, value float64, unit string, dimensions map[string]string) error
	Increment(ctx context.Context, name string, dimensions map[string]string) error
	RecordDuration(ctx context.Context, name string, duration float64, dimensions map[string]string) error

	// Poll cycle
	IncPolls(ctx context.Context, queue, status string)
	ObservePollDuration(ctx context.Context, queue string, durationMs float64)

	// Message outcomes
	AddMessagesReceived(ctx context.Context, queue string, count int)
	IncMessagesAcked(ctx context.Context, queue string)
	IncMessagesNacked(ctx context.Context, queue string)
	IncErrors(ctx context.Context, queue, kind string)
	ObserveMessageDuration(ctx context.Context, queue string, durationMs float64)

	// Gauges
	SetInFlight(ctx context.Context, queue string, count float64)
	SetQueueDepth(ctx context.Context, queue string, depth float64)

	// Provider info
	Name() string
	Enabled() bool
}

// HTTPProvider is an optional interface for providers that expose HTTP handlers (e.g., Prometheus)
type HTTPProvider interface {
	Provider
	Handler() http.Handler
	HandlerFunc() http.HandlerFunc
}

// CollectorProvider is an optional interface for providers that expose Prometheus collectors
type CollectorProvider interface {
	Provider
	Collectors() []prometheus.Collector
	Register() error
}

// Flusher is implemented by providers that buffer metrics before sending them
type Flusher interface {
	Flush(ctx context.Context) error
}

// ProviderType represents the type of metrics provider
type ProviderType string

const (
	ProviderTypeCloudWatch ProviderType = "cloudwatch"
	ProviderTypePrometheus ProviderType = "prometheus"
	ProviderTypeNoop       ProviderType = "noop"
	ProviderTypeComposite  ProviderType = "composite"
)

// Poll statuses
const (
	PollStatusMessages = "messages"
	PollStatusEmpty    = "empty"
	PollStatusError    = "error"
	PollStatusTimeout  = "timeout"
)

// Error kinds
const (
	ErrorKindReceive = "receive"
	ErrorKindHandler = "handler"
	ErrorKindAck     = "ack"
)

// Metric names
const (
	MetricPolls            = "sqs.consumer.polls"
	MetricPollDuration     = "sqs.consumer.poll_duration"
	MetricMessagesReceived = "sqs.consumer.messages.received"
	MetricMessagesAcked    = "sqs.consumer.messages.acked"
	MetricMessagesNacked   = "sqs.consumer.messages.nacked"
	MetricErrors           = "sqs.consumer.errors"
	MetricMessageDuration  = "sqs.consumer.message_duration"
	MetricInFlight         = "sqs.consumer.in_flight"
	MetricQueueDepth       = "sqs.consumer.queue_depth"
)
