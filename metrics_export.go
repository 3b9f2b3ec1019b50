package sqsconsumer

import (
	"github.com/our-edu/go-sqs-consumer/internal/metrics"
)

// Re-export metrics types for convenience

// MetricsProvider is the unified interface for all metrics providers.
type MetricsProvider = metrics.Provider

// HTTPMetricsProvider is an optional interface for providers that expose HTTP handlers.
type HTTPMetricsProvider = metrics.HTTPProvider

// CollectorMetricsProvider is an optional interface for providers that expose Prometheus collectors.
type CollectorMetricsProvider = metrics.CollectorProvider

// MetricsFlusher is implemented by providers that buffer metrics; Stop flushes them.
type MetricsFlusher = metrics.Flusher

// MetricsProviderType represents the type of metrics provider.
type MetricsProviderType = metrics.ProviderType

// Metrics provider type constants
const (
	MetricsProviderCloudWatch = metrics.ProviderTypeCloudWatch
	MetricsProviderPrometheus = metrics.ProviderTypePrometheus
	MetricsProviderNoop       = metrics.ProviderTypeNoop
	MetricsProviderComposite  = metrics.ProviderTypeComposite
)

// Metrics constants for consistency
const (
	MetricPolls            = metrics.MetricPolls
	MetricPollDuration     = metrics.MetricPollDuration
	MetricMessagesReceived = metrics.MetricMessagesReceived
	MetricMessagesAcked    = metrics.MetricMessagesAcked
	MetricMessagesNacked   = metrics.MetricMessagesNacked
	MetricErrors           = metrics.MetricErrors
	MetricMessageDuration  = metrics.MetricMessageDuration
	MetricInFlight         = metrics.MetricInFlight
	MetricQueueDepth       = metrics.MetricQueueDepth
)

// NewNoopMetricsProvider returns a provider that discards every metric.
func NewNoopMetricsProvider() MetricsProvider {
	return metrics.NewNoopProvider()
}
