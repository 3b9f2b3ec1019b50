package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// PrometheusProvider exposes consumer metrics to Prometheus
type PrometheusProvider struct {
	logger    zerolog.Logger
	namespace string
	subsystem string
	enabled   bool

	// Custom registry (if provided)
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	// Counters
	polls            *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesAcked    *prometheus.CounterVec
	messagesNacked   *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec

	// Gauges
	inFlight   *prometheus.GaugeVec
	queueDepth *prometheus.GaugeVec

	// Histograms
	pollDuration    *prometheus.HistogramVec
	messageDuration *prometheus.HistogramVec

	registered bool
	mu         sync.Mutex
}

// PrometheusConfig holds configuration for Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool                  // Whether Prometheus metrics are enabled
	Namespace string                // Metric namespace (e.g., "sqsconsumer")
	Subsystem string                // Metric subsystem (e.g., "orders")
	Registry  prometheus.Registerer // Custom registry (optional, defaults to prometheus.DefaultRegisterer)
}

// NewPrometheusProvider creates a new Prometheus metrics provider
func NewPrometheusProvider(logger zerolog.Logger, cfg PrometheusConfig) *PrometheusProvider {
	if cfg.Namespace == "" {
		cfg.Namespace = "sqsconsumer"
	}

	p := &PrometheusProvider{
		logger:    logger,
		namespace: cfg.Namespace,
		subsystem: cfg.Subsystem,
		registry:  cfg.Registry,
		enabled:   cfg.Enabled,
	}

	if cfg.Registry != nil {
		if g, ok := cfg.Registry.(prometheus.Gatherer); ok {
			p.gatherer = g
		}
	}

	p.initMetrics()
	return p
}

var _ Provider = (*PrometheusProvider)(nil)
var _ HTTPProvider = (*PrometheusProvider)(nil)
var _ CollectorProvider = (*PrometheusProvider)(nil)

// Name returns the provider name
func (p *PrometheusProvider) Name() string {
	return string(ProviderTypePrometheus)
}

// Enabled returns whether Prometheus metrics are enabled
func (p *PrometheusProvider) Enabled() bool {
	return p.enabled
}

func (p *PrometheusProvider) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: p.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (p *PrometheusProvider) gauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Subsystem: p.subsystem,
		Name:      name,
		Help:      help,
	}, []string{"queue"})
}

func (p *PrometheusProvider) initMetrics() {
	p.polls = p.counter("polls_total", "Total number of completed receive calls by outcome", "queue", "status")
	p.messagesReceived = p.counter("messages_received_total", "Total number of messages dispatched to the handler", "queue")
	p.messagesAcked = p.counter("messages_acked_total", "Total number of messages deleted after a successful ack", "queue")
	p.messagesNacked = p.counter("messages_nacked_total", "Total number of messages made visible again after a failed ack", "queue")
	p.errorsTotal = p.counter("errors_total", "Total number of errors reported on the error channel", "queue", "kind")

	p.inFlight = p.gauge("in_flight_messages", "Messages dispatched but not yet acknowledged")
	p.queueDepth = p.gauge("queue_depth", "Current approximate number of messages in the queue")

	p.pollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: p.subsystem,
			Name:      "poll_duration_milliseconds",
			Help:      "Receive call duration in milliseconds",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 25000},
		},
		[]string{"queue"},
	)

	p.messageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: p.subsystem,
			Name:      "message_duration_milliseconds",
			Help:      "Time from dispatch to acknowledgement in milliseconds",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"queue"},
	)
}

// Register registers all metrics with the configured registry, or the
// default Prometheus registry when none was provided.
func (p *PrometheusProvider) Register() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.registered {
		return nil
	}

	registerer := p.registry
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	for _, c := range p.Collectors() {
		if err := registerer.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}

	p.registered = true
	p.logger.Info().Msg("Prometheus metrics registered")
	return nil
}

// Collectors returns all Prometheus collectors used by this provider
func (p *PrometheusProvider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.polls,
		p.messagesReceived,
		p.messagesAcked,
		p.messagesNacked,
		p.errorsTotal,
		p.inFlight,
		p.queueDepth,
		p.pollDuration,
		p.messageDuration,
	}
}

// Handler returns an http.Handler for the /metrics endpoint
func (p *PrometheusProvider) Handler() http.Handler {
	if p.gatherer != nil {
		return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// HandlerFunc returns an http.HandlerFunc for the /metrics endpoint
func (p *PrometheusProvider) HandlerFunc() http.HandlerFunc {
	return p.Handler().ServeHTTP
}

// PutMetric routes a named metric to the matching collector
func (p *PrometheusProvider) PutMetric(ctx context.Context, name string, value float64, unit string, dimensions map[string]string) error {
	if !p.enabled {
		return nil
	}

	queue := dimensions["queue"]

	switch name {
	case MetricPolls:
		p.polls.WithLabelValues(queue, dimensions["status"]).Add(value)
	case MetricMessagesReceived:
		p.messagesReceived.WithLabelValues(queue).Add(value)
	case MetricMessagesAcked:
		p.messagesAcked.WithLabelValues(queue).Add(value)
	case MetricMessagesNacked:
		p.messagesNacked.WithLabelValues(queue).Add(value)
	case MetricErrors:
		p.errorsTotal.WithLabelValues(queue, dimensions["kind"]).Add(value)
	case MetricPollDuration:
		p.pollDuration.WithLabelValues(queue).Observe(value)
	case MetricMessageDuration:
		p.messageDuration.WithLabelValues(queue).Observe(value)
	case MetricInFlight:
		p.inFlight.WithLabelValues(queue).Set(value)
	case MetricQueueDepth:
		p.queueDepth.WithLabelValues(queue).Set(value)
	}
	return nil
}

// Increment implements the Provider interface
func (p *PrometheusProvider) Increment(ctx context.Context, name string, dimensions map[string]string) error {
	return p.PutMetric(ctx, name, 1.0, "Count", dimensions)
}

// RecordDuration implements the Provider interface
func (p *PrometheusProvider) RecordDuration(ctx context.Context, name string, duration float64, dimensions map[string]string) error {
	return p.PutMetric(ctx, name, duration, "Milliseconds", dimensions)
}

// IncPolls counts a completed receive call
func (p *PrometheusProvider) IncPolls(ctx context.Context, queue, status string) {
	if p.enabled {
		p.polls.WithLabelValues(queue, status).Inc()
	}
}

// ObservePollDuration records the duration of a receive call
func (p *PrometheusProvider) ObservePollDuration(ctx context.Context, queue string, durationMs float64) {
	if p.enabled {
		p.pollDuration.WithLabelValues(queue).Observe(durationMs)
	}
}

// AddMessagesReceived counts dispatched messages
func (p *PrometheusProvider) AddMessagesReceived(ctx context.Context, queue string, count int) {
	if p.enabled && count > 0 {
		p.messagesReceived.WithLabelValues(queue).Add(float64(count))
	}
}

// IncMessagesAcked counts deleted messages
func (p *PrometheusProvider) IncMessagesAcked(ctx context.Context, queue string) {
	if p.enabled {
		p.messagesAcked.WithLabelValues(queue).Inc()
	}
}

// IncMessagesNacked counts messages returned to the queue
func (p *PrometheusProvider) IncMessagesNacked(ctx context.Context, queue string) {
	if p.enabled {
		p.messagesNacked.WithLabelValues(queue).Inc()
	}
}

// IncErrors counts an error by kind
func (p *PrometheusProvider) IncErrors(ctx context.Context, queue, kind string) {
	if p.enabled {
		p.errorsTotal.WithLabelValues(queue, kind).Inc()
	}
}

// ObserveMessageDuration records dispatch-to-ack latency
func (p *PrometheusProvider) ObserveMessageDuration(ctx context.Context, queue string, durationMs float64) {
	if p.enabled {
		p.messageDuration.WithLabelValues(queue).Observe(durationMs)
	}
}

// SetInFlight sets the in-flight message gauge
func (p *PrometheusProvider) SetInFlight(ctx context.Context, queue string, count float64) {
	if p.enabled {
		p.inFlight.WithLabelValues(queue).Set(count)
	}
}

// SetQueueDepth sets the current queue depth
func (p *PrometheusProvider) SetQueueDepth(ctx context.Context, queue string, depth float64) {
	if p.enabled {
		p.queueDepth.WithLabelValues(queue).Set(depth)
	}
}
