package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// CompositeProvider aggregates multiple metrics providers and delegates calls to all of them.
// This allows sending metrics to CloudWatch and Prometheus at the same time.
type CompositeProvider struct {
	providers []Provider
}

// NewCompositeProvider creates a new composite provider.
// Only enabled providers are included.
func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	enabled := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil && p.Enabled() {
			enabled = append(enabled, p)
		}
	}
	return &CompositeProvider{providers: enabled}
}

var _ Provider = (*CompositeProvider)(nil)
var _ HTTPProvider = (*CompositeProvider)(nil)
var _ CollectorProvider = (*CompositeProvider)(nil)
var _ Flusher = (*CompositeProvider)(nil)

// Name returns the provider name
func (c *CompositeProvider) Name() string {
	return string(ProviderTypeComposite)
}

// Enabled returns true if at least one provider is enabled
func (c *CompositeProvider) Enabled() bool {
	return len(c.providers) > 0
}

// PutMetric sends a metric to all providers and returns the last error
func (c *CompositeProvider) PutMetric(ctx context.Context, name string, value float64, unit string, dimensions map[string]string) error {
	var lastErr error
	for _, p := range c.providers {
		if err := p.PutMetric(ctx, name, value, unit, dimensions); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Increment increments a counter on all providers
func (c *CompositeProvider) Increment(ctx context.Context, name string, dimensions map[string]string) error {
	var lastErr error
	for _, p := range c.providers {
		if err := p.Increment(ctx, name, dimensions); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// RecordDuration records duration on all providers
func (c *CompositeProvider) RecordDuration(ctx context.Context, name string, duration float64, dimensions map[string]string) error {
	var lastErr error
	for _, p := range c.providers {
		if err := p.RecordDuration(ctx, name, duration, dimensions); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *CompositeProvider) IncPolls(ctx context.Context, queue, status string) {
	for _, p := range c.providers {
		p.IncPolls(ctx, queue, status)
	}
}

func (c *CompositeProvider) ObservePollDuration(ctx context.Context, queue string, durationMs float64) {
	for _, p := range c.providers {
		p.ObservePollDuration(ctx, queue, durationMs)
	}
}

func (c *CompositeProvider) AddMessagesReceived(ctx context.Context, queue string, count int) {
	for _, p := range c.providers {
		p.AddMessagesReceived(ctx, queue, count)
	}
}

func (c *CompositeProvider) IncMessagesAcked(ctx context.Context, queue string) {
	for _, p := range c.providers {
		p.IncMessagesAcked(ctx, queue)
	}
}

func (c *CompositeProvider) IncMessagesNacked(ctx context.Context, queue string) {
	for _, p := range c.providers {
		p.IncMessagesNacked(ctx, queue)
	}
}

func (c *CompositeProvider) IncErrors(ctx context.Context, queue, kind string) {
	for _, p := range c.providers {
		p.IncErrors(ctx, queue, kind)
	}
}

func (c *CompositeProvider) ObserveMessageDuration(ctx context.Context, queue string, durationMs float64) {
	for _, p := range c.providers {
		p.ObserveMessageDuration(ctx, queue, durationMs)
	}
}

func (c *CompositeProvider) SetInFlight(ctx context.Context, queue string, count float64) {
	for _, p := range c.providers {
		p.SetInFlight(ctx, queue, count)
	}
}

func (c *CompositeProvider) SetQueueDepth(ctx context.Context, queue string, depth float64) {
	for _, p := range c.providers {
		p.SetQueueDepth(ctx, queue, depth)
	}
}

// Flush flushes every buffering provider
func (c *CompositeProvider) Flush(ctx context.Context) error {
	var lastErr error
	for _, p := range c.providers {
		if f, ok := p.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// Handler returns the HTTP handler from the first HTTPProvider found, or nil.
func (c *CompositeProvider) Handler() http.Handler {
	for _, p := range c.providers {
		if hp, ok := p.(HTTPProvider); ok {
			return hp.Handler()
		}
	}
	return nil
}

// HandlerFunc returns the HTTP handler func from the first HTTPProvider found, or nil.
func (c *CompositeProvider) HandlerFunc() http.HandlerFunc {
	if h := c.Handler(); h != nil {
		return h.ServeHTTP
	}
	return nil
}

// Collectors returns all Prometheus collectors from all CollectorProviders.
func (c *CompositeProvider) Collectors() []prometheus.Collector {
	var collectors []prometheus.Collector
	for _, p := range c.providers {
		if cp, ok := p.(CollectorProvider); ok {
			collectors = append(collectors, cp.Collectors()...)
		}
	}
	return collectors
}

// Register registers all CollectorProviders.
func (c *CompositeProvider) Register() error {
	var lastErr error
	for _, p := range c.providers {
		if cp, ok := p.(CollectorProvider); ok {
			if err := cp.Register(); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// GetProvider returns the first provider of the given type, or nil if not found.
func (c *CompositeProvider) GetProvider(providerType ProviderType) Provider {
	for _, p := range c.providers {
		if p.Name() == string(providerType) {
			return p
		}
	}
	return nil
}

// Providers returns all underlying providers.
func (c *CompositeProvider) Providers() []Provider {
	return c.providers
}
