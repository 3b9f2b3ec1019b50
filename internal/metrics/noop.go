package metrics

import (
	"context"
)

// NoopProvider is a no-operation metrics provider.
// Used when metrics are disabled or as a fallback.
type NoopProvider struct{}

// NewNoopProvider creates a new no-operation metrics provider
func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

var _ Provider = (*NoopProvider)(nil)

// Name returns the provider name
func (n *NoopProvider) Name() string {
	return string(ProviderTypeNoop)
}

// Enabled returns false as this provider does nothing
func (n *NoopProvider) Enabled() bool {
	return false
}

func (n *NoopProvider) PutMetric(ctx context.Context, name string, value float64, unit string, dimensions map[string]string) error {
	return nil
}

func (n *NoopProvider) Increment(ctx context.Context, name string, dimensions map[string]string) error {
	return nil
}

func (n *NoopProvider) RecordDuration(ctx context.Context, name string, duration float64, dimensions map[string]string) error {
	return nil
}

// Consumer metrics are discarded.

func (n *NoopProvider) IncPolls(ctx context.Context, queue, status string) {
}

func (n *NoopProvider) ObservePollDuration(ctx context.Context, queue string, durationMs float64) {
}

func (n *NoopProvider) AddMessagesReceived(ctx context.Context, queue string, count int) {
}

func (n *NoopProvider) IncMessagesAcked(ctx context.Context, queue string) {
}

func (n *NoopProvider) IncMessagesNacked(ctx context.Context, queue string) {
}

func (n *NoopProvider) IncErrors(ctx context.Context, queue, kind string) {
}

func (n *NoopProvider) ObserveMessageDuration(ctx context.Context, queue string, durationMs float64) {
}

func (n *NoopProvider) SetInFlight(ctx context.Context, queue string, count float64) {
}

func (n *NoopProvider) SetQueueDepth(ctx context.Context, queue string, depth float64) {
}
