package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/config"
)

// FactoryConfig holds configuration for creating metrics providers
type FactoryConfig struct {
	// CloudWatch configuration
	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchClient    CloudWatchAPI

	// Prometheus configuration
	PrometheusEnabled   bool
	PrometheusNamespace string
	PrometheusSubsystem string
	PrometheusRegistry  prometheus.Registerer

	Logger zerolog.Logger
}

// Factory creates metrics providers based on configuration
type Factory struct {
	config FactoryConfig
}

// NewFactory creates a new metrics factory
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{config: cfg}
}

// NewFactoryFromConfig creates a factory from the application config
func NewFactoryFromConfig(cfg *config.Config, cwClient CloudWatchAPI, logger zerolog.Logger) *Factory {
	return &Factory{
		config: FactoryConfig{
			CloudWatchEnabled:   cfg.Metrics.CloudWatch.Enabled,
			CloudWatchNamespace: cfg.Metrics.CloudWatch.Namespace,
			CloudWatchClient:    cwClient,
			PrometheusEnabled:   cfg.Metrics.Prometheus.Enabled,
			PrometheusNamespace: cfg.Metrics.Prometheus.Namespace,
			PrometheusSubsystem: cfg.Metrics.Prometheus.Subsystem,
			Logger:              logger,
		},
	}
}

// Create returns a CompositeProvider when both backends are enabled, the
// single enabled provider otherwise, or a NoopProvider when none is.
// Prometheus collectors are registered before returning.
func (f *Factory) Create() Provider {
	var providers []Provider

	if cw := f.CreateCloudWatch(); cw != nil {
		providers = append(providers, cw)
		f.config.Logger.Debug().Msg("CloudWatch metrics provider created")
	}

	if prom := f.CreatePrometheus(); prom != nil {
		if err := prom.Register(); err != nil {
			f.config.Logger.Warn().Err(err).Msg("Failed to register Prometheus metrics")
		}
		providers = append(providers, prom)
		f.config.Logger.Debug().Msg("Prometheus metrics provider created")
	}

	switch len(providers) {
	case 0:
		f.config.Logger.Debug().Msg("No metrics providers enabled, using NoopProvider")
		return NewNoopProvider()
	case 1:
		return providers[0]
	default:
		f.config.Logger.Debug().
			Int("provider_count", len(providers)).
			Msg("Multiple metrics providers enabled, using CompositeProvider")
		return NewCompositeProvider(providers...)
	}
}

// CreateCloudWatch creates only a CloudWatch provider
func (f *Factory) CreateCloudWatch() *CloudWatchProvider {
	if !f.config.CloudWatchEnabled || f.config.CloudWatchClient == nil {
		return nil
	}
	return NewCloudWatchProvider(
		f.config.CloudWatchClient,
		CloudWatchConfig{Enabled: true, Namespace: f.config.CloudWatchNamespace},
		f.config.Logger,
	)
}

// CreatePrometheus creates only a Prometheus provider
func (f *Factory) CreatePrometheus() *PrometheusProvider {
	if !f.config.PrometheusEnabled {
		return nil
	}
	return NewPrometheusProvider(f.config.Logger, PrometheusConfig{
		Enabled:   true,
		Namespace: f.config.PrometheusNamespace,
		Subsystem: f.config.PrometheusSubsystem,
		Registry:  f.config.PrometheusRegistry,
	})
}

// WithPrometheusRegistry sets a custom Prometheus registry
func (f *Factory) WithPrometheusRegistry(registry prometheus.Registerer) *Factory {
	f.config.PrometheusRegistry = registry
	return f
}

// WithCloudWatchClient sets the CloudWatch client
func (f *Factory) WithCloudWatchClient(client CloudWatchAPI) *Factory {
	f.config.CloudWatchClient = client
	return f
}
