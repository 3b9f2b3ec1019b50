package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"
)

// cloudWatchMaxBatch is the maximum number of datums per PutMetricData request
const cloudWatchMaxBatch = 20

// CloudWatchAPI is the subset of the CloudWatch client used by the provider (for testing)
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ CloudWatchAPI = (*cloudwatch.Client)(nil)

// CloudWatchProvider sends metrics to AWS CloudWatch. The convenience
// methods buffer datums and send them in batches of 20; Flush sends the rest.
type CloudWatchProvider struct {
	client    CloudWatchAPI
	namespace string
	logger    zerolog.Logger
	buffer    []types.MetricDatum
	mutex     sync.Mutex
	batchSize int
	enabled   bool
}

// CloudWatchConfig holds configuration for CloudWatch provider
type CloudWatchConfig struct {
	Enabled   bool
	Namespace string
}

// NewCloudWatchProvider creates a new CloudWatch metrics provider
func NewCloudWatchProvider(client CloudWatchAPI, cfg CloudWatchConfig, logger zerolog.Logger) *CloudWatchProvider {
	return &CloudWatchProvider{
		client:    client,
		namespace: cfg.Namespace,
		logger:    logger,
		buffer:    make([]types.MetricDatum, 0, cloudWatchMaxBatch),
		batchSize: cloudWatchMaxBatch,
		enabled:   cfg.Enabled && client != nil,
	}
}

var _ Provider = (*CloudWatchProvider)(nil)
var _ Flusher = (*CloudWatchProvider)(nil)

// Name returns the provider name
func (s *CloudWatchProvider) Name() string {
	return string(ProviderTypeCloudWatch)
}

// Enabled returns whether CloudWatch metrics are enabled
func (s *CloudWatchProvider) Enabled() bool {
	return s.enabled
}

// PutMetric sends a single metric to CloudWatch immediately
func (s *CloudWatchProvider) PutMetric(ctx context.Context, name string, value float64, unit string, dimensions map[string]string) error {
	if !s.enabled {
		return nil
	}

	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: []types.MetricDatum{s.createMetricDatum(name, value, unit, dimensions)},
	})
	if err != nil {
		s.logger.Warn().
			Str("metric", name).
			Err(err).
			Msg("Failed to put CloudWatch metric")
		return err
	}
	return nil
}

// Increment sends a counter metric immediately
func (s *CloudWatchProvider) Increment(ctx context.Context, name string, dimensions map[string]string) error {
	return s.PutMetric(ctx, name, 1.0, string(types.StandardUnitCount), dimensions)
}

// RecordDuration sends a duration metric in milliseconds immediately
func (s *CloudWatchProvider) RecordDuration(ctx context.Context, name string, duration float64, dimensions map[string]string) error {
	return s.PutMetric(ctx, name, duration, string(types.StandardUnitMilliseconds), dimensions)
}

func (s *CloudWatchProvider) IncPolls(ctx context.Context, queue, status string) {
	s.BufferMetric(ctx, MetricPolls, 1, string(types.StandardUnitCount), map[string]string{"queue": queue, "status": status})
}

func (s *CloudWatchProvider) ObservePollDuration(ctx context.Context, queue string, durationMs float64) {
	s.BufferMetric(ctx, MetricPollDuration, durationMs, string(types.StandardUnitMilliseconds), map[string]string{"queue": queue})
}

func (s *CloudWatchProvider) AddMessagesReceived(ctx context.Context, queue string, count int) {
	if count <= 0 {
		return
	}
	s.BufferMetric(ctx, MetricMessagesReceived, float64(count), string(types.StandardUnitCount), map[string]string{"queue": queue})
}

func (s *CloudWatchProvider) IncMessagesAcked(ctx context.Context, queue string) {
	s.BufferMetric(ctx, MetricMessagesAcked, 1, string(types.StandardUnitCount), map[string]string{"queue": queue})
}

func (s *CloudWatchProvider) IncMessagesNacked(ctx context.Context, queue string) {
	s.BufferMetric(ctx, MetricMessagesNacked, 1, string(types.StandardUnitCount), map[string]string{"queue": queue})
}

func (s *CloudWatchProvider) IncErrors(ctx context.Context, queue, kind string) {
	s.BufferMetric(ctx, MetricErrors, 1, string(types.StandardUnitCount), map[string]string{"queue": queue, "kind": kind})
}

func (s *CloudWatchProvider) ObserveMessageDuration(ctx context.Context, queue string, durationMs float64) {
	s.BufferMetric(ctx, MetricMessageDuration, durationMs, string(types.StandardUnitMilliseconds), map[string]string{"queue": queue})
}

func (s *CloudWatchProvider) SetInFlight(ctx context.Context, queue string, count float64) {
	s.BufferMetric(ctx, MetricInFlight, count, string(types.StandardUnitCount), map[string]string{"queue": queue})
}

func (s *CloudWatchProvider) SetQueueDepth(ctx context.Context, queue string, depth float64) {
	s.BufferMetric(ctx, MetricQueueDepth, depth, string(types.StandardUnitCount), map[string]string{"queue": queue})
}

// BufferMetric adds a metric to the buffer and sends a full batch once 20 datums are pending
func (s *CloudWatchProvider) BufferMetric(ctx context.Context, name string, value float64, unit string, dimensions map[string]string) {
	if !s.enabled {
		return
	}

	s.mutex.Lock()
	s.buffer = append(s.buffer, s.createMetricDatum(name, value, unit, dimensions))
	var batch []types.MetricDatum
	if len(s.buffer) >= s.batchSize {
		batch = s.buffer
		s.buffer = make([]types.MetricDatum, 0, s.batchSize)
	}
	s.mutex.Unlock()

	if batch != nil {
		_ = s.send(ctx, batch)
	}
}

// Pending returns the number of buffered datums
func (s *CloudWatchProvider) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.buffer)
}

// Flush sends all buffered metrics to CloudWatch
func (s *CloudWatchProvider) Flush(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	s.mutex.Lock()
	pending := s.buffer
	s.buffer = make([]types.MetricDatum, 0, s.batchSize)
	s.mutex.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if err := s.send(ctx, pending); err != nil {
		return err
	}

	s.logger.Debug().Int("count", len(pending)).Msg("Flushed CloudWatch metrics")
	return nil
}

func (s *CloudWatchProvider) send(ctx context.Context, datums []types.MetricDatum) error {
	for i := 0; i < len(datums); i += s.batchSize {
		end := i + s.batchSize
		if end > len(datums) {
			end = len(datums)
		}

		batch := datums[i:end]
		_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(s.namespace),
			MetricData: batch,
		})
		if err != nil {
			s.logger.Warn().
				Int("batch_size", len(batch)).
				Err(err).
				Msg("Failed to send CloudWatch metrics batch")
			return err
		}
	}
	return nil
}

func (s *CloudWatchProvider) createMetricDatum(name string, value float64, unit string, dimensions map[string]string) types.MetricDatum {
	datum := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       types.StandardUnit(unit),
		Timestamp:  aws.Time(time.Now()),
	}

	if len(dimensions) > 0 {
		cwDimensions := make([]types.Dimension, 0, len(dimensions))
		for k, v := range dimensions {
			// CloudWatch rejects empty dimension values
			if v == "" {
				v = "unknown"
			}
			cwDimensions = append(cwDimensions, types.Dimension{
				Name:  aws.String(k),
				Value: aws.String(v),
			})
		}
		datum.Dimensions = cwDimensions
	}

	return datum
}
