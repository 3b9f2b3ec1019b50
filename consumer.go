package sqsconsumer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/contracts"
	"github.com/our-edu/go-sqs-consumer/internal/metrics"
)

// drainInterval is how often Stop checks the in-flight count.
const drainInterval = 10 * time.Millisecond

// Consumer long-polls one queue and hands every message to a Handler,
// keeping at most batchSize messages in flight.
type Consumer struct {
	id               string
	queueURL         string
	client           QueueClient
	handler          Handler
	batchSize        int
	waitTimeSeconds  int
	attributeNames   []string
	watchdogInterval time.Duration
	logger           zerolog.Logger
	metrics          metrics.Provider
	closers          []func() error

	mu           sync.Mutex
	state        State
	active       bool
	numActive    int
	request      *receiveRequest
	baseCtx      context.Context
	stopWatchdog chan struct{}
	// generation counts Start calls; a Start whose first receive outlives
	// a Stop and a newer Start must not arm a second watchdog.
	generation uint64

	hooksMu sync.RWMutex
	onError []func(error)
	onPoll  []func()
}

// ID returns the consumer instance id used in logs.
func (c *Consumer) ID() string {
	return c.id
}

// QueueURL returns the queue the consumer polls.
func (c *Consumer) QueueURL() string {
	return c.queueURL
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight returns the number of messages dispatched but not yet acked.
func (c *Consumer) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numActive
}

// OnError registers a callback invoked once per reported failure.
func (c *Consumer) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	c.hooksMu.Lock()
	c.onError = append(c.onError, fn)
	c.hooksMu.Unlock()
}

// OnPoll registers a callback invoked after every completed receive.
func (c *Consumer) OnPoll(fn func()) {
	if fn == nil {
		return
	}
	c.hooksMu.Lock()
	c.onPoll = append(c.onPoll, fn)
	c.hooksMu.Unlock()
}

func (c *Consumer) reportError(err error) {
	kind := ClassifyError(err)
	c.logger.Error().
		Err(err).
		Str("kind", kind.String()).
		Msg("Consumer error")
	c.metrics.IncErrors(context.Background(), c.queueURL, kind.String())

	c.hooksMu.RLock()
	hooks := c.onError
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (c *Consumer) notifyPoll() {
	c.hooksMu.RLock()
	hooks := c.onPoll
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// Start begins consuming. The first receive runs before Start returns, so
// a bad queue URL or bad credentials fail here instead of in the
// background. ctx bounds that first receive; its values (not its
// cancellation) are passed on to handlers.
//
// Example:
//
//	if err := consumer.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer consumer.Stop(20 * time.Second)
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateStarting
	c.active = true
	c.generation++
	gen := c.generation
	c.baseCtx = context.WithoutCancel(ctx)
	req := c.claimRequestLocked(ctx)
	c.mu.Unlock()

	c.logger.Info().
		Int("batch_size", c.batchSize).
		Int("wait_time_seconds", c.waitTimeSeconds).
		Msg("Starting consumer")

	if err := c.poll(req); err != nil {
		c.mu.Lock()
		if c.generation == gen && c.state == StateStarting {
			c.active = false
			c.state = StateStopped
		}
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("First receive failed, consumer not started")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.state != StateStarting {
		// Stopped, and possibly restarted, while the first receive was running.
		return nil
	}
	c.state = StateRunning
	c.stopWatchdog = make(chan struct{})
	go c.watchdog(c.stopWatchdog)

	c.logger.Info().Msg("Consumer running")
	return nil
}

// watchdog re-checks the gate periodically in case no completion did.
func (c *Consumer) watchdog(stop <-chan struct{}) {
	ticker := time.NewTicker(c.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tryPoll()
		}
	}
}

// Abort cancels the outstanding receive, if any. Messages it would have
// returned stay invisible until their visibility timeout expires.
// Abort does not stop the consumer and can be called any number of times.
func (c *Consumer) Abort() {
	c.mu.Lock()
	req := c.request
	c.request = nil
	if req != nil {
		req.aborted = true
	}
	c.mu.Unlock()

	if req != nil {
		req.cancel()
		c.logger.Debug().Msg("Outstanding receive aborted")
	}
}

// Stop stops polling and waits up to timeout for in-flight messages to be
// acked. A zero timeout returns immediately. Handlers still running are
// never cancelled. Stop returns ErrDrainTimeout if messages were still in
// flight when the timeout elapsed. Stopping a stopped consumer is a no-op.
func (c *Consumer) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if c.state == StateStopped || c.state == StateStopping {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	c.state = StateStopping
	stop := c.stopWatchdog
	c.stopWatchdog = nil
	c.mu.Unlock()

	c.logger.Info().
		Dur("timeout", timeout).
		Int("in_flight", c.InFlight()).
		Msg("Stopping consumer")

	c.Abort()
	if stop != nil {
		close(stop)
	}

	err := c.drain(timeout)
	if err != nil {
		c.logger.Warn().
			Int("in_flight", c.InFlight()).
			Msg("Graceful timeout elapsed with messages in flight")
	}

	if f, ok := c.metrics.(metrics.Flusher); ok {
		if ferr := f.Flush(context.Background()); ferr != nil {
			c.logger.Warn().Err(ferr).Msg("Failed to flush metrics")
		}
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	c.logger.Info().Msg("Consumer stopped")
	return err
}

func (c *Consumer) drain(timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		if c.InFlight() <= 0 {
			return nil
		}
		select {
		case <-deadline.C:
			if c.InFlight() <= 0 {
				return nil
			}
			return ErrDrainTimeout
		case <-ticker.C:
		}
	}
}

// Close stops the consumer without waiting and releases the connections
// created by New.
func (c *Consumer) Close() error {
	c.Stop(0)

	var lastErr error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			lastErr = err
		}
	}
	c.closers = nil
	return lastErr
}

// QueueDepth returns the approximate number of visible messages and
// records it as a metric. The queue client must support depth reporting.
func (c *Consumer) QueueDepth(ctx context.Context) (int64, error) {
	reporter, ok := c.client.(contracts.DepthReporter)
	if !ok {
		return 0, ErrDepthUnsupported
	}
	depth, err := reporter.GetQueueDepth(ctx)
	if err != nil {
		return 0, err
	}
	c.metrics.SetQueueDepth(ctx, c.queueURL, float64(depth))
	return depth, nil
}

// PrometheusHandler returns the HTTP handler for Prometheus metrics,
// or nil if Prometheus metrics are not enabled.
//
// Example with net/http:
//
//	http.Handle("/metrics", consumer.PrometheusHandler())
//	http.ListenAndServe(":8080", nil)
func (c *Consumer) PrometheusHandler() http.Handler {
	if hp, ok := c.metrics.(metrics.HTTPProvider); ok {
		return hp.Handler()
	}
	return nil
}

// PrometheusEnabled returns true if Prometheus metrics are enabled.
func (c *Consumer) PrometheusEnabled() bool {
	return c.PrometheusHandler() != nil
}

// Metrics returns the metrics provider in use.
func (c *Consumer) Metrics() MetricsProvider {
	return c.metrics
}
