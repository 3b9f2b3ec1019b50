package sqsconsumer

import (
	"context"
	"errors"
	"time"

	"github.com/our-edu/go-sqs-consumer/internal/metrics"
)

// receiveGrace is added to the long-poll wait to bound a receive call.
var receiveGrace = 5 * time.Second

// receiveRequest is the single outstanding receive call.
type receiveRequest struct {
	ctx     context.Context
	cancel  context.CancelFunc
	size    int
	aborted bool

	// handlerCtx keeps the parent's values but not its cancellation;
	// handlers outlive the receive.
	handlerCtx context.Context
}

func (c *Consumer) receiveTimeout() time.Duration {
	return time.Duration(c.waitTimeSeconds)*time.Second + receiveGrace
}

// claimRequestLocked registers a new outstanding receive. c.mu must be held.
func (c *Consumer) claimRequestLocked(parent context.Context) *receiveRequest {
	ctx, cancel := context.WithTimeout(parent, c.receiveTimeout())
	req := &receiveRequest{
		ctx:        ctx,
		cancel:     cancel,
		size:       sizeNextReceive(c.batchSize, c.numActive),
		handlerCtx: context.WithoutCancel(parent),
	}
	c.request = req
	return req
}

// releaseRequest clears the outstanding marker if req still owns it and
// reports whether req was aborted.
func (c *Consumer) releaseRequest(req *receiveRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.request == req {
		c.request = nil
	}
	return req.aborted
}

// tryPoll issues a receive in the background when the gate allows it.
// It is safe to call at any time; it does nothing while a receive is
// outstanding, the consumer is inactive, or capacity is exhausted.
func (c *Consumer) tryPoll() {
	c.mu.Lock()
	if !mayPollNow(c.active, c.request != nil, c.numActive, c.batchSize) {
		c.mu.Unlock()
		return
	}
	req := c.claimRequestLocked(c.baseCtx)
	c.mu.Unlock()

	go func() {
		if err := c.poll(req); err != nil {
			c.reportError(err)
		}
	}()
}

// poll runs one receive call, dispatches what it returns and chains the
// next receive. A receive cancelled by Abort returns nil.
func (c *Consumer) poll(req *receiveRequest) error {
	ctx := context.Background()
	start := time.Now()

	messages, err := c.client.ReceiveMessages(req.ctx, ReceiveRequest{
		MaxMessages:           req.size,
		WaitTimeSeconds:       c.waitTimeSeconds,
		MessageAttributeNames: c.attributeNames,
	})
	timedOut := errors.Is(req.ctx.Err(), context.DeadlineExceeded)
	req.cancel()
	aborted := c.releaseRequest(req)

	c.metrics.ObservePollDuration(ctx, c.queueURL, float64(time.Since(start).Milliseconds()))

	if err != nil {
		if aborted {
			c.logger.Debug().Err(err).Msg("Receive aborted")
			return nil
		}
		status := metrics.PollStatusError
		if timedOut {
			status = metrics.PollStatusTimeout
		}
		c.metrics.IncPolls(ctx, c.queueURL, status)
		return &ReceiveError{QueueURL: c.queueURL, TimedOut: timedOut, Err: err}
	}

	if len(messages) == 0 {
		c.metrics.IncPolls(ctx, c.queueURL, metrics.PollStatusEmpty)
	} else {
		c.metrics.IncPolls(ctx, c.queueURL, metrics.PollStatusMessages)
		c.metrics.AddMessagesReceived(ctx, c.queueURL, len(messages))
		c.logger.Debug().
			Int("count", len(messages)).
			Int("requested", req.size).
			Msg("Received messages")
	}

	c.notifyPoll()

	for _, msg := range messages {
		c.dispatch(req.handlerCtx, msg)
	}

	c.tryPoll()
	return nil
}

// dispatch counts msg as in flight and runs the handler without waiting for it.
func (c *Consumer) dispatch(ctx context.Context, msg Message) {
	c.mu.Lock()
	c.numActive++
	inFlight := c.numActive
	c.mu.Unlock()
	c.metrics.SetInFlight(context.Background(), c.queueURL, float64(inFlight))

	ack := c.newAckFunc(msg, time.Now())
	go c.runHandler(ctx, msg, ack)
}

// runHandler invokes the handler and reports a returned error or a panic
// as a HandlerFault. Neither completes the message.
func (c *Consumer) runHandler(ctx context.Context, msg Message, ack AckFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.reportError(&HandlerFault{MessageID: msg.MessageID, Panic: r})
		}
	}()

	if err := c.handler(messageContext(ctx, c.queueURL, msg), msg, ack); err != nil {
		c.reportError(&HandlerFault{MessageID: msg.MessageID, Err: err})
	}
}
