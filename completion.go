package sqsconsumer

import (
	"context"
	"sync"
	"time"
)

// newAckFunc returns the one-shot completion callback for msg.
func (c *Consumer) newAckFunc(msg Message, received time.Time) AckFunc {
	var once sync.Once
	return func(err error) {
		called := false
		once.Do(func() {
			called = true
			c.complete(msg, received, err)
		})
		if !called {
			c.logger.Warn().
				Str("message_id", msg.MessageID).
				Msg("Message already acknowledged, ignoring")
		}
	}
}

// complete frees the message's slot, re-checks the gate and then deletes
// the message (err == nil) or makes it visible again (err != nil).
func (c *Consumer) complete(msg Message, received time.Time, err error) {
	ctx := context.Background()

	c.mu.Lock()
	c.numActive--
	inFlight := c.numActive
	c.mu.Unlock()

	c.metrics.SetInFlight(ctx, c.queueURL, float64(inFlight))
	c.metrics.ObserveMessageDuration(ctx, c.queueURL, float64(time.Since(received).Milliseconds()))

	c.tryPoll()

	if msg.ReceiptHandle == "" {
		c.logger.Warn().
			Str("message_id", msg.MessageID).
			Msg("Message has no receipt handle, skipping acknowledgement")
		return
	}

	if err != nil {
		c.returnToQueue(ctx, msg, err)
		return
	}
	c.deleteMessage(ctx, msg)
}

func (c *Consumer) deleteMessage(ctx context.Context, msg Message) {
	if err := c.client.DeleteMessage(ctx, msg.ReceiptHandle); err != nil {
		c.reportError(&AckError{Op: OpDelete, MessageID: msg.MessageID, Err: err})
		return
	}
	c.metrics.IncMessagesAcked(ctx, c.queueURL)
	c.logger.Debug().
		Str("message_id", msg.MessageID).
		Msg("Message deleted")
}

// returnToQueue resets the visibility timeout to 0 so the message is
// redelivered right away.
func (c *Consumer) returnToQueue(ctx context.Context, msg Message, cause error) {
	c.metrics.IncMessagesNacked(ctx, c.queueURL)
	c.logger.Debug().
		Str("message_id", msg.MessageID).
		Err(cause).
		Msg("Returning message to queue")

	if err := c.client.ChangeVisibilityTimeout(ctx, msg.ReceiptHandle, 0); err != nil {
		c.reportError(&AckError{Op: OpChangeVisibility, MessageID: msg.MessageID, Err: err})
	}
}
