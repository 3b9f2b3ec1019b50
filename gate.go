package sqsconsumer

import "github.com/our-edu/go-sqs-consumer/internal/contracts"

// sizeNextReceive returns how many messages the next receive may request:
// the remaining capacity, clamped to 1..10. It never returns 0 so a
// receive issued over capacity still makes progress.
func sizeNextReceive(batchSize, numActive int) int {
	n := batchSize - numActive
	if n < 1 {
		return 1
	}
	if n > contracts.MaxReceiveBatch {
		return contracts.MaxReceiveBatch
	}
	return n
}

// mayPollNow is the only gate for issuing a receive.
func mayPollNow(active, requestOutstanding bool, numActive, batchSize int) bool {
	return active && !requestOutstanding && numActive < batchSize
}
