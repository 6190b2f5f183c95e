package queue

import (
	"context"
	"fmt"
)

// Publisher publishes trial conversion requests to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ConversionMessage) error
	Close() error
}

const (
	// ConversionQueue is consumed by the subscription service, which decides
	// whether the student is converted.
	ConversionQueue = "trial.conversion"

	// conversionRoutingKey routes dead-lettered conversion requests.
	conversionRoutingKey = "trial.conversion"
)

// DLQName returns the dead-letter queue name for a queue, e.g. dlq.trial.conversion.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// QueueNames returns every queue the engine declares, work queues first.
func QueueNames() []string {
	return []string{ConversionQueue, DLQName(ConversionQueue)}
}
