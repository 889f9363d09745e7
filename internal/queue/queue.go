package queue

import (
	"context"
	"errors"
	"fmt"
)

// Named queues consumed by the pipeline workers. Retry state is owned by
// the broker; the pipeline only enqueues and is invoked per message.
const (
	// QueueCallbacks carries normalized provider callback tasks.
	QueueCallbacks = "callbacks"
	// QueueServiceCallbacks carries outbound webhook delivery tasks.
	QueueServiceCallbacks = "service-callbacks"
	// QueueContactLookups carries recipient contact-resolution tasks.
	QueueContactLookups = "contact-lookups"
)

// ErrReject tells the consumer to reject the message without requeueing,
// dead-lettering it as a fault record. Any other handler error is nacked
// and redelivered.
var ErrReject = errors.New("reject message")

// Publisher publishes task messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
	Close() error
}

// MessageHandler handles a consumed queue message body.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer consumes task messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// WorkQueueNames returns every queue the worker pool consumes.
func WorkQueueNames() []string {
	return []string{QueueCallbacks, QueueServiceCallbacks, QueueContactLookups}
}

// RetryQueueName returns the delayed retry queue feeding back into a work
// queue, e.g. retry.callbacks.
func RetryQueueName(queue string) string {
	return fmt.Sprintf("retry.%s", queue)
}

// DLQName returns the dead-letter queue for a work queue, e.g. dlq.callbacks.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}
