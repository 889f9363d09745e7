package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhq/delivery-pipeline/internal/queue"
)

const minWorkerConcurrency = 1

// Worker consumes the three work queues and routes each to its processor
// handler. Concurrency is per queue: n workers means n consumers on every
// queue.
type Worker struct {
	processor   *Processor
	consumer    queue.Consumer
	logger      *zap.Logger
	concurrency int
}

func NewWorker(processor *Processor, consumer queue.Consumer, concurrency int, logger *zap.Logger) (*Worker, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		processor:   processor,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the work queues until context cancellation.
func (w *Worker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	handlers := map[string]queue.MessageHandler{
		queue.QueueCallbacks:        w.processor.HandleDeliveryTask,
		queue.QueueServiceCallbacks: w.processor.HandleCallbackTask,
		queue.QueueContactLookups:   w.processor.HandleContactLookupTask,
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, queueName := range queue.WorkQueueNames() {
		handler, ok := handlers[queueName]
		if !ok {
			return fmt.Errorf("no handler for queue %s", queueName)
		}

		for i := 0; i < w.concurrency; i++ {
			queueName := queueName
			workerID := i + 1

			g.Go(func() error {
				w.logger.Info("worker started",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
				)

				if err := w.consumer.Consume(groupCtx, queueName, handler); err != nil {
					w.logger.Error("worker stopped with error",
						zap.Int("workerId", workerID),
						zap.String("queue", queueName),
						zap.Error(err),
					)
					return err
				}

				w.logger.Info("worker stopped",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
				)
				return nil
			})
		}
	}

	return g.Wait()
}
