// Package retry implements the single retry/failure policy wrapped around
// every asynchronous task. Tasks never run their own retry loops; they
// classify failures through taskerr and let the policy reschedule or
// escalate.
package retry

import (
	"context"
	"fmt"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/observability"
	"github.com/notifyhq/delivery-pipeline/internal/queue"
	"github.com/notifyhq/delivery-pipeline/internal/repository"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 3

// StatusMarker marks a notification technical-failure when a task fails
// permanently. A nil marker (for tasks whose failure must not touch the
// notification, like outbound callback delivery) skips the escalation
// write but still raises the fault.
type StatusMarker interface {
	UpdateStatusByID(ctx context.Context, id string, status domain.Status) (*repository.StatusUpdateResult, error)
}

// Policy reschedules retryable failures onto a delayed retry queue up to a
// maximum attempt count and converts fatal failures (including exhausted
// retries) into a technical-failure escalation plus a terminal fault.
type Policy struct {
	taskName    string
	targetQueue string
	maxAttempts int
	publisher   queue.Publisher
	marker      StatusMarker
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func NewPolicy(
	taskName string,
	targetQueue string,
	maxAttempts int,
	publisher queue.Publisher,
	marker StatusMarker,
	logger *zap.Logger,
) (*Policy, error) {
	if taskName == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if targetQueue == "" {
		return nil, fmt.Errorf("target queue is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Policy{
		taskName:    taskName,
		targetQueue: targetQueue,
		maxAttempts: maxAttempts,
		publisher:   publisher,
		marker:      marker,
		logger:      logger,
	}, nil
}

func (p *Policy) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Attempt describes one execution of a wrapped task.
type Attempt struct {
	// Number is the zero-based retry counter carried by the message.
	Number int
	// NotificationID is the notification to escalate on permanent
	// failure; empty when the task failed before one could be resolved.
	NotificationID string
	// RetryBody serializes the task message with the given retry counter
	// for re-publication.
	RetryBody func(attempt int) ([]byte, error)
}

// Execute runs fn under the policy. It returns nil when fn succeeded or a
// retry was scheduled, a *taskerr.TechnicalFailureError on permanent
// failure, and the original error unmodified when it is unclassified —
// unclassified failures are bugs and must surface loudly, not be absorbed.
func (p *Policy) Execute(ctx context.Context, att Attempt, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}

	switch taskerr.ClassificationOf(err) {
	case taskerr.ClassRetryable:
		if att.Number < p.maxAttempts {
			return p.scheduleRetry(ctx, att, err)
		}
		err = taskerr.Fatal(fmt.Sprintf("retries exhausted after %d attempts", p.maxAttempts), err)
		return p.escalate(ctx, att, err)

	case taskerr.ClassFatal:
		return p.escalate(ctx, att, err)
	}

	return err
}

func (p *Policy) scheduleRetry(ctx context.Context, att Attempt, cause error) error {
	if att.RetryBody == nil {
		return fmt.Errorf("task %s has no retry body", p.taskName)
	}

	body, err := att.RetryBody(att.Number + 1)
	if err != nil {
		return fmt.Errorf("failed to build retry message for task %s: %w", p.taskName, err)
	}

	if err := p.publisher.Publish(ctx, queue.RetryQueueName(p.targetQueue), body); err != nil {
		return fmt.Errorf("failed to schedule retry for task %s: %w", p.taskName, err)
	}

	if p.metrics != nil {
		p.metrics.IncRetryScheduled(p.taskName)
	}
	p.logger.Warn("task scheduled for retry",
		zap.String("task", p.taskName),
		zap.Int("attempt", att.Number+1),
		zap.String("notificationId", att.NotificationID),
		zap.Error(cause),
	)

	return nil
}

func (p *Policy) escalate(ctx context.Context, att Attempt, cause error) error {
	if p.marker != nil && att.NotificationID != "" {
		if _, err := p.marker.UpdateStatusByID(ctx, att.NotificationID, domain.StatusTechnicalFailure); err != nil {
			return fmt.Errorf("failed to mark notification %s technical-failure: %w", att.NotificationID, err)
		}
		if p.metrics != nil {
			p.metrics.IncTechnicalFailure(p.taskName)
		}
	}

	return &taskerr.TechnicalFailureError{
		TaskName:       p.taskName,
		NotificationID: att.NotificationID,
		Cause:          cause,
	}
}
