// Package pipeline wires provider callbacks through normalization, the
// status store, and the callback dispatcher. Each handler consumes one work
// queue: raw provider callbacks, outbound service callbacks, and contact
// lookups.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhq/delivery-pipeline/internal/dispatcher"
	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/identity"
	"github.com/notifyhq/delivery-pipeline/internal/observability"
	"github.com/notifyhq/delivery-pipeline/internal/provider"
	"github.com/notifyhq/delivery-pipeline/internal/queue"
	"github.com/notifyhq/delivery-pipeline/internal/repository"
	"github.com/notifyhq/delivery-pipeline/internal/retry"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

// Processor owns the per-queue message handlers. Every handler follows the
// same message discipline: malformed or permanently failed messages are
// rejected to the dead letter queue as durable fault records, transient
// infrastructure errors are requeued, everything else is acknowledged.
type Processor struct {
	registry      *provider.Registry
	notifications repository.NotificationRepository
	complaints    repository.ComplaintRepository
	dispatch      *dispatcher.Dispatcher
	contacts      identity.ContactLookup

	deliveryPolicy *retry.Policy
	callbackPolicy *retry.Policy
	lookupPolicy   *retry.Policy

	logger  *zap.Logger
	metrics *observability.Metrics
	newID   func() string
	now     func() time.Time
}

func NewProcessor(
	registry *provider.Registry,
	notifications repository.NotificationRepository,
	complaints repository.ComplaintRepository,
	dispatch *dispatcher.Dispatcher,
	contacts identity.ContactLookup,
	deliveryPolicy *retry.Policy,
	callbackPolicy *retry.Policy,
	lookupPolicy *retry.Policy,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Processor, error) {
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if dispatch == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deliveryPolicy == nil || callbackPolicy == nil || lookupPolicy == nil {
		return nil, fmt.Errorf("retry policies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Processor{
		registry:       registry,
		notifications:  notifications,
		complaints:     complaints,
		dispatch:       dispatch,
		contacts:       contacts,
		deliveryPolicy: deliveryPolicy,
		callbackPolicy: callbackPolicy,
		lookupPolicy:   lookupPolicy,
		logger:         logger,
		metrics:        metrics,
		newID:          func() string { return uuid.NewString() },
		now:            time.Now,
	}, nil
}

// log attaches the message correlation id carried on ctx, when present.
func (p *Processor) log(ctx context.Context) *zap.Logger {
	return observability.WithContextLogger(p.logger, ctx)
}

// HandleDeliveryTask processes one raw provider callback: normalize, apply
// the status transition, and fan out service callbacks.
func (p *Processor) HandleDeliveryTask(ctx context.Context, body []byte) error {
	var task queue.DeliveryTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("%w: malformed delivery task: %v", queue.ErrReject, err)
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: invalid delivery task: %v", queue.ErrReject, err)
	}

	adapter, err := p.registry.Get(task.Provider)
	if err != nil {
		return fmt.Errorf("%w: unknown provider %q", queue.ErrReject, task.Provider)
	}

	if p.metrics != nil {
		p.metrics.IncCallbackReceived(task.Provider)
	}

	att := retry.Attempt{
		Number: task.Attempt,
		RetryBody: func(attempt int) ([]byte, error) {
			next := task
			next.Attempt = attempt
			return json.Marshal(next)
		},
	}

	err = p.deliveryPolicy.Execute(ctx, att, func(ctx context.Context) error {
		return p.processCallback(ctx, adapter, task)
	})
	return p.finishTask(ctx, err, "process-delivery-status", task.Provider)
}

func (p *Processor) processCallback(ctx context.Context, adapter provider.Adapter, task queue.DeliveryTask) error {
	event, err := adapter.Normalize(task.Payload)
	if err != nil {
		return err
	}

	if len(event.ScrubbedPayload) > 0 {
		// Only the scrubbed form is ever logged; the raw payload may carry
		// recipient addresses.
		p.log(ctx).Debug("provider callback received",
			zap.String("provider", adapter.Name()),
			zap.ByteString("payload", event.ScrubbedPayload),
		)
	}

	if event.NotANotification {
		p.log(ctx).Info("callback for platform-internal mail, skipping",
			zap.String("provider", adapter.Name()),
		)
		return nil
	}

	if event.Complaint != nil {
		return p.processComplaint(ctx, adapter.Name(), event)
	}

	result, err := p.notifications.UpdateStatusByReference(ctx, event.Reference, event.Status)
	if errors.Is(err, domain.ErrConflict) {
		// A receipt can land while the notification has not reached sending
		// yet. Worth a bounded retry, same as no match.
		return taskerr.Retryable(fmt.Sprintf("conflicting status update for reference %s", event.Reference), err)
	}
	if err != nil {
		return err
	}

	switch result.Outcome {
	case repository.StatusNoMatch:
		// The provider can call back before the send transaction is
		// visible. Worth a bounded retry before giving up.
		if p.metrics != nil {
			p.metrics.IncCallbackNoMatch(adapter.Name())
		}
		return taskerr.Retryable(fmt.Sprintf("no notification found for reference %s", event.Reference), nil)

	case repository.StatusDuplicate:
		if p.metrics != nil {
			p.metrics.IncDuplicateUpdate(adapter.Name())
		}
		p.log(ctx).Warn("duplicate status update, nothing written",
			zap.String("provider", adapter.Name()),
			zap.String("reference", event.Reference),
			zap.String("status", event.Status.String()),
			zap.String("currentStatus", currentStatus(result)),
		)
		return nil
	}

	if p.metrics != nil {
		p.metrics.IncStatusUpdate(adapter.Name(), event.Status.String())
	}
	p.log(ctx).Info("notification status updated",
		zap.String("provider", adapter.Name()),
		zap.String("notificationId", result.Notification.ID),
		zap.String("status", event.Status.String()),
	)

	return p.dispatch.CheckAndQueueCallback(ctx, result.Notification)
}

func (p *Processor) processComplaint(ctx context.Context, providerName string, event *provider.CallbackEvent) error {
	notification, err := p.notifications.GetByReference(ctx, event.Reference)
	if errors.Is(err, domain.ErrNotFound) {
		return taskerr.Retryable(fmt.Sprintf("no notification found for complaint reference %s", event.Reference), nil)
	}
	if err != nil {
		return err
	}

	complaint := &domain.Complaint{
		ID:             p.newID(),
		NotificationID: notification.ID,
		ServiceID:      notification.ServiceID,
		FeedbackID:     event.Complaint.FeedbackID,
		ComplaintType:  event.Complaint.ComplaintType,
		ComplaintDate:  event.Complaint.ComplaintDate,
		CreatedAt:      p.now().UTC(),
	}
	if p.complaints != nil {
		if err := p.complaints.Create(ctx, complaint); err != nil {
			return err
		}
	}

	if p.metrics != nil {
		p.metrics.IncComplaint(providerName)
	}
	p.log(ctx).Info("complaint recorded",
		zap.String("provider", providerName),
		zap.String("notificationId", notification.ID),
		zap.String("complaintId", complaint.ID),
	)

	// The operator always hears about complaints, whether or not the
	// owning service configured a complaint callback.
	p.dispatch.NotifyOperator(ctx, complaint, notification)

	return p.dispatch.QueueComplaintCallback(ctx, complaint)
}

// HandleCallbackTask delivers one outbound service callback under the retry
// policy. Callback failures never touch notification status.
func (p *Processor) HandleCallbackTask(ctx context.Context, body []byte) error {
	var task queue.CallbackTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("%w: malformed callback task: %v", queue.ErrReject, err)
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: invalid callback task: %v", queue.ErrReject, err)
	}

	att := retry.Attempt{
		Number: task.Attempt,
		RetryBody: func(attempt int) ([]byte, error) {
			next := task
			next.Attempt = attempt
			return json.Marshal(next)
		},
	}

	err := p.callbackPolicy.Execute(ctx, att, func(ctx context.Context) error {
		return p.dispatch.HandleTask(ctx, task)
	})
	if errors.Is(err, domain.ErrNotFound) {
		// A task referencing a missing row cannot succeed on redelivery;
		// park it as a fault instead of requeueing forever.
		return fmt.Errorf("%w: %v", queue.ErrReject, err)
	}
	return p.finishTask(ctx, err, "deliver-service-callback", task.CallbackType.String())
}

// HandleContactLookupTask resolves the recipient contact address for a
// notification through the profile service.
func (p *Processor) HandleContactLookupTask(ctx context.Context, body []byte) error {
	var task queue.ContactLookupTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("%w: malformed contact lookup task: %v", queue.ErrReject, err)
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: invalid contact lookup task: %v", queue.ErrReject, err)
	}
	if p.contacts == nil {
		return fmt.Errorf("%w: contact lookup is not configured", queue.ErrReject)
	}

	att := retry.Attempt{
		Number:         task.Attempt,
		NotificationID: task.NotificationID,
		RetryBody: func(attempt int) ([]byte, error) {
			next := task
			next.Attempt = attempt
			return json.Marshal(next)
		},
	}

	err := p.lookupPolicy.Execute(ctx, att, func(ctx context.Context) error {
		return p.resolveContact(ctx, task.NotificationID)
	})
	return p.finishTask(ctx, err, "lookup-contact-info", "")
}

func (p *Processor) resolveContact(ctx context.Context, notificationID string) error {
	notification, err := p.notifications.GetByID(ctx, notificationID)
	if errors.Is(err, domain.ErrNotFound) {
		return taskerr.Fatal(fmt.Sprintf("notification %s does not exist", notificationID), err)
	}
	if err != nil {
		return err
	}
	if notification.RecipientIdentifier == nil {
		return taskerr.Fatal(fmt.Sprintf("notification %s has no recipient identifier", notificationID), nil)
	}

	contact, err := p.contacts.ResolveContact(ctx, *notification.RecipientIdentifier, notification.NotificationType)
	if err != nil {
		return err
	}

	return p.notifications.SetRecipient(ctx, notification.ID, contact)
}

// finishTask translates a policy result into the consumer's message
// discipline. Permanent failures become rejected fault messages;
// unclassified errors (infrastructure, bugs) propagate so the message is
// redelivered.
func (p *Processor) finishTask(ctx context.Context, err error, taskName string, label string) error {
	if err == nil {
		return nil
	}

	var fault *taskerr.TechnicalFailureError
	if errors.As(err, &fault) {
		p.log(ctx).Error("task failed permanently",
			zap.String("task", taskName),
			zap.String("label", label),
			zap.String("notificationId", fault.NotificationID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", queue.ErrReject, err)
	}

	return err
}

func currentStatus(result *repository.StatusUpdateResult) string {
	if result == nil || result.Notification == nil {
		return ""
	}
	return result.Notification.Status.String()
}
