// Package dispatcher delivers pipeline events to service-owned callback
// endpoints: delivery status changes, provider complaints, and inbound SMS.
// Services opt in per callback type; a service without configuration for an
// event type costs a single indexed read and nothing else.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/observability"
	"github.com/notifyhq/delivery-pipeline/internal/queue"
	"github.com/notifyhq/delivery-pipeline/internal/ratelimit"
	"github.com/notifyhq/delivery-pipeline/internal/repository"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

const (
	outcomeSuccess   = "success"
	outcomeRetryable = "retryable_error"
	outcomeFatal     = "fatal_error"
	outcomeSkipped   = "skipped"
)

type Dispatcher struct {
	callbacks     repository.ServiceCallbackRepository
	notifications repository.NotificationRepository
	complaints    repository.ComplaintRepository
	inboundSMS    repository.InboundSMSRepository
	attempts      repository.CallbackAttemptRepository
	publisher     queue.Publisher
	sender        *Sender
	limiter       ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	operatorURL   string
	operatorToken string
	newID         func() string
	now           func() time.Time
}

func NewDispatcher(
	callbacks repository.ServiceCallbackRepository,
	notifications repository.NotificationRepository,
	complaints repository.ComplaintRepository,
	inboundSMS repository.InboundSMSRepository,
	attempts repository.CallbackAttemptRepository,
	publisher queue.Publisher,
	sender *Sender,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Dispatcher, error) {
	if callbacks == nil {
		return nil, fmt.Errorf("service callback repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if sender == nil {
		sender = NewSender()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		callbacks:     callbacks,
		notifications: notifications,
		complaints:    complaints,
		inboundSMS:    inboundSMS,
		attempts:      attempts,
		publisher:     publisher,
		sender:        sender,
		limiter:       limiter,
		logger:        logger,
		metrics:       metrics,
		newID:         func() string { return uuid.NewString() },
		now:           time.Now,
	}, nil
}

// SetOperatorChannel configures the platform-internal endpoint that receives
// every complaint regardless of client callback configuration.
func (d *Dispatcher) SetOperatorChannel(url string, token string) {
	d.operatorURL = url
	d.operatorToken = token
}

// CheckAndQueueCallback enqueues a delivery_status callback task for the
// notification's service. A service without delivery_status configuration is
// a silent no-op.
func (d *Dispatcher) CheckAndQueueCallback(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return fmt.Errorf("notification is required")
	}

	_, err := d.callbacks.GetByServiceAndType(ctx, n.ServiceID, domain.CallbackTypeDeliveryStatus)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load callback configuration: %w", err)
	}

	return d.enqueue(ctx, queue.CallbackTask{
		CallbackType:   domain.CallbackTypeDeliveryStatus,
		NotificationID: n.ID,
	})
}

// QueueComplaintCallback enqueues a complaint callback task when the
// service opted in. The operator channel is notified separately and does not
// depend on this.
func (d *Dispatcher) QueueComplaintCallback(ctx context.Context, c *domain.Complaint) error {
	if c == nil {
		return fmt.Errorf("complaint is required")
	}

	_, err := d.callbacks.GetByServiceAndType(ctx, c.ServiceID, domain.CallbackTypeComplaint)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load callback configuration: %w", err)
	}

	return d.enqueue(ctx, queue.CallbackTask{
		CallbackType: domain.CallbackTypeComplaint,
		ComplaintID:  c.ID,
	})
}

// QueueInboundSMSCallback enqueues an inbound_sms callback task. A service
// that receives inbound SMS without a configured callback is worth a warning
// because the message is otherwise invisible to it.
func (d *Dispatcher) QueueInboundSMSCallback(ctx context.Context, sms *domain.InboundSMS) error {
	if sms == nil {
		return fmt.Errorf("inbound sms is required")
	}

	_, err := d.callbacks.GetByServiceAndType(ctx, sms.ServiceID, domain.CallbackTypeInboundSMS)
	if errors.Is(err, domain.ErrNotFound) {
		d.logger.Warn("inbound sms received for service without inbound_sms callback",
			zap.String("serviceId", sms.ServiceID),
			zap.String("inboundSmsId", sms.ID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load callback configuration: %w", err)
	}

	return d.enqueue(ctx, queue.CallbackTask{
		CallbackType: domain.CallbackTypeInboundSMS,
		InboundSMSID: sms.ID,
	})
}

// NotifyOperator posts the complaint to the platform operator channel.
// Operator visibility is best-effort: a failure is logged, never escalated,
// and never blocks complaint processing.
func (d *Dispatcher) NotifyOperator(ctx context.Context, c *domain.Complaint, n *domain.Notification) {
	if d.operatorURL == "" || c == nil || n == nil {
		return
	}

	payload := newComplaintPayload(c, n)
	if _, err := d.sender.Send(ctx, d.operatorURL, d.operatorToken, payload); err != nil {
		d.logger.Error("failed to notify operator channel of complaint",
			zap.String("complaintId", c.ID),
			zap.String("notificationId", c.NotificationID),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("complaint forwarded to operator channel",
		zap.String("complaintId", c.ID),
		zap.String("notificationId", c.NotificationID),
	)
}

// HandleTask performs one outbound callback delivery. Classified errors flow
// back to the retry framework; a missing inbound SMS record propagates
// unclassified so the message is rejected loudly instead of silently acked.
func (d *Dispatcher) HandleTask(ctx context.Context, task queue.CallbackTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid callback task: %w", err)
	}

	switch task.CallbackType {
	case domain.CallbackTypeDeliveryStatus:
		return d.deliverStatus(ctx, task)
	case domain.CallbackTypeComplaint:
		return d.deliverComplaint(ctx, task)
	case domain.CallbackTypeInboundSMS:
		return d.deliverInboundSMS(ctx, task)
	}
	return fmt.Errorf("unsupported callback type %q", task.CallbackType)
}

func (d *Dispatcher) deliverStatus(ctx context.Context, task queue.CallbackTask) error {
	notification, err := d.notifications.GetByID(ctx, task.NotificationID)
	if err != nil {
		return fmt.Errorf("failed to load notification %s: %w", task.NotificationID, err)
	}

	config, err := d.callbacks.GetByServiceAndType(ctx, notification.ServiceID, domain.CallbackTypeDeliveryStatus)
	if errors.Is(err, domain.ErrNotFound) {
		// Configuration removed between enqueue and delivery.
		d.observe(domain.CallbackTypeDeliveryStatus, outcomeSkipped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load callback configuration: %w", err)
	}

	payload := newDeliveryStatusPayload(notification)
	return d.send(ctx, config, task, notification.ID, payload)
}

func (d *Dispatcher) deliverComplaint(ctx context.Context, task queue.CallbackTask) error {
	complaint, err := d.complaints.GetByID(ctx, task.ComplaintID)
	if err != nil {
		return fmt.Errorf("failed to load complaint %s: %w", task.ComplaintID, err)
	}

	notification, err := d.notifications.GetByID(ctx, complaint.NotificationID)
	if err != nil {
		return fmt.Errorf("failed to load notification %s: %w", complaint.NotificationID, err)
	}

	config, err := d.callbacks.GetByServiceAndType(ctx, complaint.ServiceID, domain.CallbackTypeComplaint)
	if errors.Is(err, domain.ErrNotFound) {
		d.observe(domain.CallbackTypeComplaint, outcomeSkipped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load callback configuration: %w", err)
	}

	payload := newComplaintPayload(complaint, notification)
	return d.send(ctx, config, task, complaint.ID, payload)
}

func (d *Dispatcher) deliverInboundSMS(ctx context.Context, task queue.CallbackTask) error {
	sms, err := d.inboundSMS.GetByID(ctx, task.InboundSMSID)
	if err != nil {
		// A callback task referencing a missing inbound SMS row is data
		// corruption, not an operational condition. Fail hard.
		return fmt.Errorf("failed to load inbound sms %s: %w", task.InboundSMSID, err)
	}

	config, err := d.callbacks.GetByServiceAndType(ctx, sms.ServiceID, domain.CallbackTypeInboundSMS)
	if errors.Is(err, domain.ErrNotFound) {
		d.observe(domain.CallbackTypeInboundSMS, outcomeSkipped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load callback configuration: %w", err)
	}

	payload := newInboundSMSPayload(sms)
	return d.send(ctx, config, task, sms.ID, payload)
}

func (d *Dispatcher) send(ctx context.Context, config *domain.ServiceCallback, task queue.CallbackTask, targetID string, payload any) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, config.ServiceID); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	statusCode, sendErr := d.sender.Send(ctx, config.URL, config.BearerToken, payload)
	d.recordAttempt(ctx, task, targetID, statusCode, sendErr)
	d.observe(task.CallbackType, outcomeOf(sendErr))

	if sendErr != nil {
		return sendErr
	}

	d.logger.Info("service callback delivered",
		zap.String("callbackType", task.CallbackType.String()),
		zap.String("targetId", targetID),
		zap.String("serviceId", config.ServiceID),
		zap.Int("statusCode", statusCode),
	)
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, task queue.CallbackTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode callback task: %w", err)
	}
	if err := d.publisher.Publish(ctx, queue.QueueServiceCallbacks, body); err != nil {
		return fmt.Errorf("failed to enqueue callback task: %w", err)
	}
	return nil
}

func (d *Dispatcher) recordAttempt(ctx context.Context, task queue.CallbackTask, targetID string, statusCode int, sendErr error) {
	if d.attempts == nil {
		return
	}

	attempt := &repository.CallbackAttemptModel{
		ID:            d.newID(),
		TargetID:      targetID,
		CallbackType:  task.CallbackType,
		AttemptNumber: task.Attempt + 1,
		CreatedAt:     d.now().UTC(),
	}
	if statusCode > 0 {
		attempt.StatusCode = &statusCode
	}
	if sendErr != nil {
		message := sendErr.Error()
		attempt.Error = &message
	}

	if err := d.attempts.Create(ctx, attempt); err != nil {
		d.logger.Error("failed to record callback attempt",
			zap.String("targetId", targetID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) observe(callbackType domain.CallbackType, outcome string) {
	if d.metrics == nil {
		return
	}
	d.metrics.IncServiceCallback(callbackType.String(), outcome)
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	if taskerr.ClassificationOf(err) == taskerr.ClassRetryable {
		return outcomeRetryable
	}
	return outcomeFatal
}
