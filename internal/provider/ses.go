package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

const sesProviderName = "ses"

// sesStatusByType maps SES notification types (after bounce sub-type
// resolution) to canonical statuses.
var sesStatusByType = map[string]domain.Status{
	"Delivery":  domain.StatusDelivered,
	"Permanent": domain.StatusPermanentFailure,
	"Temporary": domain.StatusTemporaryFailure,
}

// sesEnvelope is the SNS wrapper around the actual SES message, which
// arrives as an embedded JSON string.
type sesEnvelope struct {
	Message string `json:"Message"`
}

type sesMessage struct {
	NotificationType string        `json:"notificationType"`
	Mail             *sesMail      `json:"mail"`
	Bounce           *sesBounce    `json:"bounce"`
	Complaint        *sesComplaint `json:"complaint"`
}

type sesMail struct {
	MessageID string `json:"messageId"`
	Source    string `json:"source"`
}

type sesBounce struct {
	BounceType string `json:"bounceType"`
}

type sesComplaint struct {
	FeedbackID            string    `json:"feedbackId"`
	ComplaintFeedbackType string    `json:"complaintFeedbackType"`
	Timestamp             time.Time `json:"timestamp"`
}

// SESAdapter normalizes Amazon SES delivery, bounce, and complaint
// callbacks delivered through SNS.
type SESAdapter struct {
	// internalSenders are platform-owned from-addresses (verification and
	// invitation mail); callbacks for them are not trackable notifications.
	internalSenders map[string]struct{}
}

func NewSESAdapter(internalSenders ...string) *SESAdapter {
	senders := make(map[string]struct{}, len(internalSenders))
	for _, s := range internalSenders {
		normalized := strings.ToLower(strings.TrimSpace(s))
		if normalized != "" {
			senders[normalized] = struct{}{}
		}
	}
	return &SESAdapter{internalSenders: senders}
}

func (a *SESAdapter) Name() string { return sesProviderName }

func (a *SESAdapter) RequiredFields() []string { return []string{"Message"} }

func (a *SESAdapter) Normalize(payload []byte) (*CallbackEvent, error) {
	var envelope sesEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &ValidationError{Provider: "SES", Fields: []string{"Message"}}
	}
	if strings.TrimSpace(envelope.Message) == "" {
		return nil, &ValidationError{Provider: "SES", Fields: []string{"Message"}}
	}

	var msg sesMessage
	if err := json.Unmarshal([]byte(envelope.Message), &msg); err != nil {
		return nil, &ValidationError{Provider: "SES", Fields: []string{"Message"}}
	}

	missing := make([]string, 0, 2)
	if strings.TrimSpace(msg.NotificationType) == "" {
		missing = append(missing, "notificationType")
	}
	if msg.Mail == nil || strings.TrimSpace(msg.Mail.MessageID) == "" {
		missing = append(missing, "mail.messageId")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Provider: "SES", Fields: missing}
	}

	scrubbed, err := ScrubSESMessage([]byte(envelope.Message))
	if err != nil {
		return nil, &ValidationError{Provider: "SES", Fields: []string{"Message"}}
	}

	event := &CallbackEvent{
		Reference:       msg.Mail.MessageID,
		ScrubbedPayload: scrubbed,
	}

	if a.isInternalSender(msg.Mail.Source) {
		event.NotANotification = true
		return event, nil
	}

	notificationType := msg.NotificationType
	switch notificationType {
	case "Bounce":
		if msg.Bounce == nil {
			return nil, &ValidationError{Provider: "SES", Fields: []string{"bounce.bounceType"}}
		}
		if msg.Bounce.BounceType == "Permanent" {
			notificationType = "Permanent"
		} else {
			notificationType = "Temporary"
		}
	case "Complaint":
		if msg.Complaint == nil {
			return nil, &ValidationError{Provider: "SES", Fields: []string{"complaint"}}
		}
		event.Complaint = &ComplaintEvent{
			FeedbackID:    msg.Complaint.FeedbackID,
			ComplaintType: msg.Complaint.ComplaintFeedbackType,
			ComplaintDate: msg.Complaint.Timestamp,
		}
		return event, nil
	}

	status, ok := sesStatusByType[notificationType]
	if !ok {
		return nil, taskerr.Fatal(
			fmt.Sprintf("SES callback failed: status %s not found", msg.NotificationType), nil)
	}

	event.Status = status
	return event, nil
}

func (a *SESAdapter) isInternalSender(source string) bool {
	_, ok := a.internalSenders[strings.ToLower(strings.TrimSpace(source))]
	return ok
}
