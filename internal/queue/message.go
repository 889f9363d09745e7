package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
)

// DeliveryTask is the broker payload for processing one provider callback.
// It is transient message state, never persisted: created on callback
// receipt, discarded on terminal success or fatal failure, re-queued with
// an incremented Attempt on retryable failure.
type DeliveryTask struct {
	Provider   string          `json:"provider"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

func (t DeliveryTask) Validate() error {
	if strings.TrimSpace(t.Provider) == "" {
		return fmt.Errorf("provider is required")
	}
	if len(t.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if t.Attempt < 0 {
		return fmt.Errorf("attempt must not be negative")
	}
	return nil
}

// CallbackTask is the broker payload for one outbound service callback
// delivery.
type CallbackTask struct {
	CallbackType   domain.CallbackType `json:"callbackType"`
	NotificationID string              `json:"notificationId,omitempty"`
	ComplaintID    string              `json:"complaintId,omitempty"`
	InboundSMSID   string              `json:"inboundSmsId,omitempty"`
	Attempt        int                 `json:"attempt"`
}

func (t CallbackTask) Validate() error {
	if !t.CallbackType.IsValid() {
		return fmt.Errorf("invalid callback type %q", t.CallbackType)
	}

	switch t.CallbackType {
	case domain.CallbackTypeDeliveryStatus:
		if strings.TrimSpace(t.NotificationID) == "" {
			return fmt.Errorf("notificationId is required for delivery_status callback")
		}
	case domain.CallbackTypeComplaint:
		if strings.TrimSpace(t.ComplaintID) == "" {
			return fmt.Errorf("complaintId is required for complaint callback")
		}
	case domain.CallbackTypeInboundSMS:
		if strings.TrimSpace(t.InboundSMSID) == "" {
			return fmt.Errorf("inboundSmsId is required for inbound_sms callback")
		}
	}

	if t.Attempt < 0 {
		return fmt.Errorf("attempt must not be negative")
	}
	return nil
}

// ContactLookupTask is the broker payload for resolving a recipient's
// contact address before a send.
type ContactLookupTask struct {
	NotificationID string `json:"notificationId"`
	Attempt        int    `json:"attempt"`
}

func (t ContactLookupTask) Validate() error {
	if strings.TrimSpace(t.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if t.Attempt < 0 {
		return fmt.Errorf("attempt must not be negative")
	}
	return nil
}
