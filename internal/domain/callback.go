package domain

import (
	"fmt"
	"strings"
	"time"
)

// CallbackType identifies which outbound webhook a service callback
// configuration applies to.
type CallbackType string

const (
	CallbackTypeDeliveryStatus CallbackType = "delivery_status"
	CallbackTypeComplaint      CallbackType = "complaint"
	CallbackTypeInboundSMS     CallbackType = "inbound_sms"
)

func (t CallbackType) String() string { return string(t) }

func (t CallbackType) IsValid() bool {
	switch t {
	case CallbackTypeDeliveryStatus, CallbackTypeComplaint, CallbackTypeInboundSMS:
		return true
	}
	return false
}

func ParseCallbackTypeFromString(s string) (CallbackType, error) {
	t := CallbackType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid callback type %q", ErrValidation, s)
	}
	return t, nil
}

// CallbackChannel selects the delivery strategy for a service callback.
type CallbackChannel string

const (
	CallbackChannelQueue   CallbackChannel = "queue"
	CallbackChannelWebhook CallbackChannel = "webhook"
)

func (c CallbackChannel) IsValid() bool {
	switch c {
	case CallbackChannelQueue, CallbackChannelWebhook:
		return true
	}
	return false
}

// ServiceCallback is the outbound webhook configuration a service registers
// for one callback type. At most one active configuration exists per
// (service, callback type); the pipeline only reads these.
type ServiceCallback struct {
	ID           string
	ServiceID    string
	CallbackType CallbackType
	URL          string
	BearerToken  string
	Channel      CallbackChannel
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *ServiceCallback) Validate() error {
	if strings.TrimSpace(c.ServiceID) == "" {
		return fmt.Errorf("%w: service id is required", ErrValidation)
	}
	if !c.CallbackType.IsValid() {
		return fmt.Errorf("%w: invalid callback type %q", ErrValidation, c.CallbackType)
	}
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	if !c.Channel.IsValid() {
		return fmt.Errorf("%w: invalid callback channel %q", ErrValidation, c.Channel)
	}
	return nil
}

// Complaint records a provider-reported complaint (for example a spam
// report) against a delivered notification. Complaints are write-once.
type Complaint struct {
	ID             string
	NotificationID string
	ServiceID      string
	FeedbackID     string
	ComplaintType  string
	ComplaintDate  time.Time
	CreatedAt      time.Time
}

// InboundSMS is a message received from a recipient, forwarded to the
// owning service through its inbound_sms callback.
type InboundSMS struct {
	ID           string
	ServiceID    string
	UserNumber   string
	Content      string
	ProviderDate time.Time
	CreatedAt    time.Time
}
