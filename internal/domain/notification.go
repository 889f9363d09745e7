package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType represents the delivery channel of a notification.
type NotificationType string

const (
	NotificationTypeSMS   NotificationType = "sms"
	NotificationTypeEmail NotificationType = "email"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeSMS, NotificationTypeEmail:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	t := NotificationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// Notification is the shared notification record tracked through the
// delivery lifecycle. It is mutated only through the status store.
type Notification struct {
	ID                  string
	ServiceID           string
	NotificationType    NotificationType
	Status              Status
	Reference           *string
	Recipient           string
	RecipientIdentifier *string
	SentAt              *time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (n *Notification) Validate() error {
	if !n.NotificationType.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.NotificationType)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	if strings.TrimSpace(n.ServiceID) == "" {
		return fmt.Errorf("%w: service id is required", ErrValidation)
	}
	return nil
}
