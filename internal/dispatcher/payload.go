package dispatcher

import (
	"time"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
)

// TimestampFormat is the single textual format used for every timestamp in
// outbound callback payloads. Receivers log-compare serialized payloads, so
// the format never varies.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// deliveryStatusPayload is the body POSTed to a service's delivery_status
// callback. Field order is part of the contract.
type deliveryStatusPayload struct {
	ID               string  `json:"id"`
	Reference        *string `json:"reference"`
	To               string  `json:"to"`
	Status           string  `json:"status"`
	CreatedAt        string  `json:"created_at"`
	CompletedAt      *string `json:"completed_at"`
	SentAt           *string `json:"sent_at"`
	NotificationType string  `json:"notification_type"`
}

// complaintPayload is the body POSTed to a service's complaint callback and
// to the platform operator channel.
type complaintPayload struct {
	NotificationID string  `json:"notification_id"`
	ComplaintID    string  `json:"complaint_id"`
	Reference      *string `json:"reference"`
	To             string  `json:"to"`
	ComplaintDate  string  `json:"complaint_date"`
}

// inboundSMSPayload is the body POSTed to a service's inbound_sms callback.
type inboundSMSPayload struct {
	ID           string `json:"id"`
	SourceNumber string `json:"source_number"`
	Content      string `json:"content"`
	DateReceived string `json:"date_received"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

func formatOptionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTimestamp(*t)
	return &formatted
}

func newDeliveryStatusPayload(n *domain.Notification) deliveryStatusPayload {
	return deliveryStatusPayload{
		ID:               n.ID,
		Reference:        n.Reference,
		To:               n.Recipient,
		Status:           n.Status.String(),
		CreatedAt:        formatTimestamp(n.CreatedAt),
		CompletedAt:      formatOptionalTimestamp(n.CompletedAt),
		SentAt:           formatOptionalTimestamp(n.SentAt),
		NotificationType: n.NotificationType.String(),
	}
}

func newComplaintPayload(c *domain.Complaint, n *domain.Notification) complaintPayload {
	return complaintPayload{
		NotificationID: n.ID,
		ComplaintID:    c.ID,
		Reference:      n.Reference,
		To:             n.Recipient,
		ComplaintDate:  formatTimestamp(c.ComplaintDate),
	}
}

func newInboundSMSPayload(sms *domain.InboundSMS) inboundSMSPayload {
	return inboundSMSPayload{
		ID:           sms.ID,
		SourceNumber: sms.UserNumber,
		Content:      sms.Content,
		DateReceived: formatTimestamp(sms.ProviderDate),
	}
}
