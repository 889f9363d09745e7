package repository

import (
	"time"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID                  string                  `gorm:"type:uuid;primaryKey"`
	ServiceID           string                  `gorm:"type:uuid;not null;index"`
	NotificationType    domain.NotificationType `gorm:"type:varchar(10);not null"`
	Status              domain.Status           `gorm:"type:varchar(20);not null"`
	Reference           *string                 `gorm:"type:varchar(255);uniqueIndex"`
	Recipient           string                  `gorm:"type:varchar(255)"`
	RecipientIdentifier *string                 `gorm:"type:varchar(255)"`
	SentAt              *time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// ServiceCallbackModel is the persistence model for service_callbacks.
// At most one row exists per (service_id, callback_type).
type ServiceCallbackModel struct {
	ID           string                 `gorm:"type:uuid;primaryKey"`
	ServiceID    string                 `gorm:"type:uuid;not null;uniqueIndex:idx_service_callback_type"`
	CallbackType domain.CallbackType    `gorm:"type:varchar(20);not null;uniqueIndex:idx_service_callback_type"`
	URL          string                 `gorm:"type:varchar(500);not null"`
	BearerToken  string                 `gorm:"type:varchar(255);not null"`
	Channel      domain.CallbackChannel `gorm:"type:varchar(10);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ServiceCallbackModel) TableName() string {
	return "service_callbacks"
}

// ComplaintModel is the persistence model for complaints. Rows are
// write-once.
type ComplaintModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	NotificationID string `gorm:"type:uuid;not null;index"`
	ServiceID      string `gorm:"type:uuid;not null"`
	FeedbackID     string `gorm:"type:varchar(255)"`
	ComplaintType  string `gorm:"type:varchar(50)"`
	ComplaintDate  time.Time
	CreatedAt      time.Time
}

func (ComplaintModel) TableName() string {
	return "complaints"
}

// InboundSMSModel is the persistence model for inbound_sms.
type InboundSMSModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	ServiceID    string `gorm:"type:uuid;not null;index"`
	UserNumber   string `gorm:"type:varchar(50);not null"`
	Content      string `gorm:"type:text;not null"`
	ProviderDate time.Time
	CreatedAt    time.Time
}

func (InboundSMSModel) TableName() string {
	return "inbound_sms"
}

// CallbackAttemptModel records one outbound service-callback delivery
// attempt for audit.
type CallbackAttemptModel struct {
	ID            string              `gorm:"type:uuid;primaryKey"`
	TargetID      string              `gorm:"type:uuid;not null;index"`
	CallbackType  domain.CallbackType `gorm:"type:varchar(20);not null"`
	AttemptNumber int                 `gorm:"not null"`
	StatusCode    *int                `gorm:"type:int"`
	Error         *string             `gorm:"type:text"`
	CreatedAt     time.Time
}

func (CallbackAttemptModel) TableName() string {
	return "callback_attempts"
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:                  m.ID,
		ServiceID:           m.ServiceID,
		NotificationType:    m.NotificationType,
		Status:              m.Status,
		Reference:           m.Reference,
		Recipient:           m.Recipient,
		RecipientIdentifier: m.RecipientIdentifier,
		SentAt:              m.SentAt,
		CompletedAt:         m.CompletedAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func serviceCallbackModelToDomain(m *ServiceCallbackModel) *domain.ServiceCallback {
	if m == nil {
		return nil
	}

	return &domain.ServiceCallback{
		ID:           m.ID,
		ServiceID:    m.ServiceID,
		CallbackType: m.CallbackType,
		URL:          m.URL,
		BearerToken:  m.BearerToken,
		Channel:      m.Channel,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func complaintModelFromDomain(c *domain.Complaint) *ComplaintModel {
	if c == nil {
		return nil
	}

	return &ComplaintModel{
		ID:             c.ID,
		NotificationID: c.NotificationID,
		ServiceID:      c.ServiceID,
		FeedbackID:     c.FeedbackID,
		ComplaintType:  c.ComplaintType,
		ComplaintDate:  c.ComplaintDate,
		CreatedAt:      c.CreatedAt,
	}
}

func complaintModelToDomain(m *ComplaintModel) *domain.Complaint {
	if m == nil {
		return nil
	}

	return &domain.Complaint{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		ServiceID:      m.ServiceID,
		FeedbackID:     m.FeedbackID,
		ComplaintType:  m.ComplaintType,
		ComplaintDate:  m.ComplaintDate,
		CreatedAt:      m.CreatedAt,
	}
}

func inboundSMSModelToDomain(m *InboundSMSModel) *domain.InboundSMS {
	if m == nil {
		return nil
	}

	return &domain.InboundSMS{
		ID:           m.ID,
		ServiceID:    m.ServiceID,
		UserNumber:   m.UserNumber,
		Content:      m.Content,
		ProviderDate: m.ProviderDate,
		CreatedAt:    m.CreatedAt,
	}
}
