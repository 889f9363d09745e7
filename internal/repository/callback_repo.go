package repository

import (
	"context"
	"errors"
	"time"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"gorm.io/gorm"
)

// ServiceCallbackRepository reads service callback configuration. The
// pipeline never writes it.
type ServiceCallbackRepository interface {
	// GetByServiceAndType returns domain.ErrNotFound when the service has
	// no configuration for the callback type; callers treat that as a
	// cheap no-op.
	GetByServiceAndType(ctx context.Context, serviceID string, callbackType domain.CallbackType) (*domain.ServiceCallback, error)
}

type GormServiceCallbackRepo struct {
	db *gorm.DB
}

func NewGormServiceCallbackRepo(db *gorm.DB) *GormServiceCallbackRepo {
	return &GormServiceCallbackRepo{db: db}
}

func (r *GormServiceCallbackRepo) GetByServiceAndType(ctx context.Context, serviceID string, callbackType domain.CallbackType) (*domain.ServiceCallback, error) {
	var model ServiceCallbackModel
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND callback_type = ?", serviceID, callbackType).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return serviceCallbackModelToDomain(&model), nil
}

// ComplaintRepository persists provider-reported complaints. Rows are
// write-once.
type ComplaintRepository interface {
	Create(ctx context.Context, c *domain.Complaint) error
	GetByID(ctx context.Context, id string) (*domain.Complaint, error)
}

type GormComplaintRepo struct {
	db *gorm.DB
}

func NewGormComplaintRepo(db *gorm.DB) *GormComplaintRepo {
	return &GormComplaintRepo{db: db}
}

func (r *GormComplaintRepo) Create(ctx context.Context, c *domain.Complaint) error {
	model := complaintModelFromDomain(c)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *complaintModelToDomain(model)
	}
	return nil
}

func (r *GormComplaintRepo) GetByID(ctx context.Context, id string) (*domain.Complaint, error) {
	var model ComplaintModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return complaintModelToDomain(&model), nil
}

// InboundSMSRepository reads inbound message records for inbound_sms
// callbacks.
type InboundSMSRepository interface {
	GetByID(ctx context.Context, id string) (*domain.InboundSMS, error)
}

type GormInboundSMSRepo struct {
	db *gorm.DB
}

func NewGormInboundSMSRepo(db *gorm.DB) *GormInboundSMSRepo {
	return &GormInboundSMSRepo{db: db}
}

func (r *GormInboundSMSRepo) GetByID(ctx context.Context, id string) (*domain.InboundSMS, error) {
	var model InboundSMSModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inboundSMSModelToDomain(&model), nil
}

// CallbackAttemptRepository records outbound callback delivery attempts.
type CallbackAttemptRepository interface {
	Create(ctx context.Context, attempt *CallbackAttemptModel) error
}

type GormCallbackAttemptRepo struct {
	db *gorm.DB
}

func NewGormCallbackAttemptRepo(db *gorm.DB) *GormCallbackAttemptRepo {
	return &GormCallbackAttemptRepo{db: db}
}

func (r *GormCallbackAttemptRepo) Create(ctx context.Context, attempt *CallbackAttemptModel) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}
