package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusUpdateOutcome describes what a status transition attempt did.
type StatusUpdateOutcome int

const (
	// StatusUpdated means the transition was applied and written.
	StatusUpdated StatusUpdateOutcome = iota
	// StatusDuplicate means the notification was already at an equal or
	// more final status; nothing was written.
	StatusDuplicate
	// StatusNoMatch means no notification carries the reference.
	StatusNoMatch
)

func (o StatusUpdateOutcome) String() string {
	switch o {
	case StatusUpdated:
		return "updated"
	case StatusDuplicate:
		return "duplicate"
	case StatusNoMatch:
		return "no_match"
	}
	return "unknown"
}

// StatusUpdateResult carries the outcome and, when a row matched, the
// notification as stored after the attempt.
type StatusUpdateResult struct {
	Outcome      StatusUpdateOutcome
	Notification *domain.Notification
}

// NotificationRepository is the single write path for notification status.
type NotificationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetByReference(ctx context.Context, reference string) (*domain.Notification, error)
	// UpdateStatusByReference applies a canonical status to the
	// notification carrying reference, guarded against duplicate and
	// out-of-order callbacks. Concurrent updates to the same notification
	// serialize on a row lock.
	UpdateStatusByReference(ctx context.Context, reference string, status domain.Status) (*StatusUpdateResult, error)
	// UpdateStatusByID applies a status directly, with the same finality
	// guard. Used by the retry framework's technical-failure escalation.
	UpdateStatusByID(ctx context.Context, id string, status domain.Status) (*StatusUpdateResult, error)
	SetRecipient(ctx context.Context, id string, recipient string) error
	ListByStatusFilter(ctx context.Context, serviceID string, statusFilters []string) ([]domain.Notification, error)
}

type GormNotificationRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db, now: time.Now}
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) GetByReference(ctx context.Context, reference string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) UpdateStatusByReference(ctx context.Context, reference string, status domain.Status) (*StatusUpdateResult, error) {
	return r.applyStatus(ctx, "reference = ?", reference, status)
}

func (r *GormNotificationRepo) UpdateStatusByID(ctx context.Context, id string, status domain.Status) (*StatusUpdateResult, error) {
	return r.applyStatus(ctx, "id = ?", id, status)
}

// applyStatus reads the row under FOR UPDATE, checks the finality guard,
// and writes inside a single transaction so concurrent callbacks for the
// same notification cannot interleave. A write the finality guard permits
// but the transition graph forbids returns ErrConflict.
func (r *GormNotificationRepo) applyStatus(ctx context.Context, cond string, arg string, status domain.Status) (*StatusUpdateResult, error) {
	result := &StatusUpdateResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model NotificationModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, cond, arg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Outcome = StatusNoMatch
			return nil
		}
		if err != nil {
			return err
		}

		if !domain.StatusUpdateAllowed(model.Status, status) {
			result.Outcome = StatusDuplicate
			result.Notification = notificationModelToDomain(&model)
			return nil
		}

		if !domain.CanTransition(model.Status, status) {
			return fmt.Errorf("%w: no transition from %s to %s", domain.ErrConflict, model.Status, status)
		}

		now := r.now().UTC()
		updates := map[string]any{
			"status":     status,
			"updated_at": now,
		}
		if status.IsTerminal() {
			updates["completed_at"] = now
		}

		if err := tx.Model(&model).Updates(updates).Error; err != nil {
			return err
		}

		result.Outcome = StatusUpdated
		result.Notification = notificationModelToDomain(&model)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *GormNotificationRepo) SetRecipient(ctx context.Context, id string, recipient string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("recipient", recipient)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) ListByStatusFilter(ctx context.Context, serviceID string, statusFilters []string) ([]domain.Notification, error) {
	statuses, err := domain.SubstituteStatus(statusFilters...)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("service_id = ?", serviceID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var models []NotificationModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}
