package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gorm.io/gorm"
)

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.DeliveryRecord) error
	// CompleteAttempt stores the outcome of a pending record.
	CompleteAttempt(ctx context.Context, id string, status domain.DeliveryStatus, sentAt *time.Time, errMsg *string) error
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.DeliveryRecord) error {
	if d == nil {
		return fmt.Errorf("%w: delivery record is required", domain.ErrValidation)
	}
	model := deliveryModelFromDomain(d)
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*d = *deliveryModelToDomain(model)
	return nil
}

func (r *GormDeliveryRepo) CompleteAttempt(
	ctx context.Context,
	id string,
	status domain.DeliveryStatus,
	sentAt *time.Time,
	errMsg *string,
) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"sent_at":       sentAt,
			"error_message": errMsg,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
