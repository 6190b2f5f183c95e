package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository interface {
	// CreateIfAbsent inserts n unless a notification with the same dedupe key
	// exists. When it does, n is replaced with the stored row and created is false.
	CreateIfAbsent(ctx context.Context, n *domain.Notification) (created bool, err error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) CreateIfAbsent(ctx context.Context, n *domain.Notification) (bool, error) {
	if n == nil {
		return false, fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	model := notificationModelFromDomain(n)
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if model.DedupeKey == nil || strings.TrimSpace(*model.DedupeKey) == "" {
		model.DedupeKey = nil
		if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
			return false, err
		}
		*n = *notificationModelToDomain(model)
		return true, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		*n = *notificationModelToDomain(model)
		return true, nil
	}

	existing, err := r.findByDedupeKey(ctx, *model.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("failed to load existing notification after dedupe conflict: %w", err)
	}
	*n = *existing
	return false, nil
}

func (r *GormNotificationRepo) findByDedupeKey(ctx context.Context, dedupeKey string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("dedupe_key = ?", dedupeKey).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}
