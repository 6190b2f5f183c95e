package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	Save(ctx context.Context, p *domain.NotificationPreferences) error
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	var model NotificationPreferenceModel
	err := r.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return preferenceModelToDomain(&model), nil
}

// Save upserts preferences. The settings flow owns this table; the engine
// only uses Save for seeding and tests.
func (r *GormPreferenceRepo) Save(ctx context.Context, p *domain.NotificationPreferences) error {
	model := preferenceModelFromDomain(p)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}
