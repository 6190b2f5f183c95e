package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MarkerRepository interface {
	Exists(ctx context.Context, m domain.DispatchMarker) (bool, error)
	// Record stores m. Recording an existing marker is a no-op.
	Record(ctx context.Context, m domain.DispatchMarker) error
}

type GormMarkerRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormMarkerRepo(db *gorm.DB) *GormMarkerRepo {
	return &GormMarkerRepo{db: db, now: time.Now}
}

func (r *GormMarkerRepo) Exists(ctx context.Context, m domain.DispatchMarker) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DispatchMarkerModel{}).
		Where("subject_id = ? AND user_id = ? AND marker_key = ?", m.SubjectID, m.UserID, m.Key).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormMarkerRepo) Record(ctx context.Context, m domain.DispatchMarker) error {
	if strings.TrimSpace(m.SubjectID) == "" || strings.TrimSpace(m.UserID) == "" || strings.TrimSpace(m.Key) == "" {
		return fmt.Errorf("%w: marker subject, user and key are required", domain.ErrValidation)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now().UTC()
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "subject_id"},
				{Name: "user_id"},
				{Name: "marker_key"},
			},
			DoNothing: true,
		}).
		Create(markerModelFromDomain(&m)).Error
}
