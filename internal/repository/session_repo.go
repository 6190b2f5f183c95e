package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gorm.io/gorm"
)

type SessionRepository interface {
	// ListActiveOnOrBefore returns scheduled and in-progress sessions whose
	// date is on or before the given operating-zone date (YYYY-MM-DD).
	ListActiveOnOrBefore(ctx context.Context, date string) ([]domain.ClassSession, error)
	// ListScheduledBetween returns scheduled sessions dated within [fromDate, toDate].
	ListScheduledBetween(ctx context.Context, fromDate, toDate string) ([]domain.ClassSession, error)
	// TransitionStatus moves a session from one status to another only if it
	// still holds from. It reports whether the row was updated.
	TransitionStatus(ctx context.Context, id string, from, to domain.SessionStatus) (bool, error)
}

type GormSessionRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormSessionRepo(db *gorm.DB) *GormSessionRepo {
	return &GormSessionRepo{db: db, now: time.Now}
}

func (r *GormSessionRepo) ListActiveOnOrBefore(ctx context.Context, date string) ([]domain.ClassSession, error) {
	var models []ClassSessionModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND date <= ?", []domain.SessionStatus{domain.SessionScheduled, domain.SessionInProgress}, date).
		Order("date ASC, time ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return sessionsToDomain(models), nil
}

func (r *GormSessionRepo) ListScheduledBetween(ctx context.Context, fromDate, toDate string) ([]domain.ClassSession, error) {
	var models []ClassSessionModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND date >= ? AND date <= ?", domain.SessionScheduled, fromDate, toDate).
		Order("date ASC, time ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return sessionsToDomain(models), nil
}

func (r *GormSessionRepo) TransitionStatus(ctx context.Context, id string, from, to domain.SessionStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ClassSessionModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": r.now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func sessionsToDomain(models []ClassSessionModel) []domain.ClassSession {
	sessions := make([]domain.ClassSession, 0, len(models))
	for i := range models {
		sessions = append(sessions, *sessionModelToDomain(&models[i]))
	}
	return sessions
}
