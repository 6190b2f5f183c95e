package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"gorm.io/gorm"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type StudentRepository interface {
	// ListLowBalance returns non-trial students with at most threshold lessons left.
	ListLowBalance(ctx context.Context, threshold int) ([]domain.StudentProfile, error)
	// ListTrialsEndingBetween returns trial students whose trial ends within [from, to].
	ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]domain.StudentProfile, error)
}

type GormUserRepo struct {
	db *gorm.DB
}

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

func (r *GormUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return userModelToDomain(&model), nil
}

type GormStudentRepo struct {
	db *gorm.DB
}

func NewGormStudentRepo(db *gorm.DB) *GormStudentRepo {
	return &GormStudentRepo{db: db}
}

func (r *GormStudentRepo) ListLowBalance(ctx context.Context, threshold int) ([]domain.StudentProfile, error) {
	var models []StudentProfileModel
	err := r.db.WithContext(ctx).
		Where("is_trial = ? AND remaining_lessons <= ?", false, threshold).
		Order("user_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return studentsToDomain(models), nil
}

func (r *GormStudentRepo) ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]domain.StudentProfile, error) {
	var models []StudentProfileModel
	err := r.db.WithContext(ctx).
		Where("is_trial = ? AND trial_ends_at >= ? AND trial_ends_at <= ?", true, from.UTC(), to.UTC()).
		Order("trial_ends_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return studentsToDomain(models), nil
}

func studentsToDomain(models []StudentProfileModel) []domain.StudentProfile {
	students := make([]domain.StudentProfile, 0, len(models))
	for i := range models {
		students = append(students, *studentModelToDomain(&models[i]))
	}
	return students
}
