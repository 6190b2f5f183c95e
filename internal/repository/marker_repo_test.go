package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
)

func TestMarkerRepoRecordIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewGormMarkerRepo(db)
	ctx := context.Background()
	marker := domain.ReminderMarker("s1", "student-1", domain.Lead1Hour)

	exists, err := repo.Exists(ctx, marker)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Fatal("exists = true before Record, want false")
	}

	for i := 0; i < 2; i++ {
		if err := repo.Record(ctx, marker); err != nil {
			t.Fatalf("Record() #%d error = %v", i, err)
		}
	}

	exists, err = repo.Exists(ctx, marker)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Fatal("exists = false after Record, want true")
	}

	var count int64
	if err := db.Model(&DispatchMarkerModel{}).Count(&count).Error; err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("marker rows = %d, want 1", count)
	}
}

func TestMarkerRepoIdentityIncludesLeadAndUser(t *testing.T) {
	t.Parallel()

	repo := NewGormMarkerRepo(newTestDB(t))
	ctx := context.Background()

	if err := repo.Record(ctx, domain.ReminderMarker("s1", "student-1", domain.Lead24Hours)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	for _, m := range []domain.DispatchMarker{
		domain.ReminderMarker("s1", "student-1", domain.Lead1Hour),
		domain.ReminderMarker("s1", "teacher-1", domain.Lead24Hours),
		domain.ReminderMarker("s2", "student-1", domain.Lead24Hours),
	} {
		exists, err := repo.Exists(ctx, m)
		if err != nil {
			t.Fatalf("Exists(%s) error = %v", m.DedupeKey(), err)
		}
		if exists {
			t.Fatalf("Exists(%s) = true, want false", m.DedupeKey())
		}
	}
}

func TestMarkerRepoRecordValidation(t *testing.T) {
	t.Parallel()

	repo := NewGormMarkerRepo(newTestDB(t))
	err := repo.Record(context.Background(), domain.DispatchMarker{SubjectID: "s1", UserID: " "})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Record() error = %v, want ErrValidation", err)
	}
}
