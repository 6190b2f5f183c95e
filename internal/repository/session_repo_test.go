package repository

import (
	"context"
	"testing"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
)

func sessionModel(id, date, clock string, status domain.SessionStatus) *ClassSessionModel {
	return &ClassSessionModel{
		ID:              id,
		StudentID:       "student-1",
		TeacherID:       "teacher-1",
		Date:            date,
		Time:            clock,
		DurationMinutes: 60,
		Status:          status,
	}
}

func sessionIDs(sessions []domain.ClassSession) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSessionRepoListActiveOnOrBefore(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	mustCreate(t, db,
		sessionModel("today-late", "2025-11-06", "18:00", domain.SessionScheduled),
		sessionModel("today-early", "2025-11-06", "09:00", domain.SessionInProgress),
		sessionModel("yesterday", "2025-11-05", "20:00", domain.SessionScheduled),
		sessionModel("tomorrow", "2025-11-07", "09:00", domain.SessionScheduled),
		sessionModel("cancelled", "2025-11-06", "10:00", domain.SessionCancelled),
		sessionModel("done", "2025-11-04", "10:00", domain.SessionCompleted),
	)

	repo := NewGormSessionRepo(db)
	sessions, err := repo.ListActiveOnOrBefore(context.Background(), "2025-11-06")
	if err != nil {
		t.Fatalf("ListActiveOnOrBefore() error = %v", err)
	}

	want := []string{"yesterday", "today-early", "today-late"}
	if got := sessionIDs(sessions); !equalIDs(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestSessionRepoListScheduledBetween(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	mustCreate(t, db,
		sessionModel("a", "2025-11-06", "23:30", domain.SessionScheduled),
		sessionModel("b", "2025-11-07", "00:30", domain.SessionScheduled),
		sessionModel("c", "2025-11-08", "00:30", domain.SessionScheduled),
		sessionModel("d", "2025-11-07", "01:00", domain.SessionInProgress),
	)

	repo := NewGormSessionRepo(db)
	sessions, err := repo.ListScheduledBetween(context.Background(), "2025-11-06", "2025-11-07")
	if err != nil {
		t.Fatalf("ListScheduledBetween() error = %v", err)
	}

	want := []string{"a", "b"}
	if got := sessionIDs(sessions); !equalIDs(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestSessionRepoTransitionStatusIsConditional(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	mustCreate(t, db, sessionModel("s1", "2025-11-06", "16:00", domain.SessionScheduled))
	repo := NewGormSessionRepo(db)
	ctx := context.Background()

	updated, err := repo.TransitionStatus(ctx, "s1", domain.SessionScheduled, domain.SessionInProgress)
	if err != nil {
		t.Fatalf("TransitionStatus() error = %v", err)
	}
	if !updated {
		t.Fatal("updated = false, want true")
	}

	// A second writer still expecting scheduled must not win.
	updated, err = repo.TransitionStatus(ctx, "s1", domain.SessionScheduled, domain.SessionCompleted)
	if err != nil {
		t.Fatalf("TransitionStatus() error = %v", err)
	}
	if updated {
		t.Fatal("updated = true for stale from status, want false")
	}

	if session := loadSession(t, db, "s1"); session.Status != domain.SessionInProgress {
		t.Fatalf("status = %s, want %s", session.Status, domain.SessionInProgress)
	}

	updated, err = repo.TransitionStatus(ctx, "missing", domain.SessionScheduled, domain.SessionInProgress)
	if err != nil || updated {
		t.Fatalf("TransitionStatus(missing) = %v, %v; want false, nil", updated, err)
	}
}
