package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a booked lesson.
type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionNoShow     SessionStatus = "no_show"
)

func (s SessionStatus) String() string { return string(s) }

func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionScheduled, SessionInProgress, SessionCompleted, SessionCancelled, SessionNoShow:
		return true
	}
	return false
}

func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionCancelled, SessionNoShow:
		return true
	}
	return false
}

// CanTransitionTo reports whether the engine may move a session from s to next.
// Cancellation and no-show are owned by other flows and never reachable here.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionScheduled:
		return next == SessionInProgress || next == SessionCompleted
	case SessionInProgress:
		return next == SessionCompleted
	}
	return false
}

const (
	SessionDateLayout = "2006-01-02"
	SessionTimeLayout = "15:04"
)

var sessionTimeLayouts = []string{SessionTimeLayout, "15:04:05"}

// ClassSession is a booked lesson. StudentID and TeacherID are user account ids.
// Date and Time are wall-clock values in the operating time zone.
type ClassSession struct {
	ID              string
	StudentID       string
	TeacherID       string
	Date            string
	Time            string
	DurationMinutes int
	MeetingLink     string
	IsTrial         bool
	Status          SessionStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StartAt combines Date and Time in loc.
func (s ClassSession) StartAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	day, err := time.ParseInLocation(SessionDateLayout, strings.TrimSpace(s.Date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: session %s date %q", ErrMalformedSchedule, s.ID, s.Date)
	}

	clock := strings.TrimSpace(s.Time)
	for _, layout := range sessionTimeLayouts {
		t, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}

	return time.Time{}, fmt.Errorf("%w: session %s time %q", ErrMalformedSchedule, s.ID, s.Time)
}

// Window returns the start and end instants of the session.
func (s ClassSession) Window(loc *time.Location) (time.Time, time.Time, error) {
	start, err := s.StartAt(loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if s.DurationMinutes <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: session %s duration %d", ErrMalformedSchedule, s.ID, s.DurationMinutes)
	}
	return start, start.Add(time.Duration(s.DurationMinutes) * time.Minute), nil
}

// DueStatus returns the status the session should hold at now, and whether
// that differs from its current status. Terminal sessions never move.
func (s ClassSession) DueStatus(now time.Time, loc *time.Location) (SessionStatus, bool, error) {
	if s.Status.IsTerminal() {
		return s.Status, false, nil
	}

	start, end, err := s.Window(loc)
	if err != nil {
		return s.Status, false, err
	}

	var due SessionStatus
	switch {
	case now.Before(start):
		return s.Status, false, nil
	case now.Before(end):
		due = SessionInProgress
	default:
		due = SessionCompleted
	}

	if due == s.Status || !s.Status.CanTransitionTo(due) {
		return s.Status, false, nil
	}
	return due, true, nil
}
