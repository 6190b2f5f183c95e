package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/kursadbilgin/lesson-engine/internal/observability"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
	"go.uber.org/zap"
)

// ReminderDetector finds scheduled sessions that entered a lead-time window
// and notifies each participant once per session and lead time.
type ReminderDetector struct {
	sessions    repository.SessionRepository
	users       repository.UserRepository
	preferences repository.PreferenceRepository
	markers     repository.MarkerRepository
	dispatcher  IntentDispatcher
	location    *time.Location
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewReminderDetector(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	preferences repository.PreferenceRepository,
	markers repository.MarkerRepository,
	dispatcher IntentDispatcher,
	location *time.Location,
	logger *zap.Logger,
) (*ReminderDetector, error) {
	switch {
	case sessions == nil:
		return nil, fmt.Errorf("session repository is required")
	case users == nil:
		return nil, fmt.Errorf("user repository is required")
	case preferences == nil:
		return nil, fmt.Errorf("preference repository is required")
	case markers == nil:
		return nil, fmt.Errorf("marker repository is required")
	case dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReminderDetector{
		sessions:    sessions,
		users:       users,
		preferences: preferences,
		markers:     markers,
		dispatcher:  dispatcher,
		location:    location,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (d *ReminderDetector) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Job adapts Sweep for the task scheduler.
func (d *ReminderDetector) Job(lead domain.LeadTime) Task {
	return func(ctx context.Context) error {
		result, err := d.Sweep(ctx, lead)
		if err != nil {
			return err
		}
		logger := observability.WithContextLogger(d.logger, ctx).With(zap.String("leadTime", lead.Key))
		logSweepResult(logger, "reminder sweep finished", result)
		return nil
	}
}

// Sweep handles scheduled sessions starting within [now, now+lead].
func (d *ReminderDetector) Sweep(ctx context.Context, lead domain.LeadTime) (SweepResult, error) {
	logger := observability.WithContextLogger(d.logger, ctx).With(zap.String("leadTime", lead.Key))
	now := d.now().In(d.location)
	horizon := now.Add(lead.Duration)

	sessions, err := d.sessions.ListScheduledBetween(ctx,
		now.Format(domain.SessionDateLayout),
		horizon.Format(domain.SessionDateLayout),
	)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list scheduled sessions: %w", err)
	}

	names := make(map[string]string)
	var result SweepResult
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		session := sessions[i]
		start, err := session.StartAt(d.location)
		if err != nil {
			result.Failed++
			logger.Warn("skipping session with malformed schedule",
				zap.String("sessionId", session.ID),
				zap.Error(err),
			)
			continue
		}
		if start.Before(now) || start.After(horizon) {
			continue
		}

		for _, recipient := range d.recipients(session, lead) {
			result.Candidates++
			outcome, err := d.remind(ctx, session, start, lead, recipient, names)
			result.add(outcome)
			d.metrics.IncReminder(lead.Key, outcome)
			if err != nil {
				logger.Error("reminder dispatch failed",
					zap.String("sessionId", session.ID),
					zap.String("userId", recipient.userID),
					zap.Error(err),
				)
			}
		}
	}

	return result, nil
}

type reminderRecipient struct {
	userID        string
	counterpartID string
}

func (d *ReminderDetector) recipients(session domain.ClassSession, lead domain.LeadTime) []reminderRecipient {
	recipients := []reminderRecipient{{userID: session.StudentID, counterpartID: session.TeacherID}}
	if lead.NotifyTeacher && session.TeacherID != "" {
		recipients = append(recipients, reminderRecipient{userID: session.TeacherID, counterpartID: session.StudentID})
	}
	return recipients
}

func (d *ReminderDetector) remind(
	ctx context.Context,
	session domain.ClassSession,
	start time.Time,
	lead domain.LeadTime,
	recipient reminderRecipient,
	names map[string]string,
) (string, error) {
	selected, err := d.leadSelected(ctx, recipient.userID, lead)
	if err != nil {
		return outcomeFailed, err
	}
	if !selected {
		return outcomeNotSelected, nil
	}

	intent := domain.NotificationIntent{
		SessionID: session.ID,
		UserID:    recipient.userID,
		Kind:      domain.KindClassReminder,
		LeadTime:  lead.Key,
		TemplateParams: map[string]string{
			"leadTime":        lead.Key,
			"sessionDate":     start.Format(domain.SessionDateLayout),
			"sessionTime":     start.Format(domain.SessionTimeLayout),
			"meetingLink":     session.MeetingLink,
			"counterpartName": d.displayName(ctx, recipient.counterpartID, names),
		},
	}

	return dispatchOnce(ctx, d.markers, d.dispatcher, domain.ReminderMarker(session.ID, recipient.userID, lead), intent)
}

func (d *ReminderDetector) leadSelected(ctx context.Context, userID string, lead domain.LeadTime) (bool, error) {
	prefs, err := d.preferences.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load preferences: %w", err)
	}
	return prefs.LeadTimeSelected(lead.Key), nil
}

// displayName resolves a participant name for templates. Lookup failures
// leave the name empty rather than blocking the reminder.
func (d *ReminderDetector) displayName(ctx context.Context, userID string, cache map[string]string) string {
	if userID == "" {
		return ""
	}
	if name, ok := cache[userID]; ok {
		return name
	}

	var name string
	if user, err := d.users.GetByID(ctx, userID); err == nil {
		name = user.FullName
	}
	cache[userID] = name
	return name
}
