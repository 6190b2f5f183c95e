package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/kursadbilgin/lesson-engine/internal/observability"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	lowBalanceMarkerPrefix  = "low_balance:"
	trialExpiryMarkerPrefix = "trial_expiry:"
	trialEndsAtLayout       = "2006-01-02 15:04"
)

// LowBalanceSweeper warns paying students whose lesson balance is at or
// below the threshold, at most once per operating-zone day.
type LowBalanceSweeper struct {
	students   repository.StudentRepository
	markers    repository.MarkerRepository
	dispatcher IntentDispatcher
	threshold  int
	location   *time.Location
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewLowBalanceSweeper(
	students repository.StudentRepository,
	markers repository.MarkerRepository,
	dispatcher IntentDispatcher,
	threshold int,
	location *time.Location,
	logger *zap.Logger,
) (*LowBalanceSweeper, error) {
	switch {
	case students == nil:
		return nil, fmt.Errorf("student repository is required")
	case markers == nil:
		return nil, fmt.Errorf("marker repository is required")
	case dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	case threshold < 0:
		return nil, fmt.Errorf("low balance threshold must not be negative")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LowBalanceSweeper{
		students:   students,
		markers:    markers,
		dispatcher: dispatcher,
		threshold:  threshold,
		location:   location,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *LowBalanceSweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *LowBalanceSweeper) Run(ctx context.Context) error {
	result, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	logSweepResult(observability.WithContextLogger(s.logger, ctx), "low balance sweep finished", result)
	return nil
}

func (s *LowBalanceSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	logger := observability.WithContextLogger(s.logger, ctx)
	day := s.now().In(s.location).Format(domain.SessionDateLayout)

	students, err := s.students.ListLowBalance(ctx, s.threshold)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list low balance students: %w", err)
	}

	var result SweepResult
	for _, student := range students {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Candidates++
		marker := domain.DispatchMarker{
			SubjectID: student.UserID,
			UserID:    student.UserID,
			Key:       lowBalanceMarkerPrefix + day,
		}
		intent := domain.NotificationIntent{
			UserID: student.UserID,
			Kind:   domain.KindLowBalance,
			TemplateParams: map[string]string{
				"remainingLessons": strconv.Itoa(student.RemainingLessons),
			},
		}

		outcome, err := dispatchOnce(ctx, s.markers, s.dispatcher, marker, intent)
		result.add(outcome)
		s.metrics.IncReminder("low_balance", outcome)
		if err != nil {
			logger.Error("low balance notification failed",
				zap.String("userId", student.UserID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// TrialExpirySweeper tells trial students their trial is about to end, once
// per trial end date.
type TrialExpirySweeper struct {
	students   repository.StudentRepository
	markers    repository.MarkerRepository
	dispatcher IntentDispatcher
	lookahead  time.Duration
	location   *time.Location
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewTrialExpirySweeper(
	students repository.StudentRepository,
	markers repository.MarkerRepository,
	dispatcher IntentDispatcher,
	lookahead time.Duration,
	location *time.Location,
	logger *zap.Logger,
) (*TrialExpirySweeper, error) {
	switch {
	case students == nil:
		return nil, fmt.Errorf("student repository is required")
	case markers == nil:
		return nil, fmt.Errorf("marker repository is required")
	case dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	case lookahead <= 0:
		return nil, fmt.Errorf("trial expiry lookahead must be positive")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TrialExpirySweeper{
		students:   students,
		markers:    markers,
		dispatcher: dispatcher,
		lookahead:  lookahead,
		location:   location,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *TrialExpirySweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *TrialExpirySweeper) Run(ctx context.Context) error {
	result, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	logSweepResult(observability.WithContextLogger(s.logger, ctx), "trial expiry sweep finished", result)
	return nil
}

func (s *TrialExpirySweeper) Sweep(ctx context.Context) (SweepResult, error) {
	logger := observability.WithContextLogger(s.logger, ctx)
	now := s.now()

	students, err := s.students.ListTrialsEndingBetween(ctx, now, now.Add(s.lookahead))
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list expiring trials: %w", err)
	}

	var result SweepResult
	for _, student := range students {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if student.TrialEndsAt == nil {
			continue
		}

		result.Candidates++
		endsAt := student.TrialEndsAt.In(s.location)
		marker := domain.DispatchMarker{
			SubjectID: student.UserID,
			UserID:    student.UserID,
			Key:       trialExpiryMarkerPrefix + endsAt.Format(domain.SessionDateLayout),
		}
		intent := domain.NotificationIntent{
			UserID: student.UserID,
			Kind:   domain.KindTrialExpiring,
			TemplateParams: map[string]string{
				"trialEndsAt": endsAt.Format(trialEndsAtLayout),
			},
		}

		outcome, err := dispatchOnce(ctx, s.markers, s.dispatcher, marker, intent)
		result.add(outcome)
		s.metrics.IncReminder("trial_expiry", outcome)
		if err != nil {
			logger.Error("trial expiry notification failed",
				zap.String("userId", student.UserID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

func logSweepResult(logger *zap.Logger, msg string, result SweepResult) {
	logger.Info(msg,
		zap.Int("candidates", result.Candidates),
		zap.Int("dispatched", result.Dispatched),
		zap.Int("alreadyNotified", result.AlreadyNotified),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
}
