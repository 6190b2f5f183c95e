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

// TrialConverter hands a completed trial session to the subscription flow,
// which decides whether the student is converted.
type TrialConverter interface {
	ConvertTrialIfEligible(ctx context.Context, sessionID string) error
}

// conversionTimeout bounds one conversion hand-off so a broker outage cannot
// hold up the sessions behind it.
const conversionTimeout = 5 * time.Second

type TransitionResult struct {
	InProgress  int
	Completed   int
	Skipped     int
	Failed      int
	Conversions int
}

// ClassStatusEngine advances sessions through scheduled, in_progress and
// completed as wall-clock time passes.
type ClassStatusEngine struct {
	sessions          repository.SessionRepository
	converter         TrialConverter
	location          *time.Location
	logger            *zap.Logger
	metrics           *observability.Metrics
	now               func() time.Time
	conversionTimeout time.Duration
}

func NewClassStatusEngine(
	sessions repository.SessionRepository,
	converter TrialConverter,
	location *time.Location,
	logger *zap.Logger,
) (*ClassStatusEngine, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ClassStatusEngine{
		sessions:          sessions,
		converter:         converter,
		location:          location,
		logger:            logger,
		now:               time.Now,
		conversionTimeout: conversionTimeout,
	}, nil
}

func (e *ClassStatusEngine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Sweep moves every due session. Per-session failures are counted and
// logged; only a failure to list sessions aborts the sweep.
func (e *ClassStatusEngine) Sweep(ctx context.Context) (TransitionResult, error) {
	logger := observability.WithContextLogger(e.logger, ctx)
	now := e.now().In(e.location)

	sessions, err := e.sessions.ListActiveOnOrBefore(ctx, now.Format(domain.SessionDateLayout))
	if err != nil {
		return TransitionResult{}, fmt.Errorf("failed to list active sessions: %w", err)
	}

	var result TransitionResult
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		session := sessions[i]
		due, changed, err := session.DueStatus(now, e.location)
		if err != nil {
			result.Failed++
			logger.Warn("skipping session with malformed schedule",
				zap.String("sessionId", session.ID),
				zap.Error(err),
			)
			continue
		}
		if !changed {
			continue
		}

		updated, err := e.sessions.TransitionStatus(ctx, session.ID, session.Status, due)
		if err != nil {
			result.Failed++
			logger.Error("failed to transition session",
				zap.String("sessionId", session.ID),
				zap.String("from", session.Status.String()),
				zap.String("to", due.String()),
				zap.Error(err),
			)
			continue
		}
		if !updated {
			// Someone else moved the row since it was read, e.g. a cancellation.
			result.Skipped++
			logger.Info("session status changed concurrently, skipping",
				zap.String("sessionId", session.ID),
				zap.String("expected", session.Status.String()),
			)
			continue
		}

		e.metrics.IncSessionTransition(due.String())
		logger.Info("session transitioned",
			zap.String("sessionId", session.ID),
			zap.String("from", session.Status.String()),
			zap.String("to", due.String()),
		)

		switch due {
		case domain.SessionInProgress:
			result.InProgress++
		case domain.SessionCompleted:
			result.Completed++
			if session.IsTrial && e.requestConversion(ctx, logger, session.ID) {
				result.Conversions++
			}
		}
	}

	return result, nil
}

func (e *ClassStatusEngine) requestConversion(ctx context.Context, logger *zap.Logger, sessionID string) bool {
	if e.converter == nil {
		logger.Warn("no trial converter configured", zap.String("sessionId", sessionID))
		return false
	}

	// The hand-off runs on its own deadline, not the sweep's.
	convertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.conversionTimeout)
	defer cancel()

	if err := e.converter.ConvertTrialIfEligible(convertCtx, sessionID); err != nil {
		level := zap.ErrorLevel
		if errors.Is(err, context.Canceled) {
			level = zap.WarnLevel
		}
		logger.Log(level, "trial conversion request failed",
			zap.String("sessionId", sessionID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (e *ClassStatusEngine) Run(ctx context.Context) error {
	result, err := e.Sweep(ctx)
	if err != nil {
		return err
	}
	observability.WithContextLogger(e.logger, ctx).Info("status sweep finished",
		zap.Int("inProgress", result.InProgress),
		zap.Int("completed", result.Completed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("conversions", result.Conversions),
	)
	return nil
}
