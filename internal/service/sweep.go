package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
)

// Outcomes of a marked dispatch, also used as metric labels.
const (
	outcomeDispatched      = "dispatched"
	outcomeAlreadyNotified = "already_notified"
	outcomeOptedOut        = "opted_out"
	outcomeDuplicate       = "duplicate"
	outcomeFailed          = "failed"
	outcomeNotSelected     = "not_selected"
)

// SweepResult counts what one notification sweep did with its candidates.
type SweepResult struct {
	Candidates      int
	Dispatched      int
	AlreadyNotified int
	Skipped         int
	Failed          int
}

func (r *SweepResult) add(outcome string) {
	switch outcome {
	case outcomeDispatched:
		r.Dispatched++
	case outcomeAlreadyNotified:
		r.AlreadyNotified++
	case outcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// dispatchOnce dispatches intent unless marker is already recorded, and
// records marker only after the dispatcher reports delivery. A failed
// dispatch leaves no marker so the next sweep retries it.
func dispatchOnce(
	ctx context.Context,
	markers repository.MarkerRepository,
	dispatcher IntentDispatcher,
	marker domain.DispatchMarker,
	intent domain.NotificationIntent,
) (string, error) {
	exists, err := markers.Exists(ctx, marker)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to check dispatch marker: %w", err)
	}
	if exists {
		return outcomeAlreadyNotified, nil
	}

	intent.DedupeKey = marker.DedupeKey()
	result, err := dispatcher.Dispatch(ctx, intent)
	if err != nil {
		return outcomeFailed, fmt.Errorf("dispatch failed: %w", err)
	}
	if !result.Delivered {
		return outcomeFailed, fmt.Errorf("no channel delivered the notification")
	}

	outcome := outcomeDispatched
	switch {
	case result.OptedOut:
		outcome = outcomeOptedOut
	case result.Duplicate:
		outcome = outcomeDuplicate
	}

	// Recording must survive the run deadline once the notification exists.
	if err := markers.Record(context.WithoutCancel(ctx), marker); err != nil {
		return outcome, fmt.Errorf("failed to record dispatch marker: %w", err)
	}
	return outcome, nil
}
