package ratelimit

import (
	"context"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
)

// Throttle paces outbound sends per delivery channel.
type Throttle interface {
	Allow(ctx context.Context, channel domain.Channel) (bool, error)
	Wait(ctx context.Context, channel domain.Channel) error
}

// Unlimited never throttles. It backs CHANNEL_RATE_LIMIT_PER_SEC=0.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, domain.Channel) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _ domain.Channel) error { return ctx.Err() }
