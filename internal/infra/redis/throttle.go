package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/kursadbilgin/lesson-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPerSecond int64 = 10
	keyPrefix              = "lesson-engine:throttle"
	backoffStep            = 20 * time.Millisecond
	backoffMax             = 200 * time.Millisecond
)

// Fixed one-second window counter. The key expires with its window.
var windowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], 2)
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.Throttle = (*ChannelThrottle)(nil)

// ChannelThrottle shares a per-second send budget for each channel across
// every engine replica.
type ChannelThrottle struct {
	client    *goredis.Client
	perSecond map[domain.Channel]int64
	fallback  int64
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewChannelThrottle(client *goredis.Client, perSecond int, overrides map[domain.Channel]int) (*ChannelThrottle, error) {
	return newChannelThrottle(client, perSecond, overrides, time.Now, sleepWithContext)
}

func newChannelThrottle(
	client *goredis.Client,
	perSecond int,
	overrides map[domain.Channel]int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*ChannelThrottle, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	fallback := int64(perSecond)
	if fallback <= 0 {
		fallback = defaultPerSecond
	}

	limits := make(map[domain.Channel]int64, len(overrides))
	for ch, limit := range overrides {
		if limit > 0 {
			limits[ch] = int64(limit)
		}
	}

	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &ChannelThrottle{
		client:    client,
		perSecond: limits,
		fallback:  fallback,
		now:       nowFn,
		sleep:     sleepFn,
	}, nil
}

func (t *ChannelThrottle) limitFor(channel domain.Channel) int64 {
	if limit, ok := t.perSecond[channel]; ok {
		return limit
	}
	return t.fallback
}

func (t *ChannelThrottle) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	if !channel.IsValid() {
		return false, fmt.Errorf("%w: unknown channel %q", domain.ErrValidation, channel)
	}

	key := fmt.Sprintf("%s:%s:%d", keyPrefix, channel, t.now().UTC().Unix())
	result, err := windowScript.Run(ctx, t.client, []string{key}, t.limitFor(channel)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate channel throttle: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until channel has budget in the current window or ctx ends.
func (t *ChannelThrottle) Wait(ctx context.Context, channel domain.Channel) error {
	backoff := backoffStep
	for {
		allowed, err := t.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := t.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = min(backoff*2, backoffMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
