package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scoreboard/core"
	"scoreboard/ratelimit"
)

// Lua script for an atomic fixed-window check: denial does not consume the
// count, and only the first increment sets the window expiry.
var checkWindowScript = redis.NewScript(`
	local max = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	if current >= max then
		return -1
	end
	current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], window)
	end
	return max - current
`)

// Limiter is a Redis-backed fixed-window rate limiter shared across nodes.
type Limiter struct {
	client *redis.Client
	max    int
	span   time.Duration
}

func NewLimiter(client *redis.Client, max int, span time.Duration) *Limiter {
	if max <= 0 {
		max = ratelimit.DefaultMax
	}
	if span <= 0 {
		span = ratelimit.DefaultWindow
	}
	return &Limiter{client: client, max: max, span: span}
}

func (l *Limiter) Check(ctx context.Context, actor core.ActorID, class core.ActionKind) (int, bool, error) {
	key := "rl:" + ratelimit.Key(actor, class)
	result, err := checkWindowScript.Run(ctx, l.client, []string{key}, l.max, l.span.Milliseconds()).Result()
	if err != nil {
		return 0, false, fmt.Errorf("rate limit check: %w", err)
	}
	remaining, ok := result.(int64)
	if !ok {
		return 0, false, errors.New("unexpected result type from Redis script")
	}
	if remaining < 0 {
		return 0, false, nil
	}
	return int(remaining), true, nil
}

var _ ratelimit.Limiter = (*Limiter)(nil)
