package redisdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/bellbook/bellbook/core/messaging"
)

// RateLimiter is a fixed-window counter. The first hit in a window creates
// the counter with the window's TTL; later hits only increment it, so the
// window never slides.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

var _ messaging.RateLimiter = (*RateLimiter)(nil)

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = "ratelimit:" + key

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, "incrementing rate counter")
	}
	if count == 1 {
		if err = rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			return false, errors.Wrap(err, "setting rate window")
		}
	}
	return count <= int64(rl.limit), nil
}
