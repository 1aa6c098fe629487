package redis

import (
	"context"
	"fmt"
	"time"
)

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// RateLimiter is a fixed-window counter shared by every API instance.
type RateLimiter struct {
	client RedisClient
	limit  int
	window time.Duration
}

func NewRateLimiter(client RedisClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (r *RateLimiter) Allow(ctx context.Context, key string) (RateDecision, error) {
	d := RateDecision{Limit: r.limit}
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return d, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window); err != nil {
			return d, err
		}
		d.ResetIn = r.window
	} else {
		ttl, err := r.client.TTL(ctx, key)
		if err != nil {
			return d, err
		}
		// a failed EXPIRE after the first INCR would otherwise pin the counter forever
		if ttl < 0 {
			if err := r.client.Expire(ctx, key, r.window); err != nil {
				return d, err
			}
			ttl = r.window
		}
		d.ResetIn = ttl
	}

	if count > int64(r.limit) {
		return d, nil
	}
	d.Allowed = true
	d.Remaining = r.limit - int(count)
	return d, nil
}

func ClientKey(clientIP, route string) string {
	return fmt.Sprintf("rate_limit:%s:%s", route, clientIP)
}
