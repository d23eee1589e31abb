// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/marketschool/internal/platform/constants"
)

// errLoginThrottled is wrapped by [RateLimitError].
var errLoginThrottled = errors.New("auth: login throttled")

// RateLimitError reports a throttled login and when it may be retried.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("auth: login throttled, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return errLoginThrottled }

// Throttle limits login attempts per client key.
type Throttle interface {
	Allow(ctx context.Context, key string) error
}

// LoginLimiter is a fixed-window attempt counter in Redis.
//
// The first attempt of a window creates the key with a TTL; every attempt
// increments it without extending the window. Counters are shared by every
// API instance.
type LoginLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewLoginLimiter creates a [LoginLimiter].
func NewLoginLimiter(client *redis.Client, maxAttempts int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

/*
Allow counts one login attempt for key.

Returns:
  - error: *RateLimitError when over budget, or a wrapped Redis error
*/
func (limiter *LoginLimiter) Allow(ctx context.Context, key string) error {
	redisKey := constants.RedisPrefixLoginAttempt + key

	// INCR and EXPIRE NX travel in one MULTI: the counter can never exist
	// without a TTL, and the window is not extended by later attempts.
	var incr *redis.IntCmd
	_, err := limiter.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, limiter.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_login_limiter_incr_failed: %w", err)
	}
	count := incr.Val()

	if count <= int64(limiter.maxAttempts) {
		return nil
	}

	retryAfter, err := limiter.client.TTL(ctx, redisKey).Result()
	if err != nil || retryAfter <= 0 {
		retryAfter = limiter.window
	}
	return &RateLimitError{RetryAfter: retryAfter}
}
