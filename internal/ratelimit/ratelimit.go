// Package ratelimit implements the per-scope fixed-window limiters that
// sit in front of the connection gateway and control plane: auth attempts
// per source address, messages per session, memory writes per agent, task
// submissions per agent, and API requests per key. Counters live in Redis
// so limits hold across every gateway instance, not just one process.
package ratelimit

import (
	"context"
	"time"

	"github.com/streamspace-dev/ringforge/internal/cache"
	"github.com/streamspace-dev/ringforge/internal/errors"
)

// Scopes the gateway and control plane rate limit against.
const (
	ScopeAuth        = "auth"
	ScopeMessage     = "message"
	ScopeMemoryWrite = "memory_write"
	ScopeTaskSubmit   = "task_submit"
	ScopeAPIRequest   = "api_request"
)

// Limit pairs a window with the max count allowed inside it.
type Limit struct {
	Max    int64
	Window time.Duration
}

// DefaultLimits are the out-of-the-box per-scope ceilings; callers may
// override per tenant plan.
var DefaultLimits = map[string]Limit{
	ScopeAuth:        {Max: 5, Window: time.Minute},
	ScopeMessage:     {Max: 100, Window: time.Second},
	ScopeMemoryWrite: {Max: 50, Window: time.Second},
	ScopeTaskSubmit:  {Max: 20, Window: time.Second},
	ScopeAPIRequest:  {Max: 300, Window: time.Minute},
}

// Limiter enforces fixed-window counters per (scope, subject) in Redis.
// A window is a Redis key that counts up from zero and expires at the
// window's edge; this slightly over-admits at window boundaries compared
// to a true sliding log, a tradeoff accepted in exchange for a single
// INCR+EXPIRE round trip.
type Limiter struct {
	cache  *cache.Cache
	limits map[string]Limit
}

func NewLimiter(c *cache.Cache, overrides map[string]Limit) *Limiter {
	limits := make(map[string]Limit, len(DefaultLimits))
	for k, v := range DefaultLimits {
		limits[k] = v
	}
	for k, v := range overrides {
		limits[k] = v
	}
	return &Limiter{cache: c, limits: limits}
}

// Allow increments the counter for (scope, subject) and reports whether
// the request should proceed. With caching disabled, limiting is
// advisory-only and every request is allowed.
func (l *Limiter) Allow(ctx context.Context, scope, subject string) (bool, *errors.AppError) {
	if !l.cache.IsEnabled() {
		return true, nil
	}
	limit, ok := l.limits[scope]
	if !ok {
		return true, nil
	}

	key := cache.RateLimitKey(scope, subject)
	count, err := l.cache.Increment(ctx, key)
	if err != nil {
		return false, errors.Unavailable("rate limiter")
	}
	if count == 1 {
		_ = l.cache.Expire(ctx, key, limit.Window)
	}
	if count > limit.Max {
		return false, errors.RateLimited(scope + " rate limit exceeded")
	}
	return true, nil
}

// Check is Allow's boolean-error variant for call sites that want to fold
// the result straight into an AppError-returning handler chain.
func (l *Limiter) Check(ctx context.Context, scope, subject string) *errors.AppError {
	ok, appErr := l.Allow(ctx, scope, subject)
	if appErr != nil {
		return appErr
	}
	if !ok {
		return errors.RateLimited(scope + " rate limit exceeded")
	}
	return nil
}
