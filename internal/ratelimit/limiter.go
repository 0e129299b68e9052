// Package ratelimit implements fixed-window request limiting over a pluggable
// counter store. The in-memory store is the default; Redis provides shared
// counters when the service runs with more than one replica.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// Store counts requests per key within a fixed window. Incr returns the
// count after this request and when the current window resets.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Result is one limiter decision, carrying everything the HTTP layer needs
// for the X-RateLimit response headers.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter applies one named policy over a Store.
type Limiter struct {
	name        string
	maxRequests int
	window      time.Duration
	store       Store
}

// NewLimiter creates a limiter for one policy.
func NewLimiter(name string, maxRequests int, window time.Duration, store Store) *Limiter {
	return &Limiter{
		name:        name,
		maxRequests: maxRequests,
		window:      window,
		store:       store,
	}
}

// Name returns the policy name.
func (l *Limiter) Name() string {
	return l.name
}

// Check counts this request against the identifier's window. A store failure
// fails open: the request is allowed and the error is logged, so a degraded
// Redis never takes the public endpoints down with it.
func (l *Limiter) Check(ctx context.Context, identifier string) Result {
	count, resetAt, err := l.store.Incr(ctx, l.name+":"+identifier, l.window)
	if err != nil {
		logger.FromContext(ctx).Warn("Rate limit store failed, allowing request",
			zap.String("policy", l.name),
			zap.String("identifier", identifier),
			zap.Error(err))
		observer.IncRateLimitDecision(l.name, "store_error")
		return Result{
			Allowed:   true,
			Limit:     l.maxRequests,
			Remaining: l.maxRequests,
			ResetAt:   utils.Now().Add(l.window),
		}
	}

	remaining := l.maxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(l.maxRequests) {
		observer.IncRateLimitDecision(l.name, "limited")
		retryAfter := time.Until(resetAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{
			Allowed:    false,
			Limit:      l.maxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}
	}

	observer.IncRateLimitDecision(l.name, "allowed")
	return Result{
		Allowed:   true,
		Limit:     l.maxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
