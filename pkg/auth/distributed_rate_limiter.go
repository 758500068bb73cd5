package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"postservice/application/ports"
	"postservice/pkg/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// expirySlack keeps an idle window's key alive slightly past the window
const expirySlack = 2 * time.Second

// DistributedRateLimiter implements a sliding-window limiter on a shared sorted set per
// (identity, class), so limits hold across every instance of the service.
// Any store error fails open.
type DistributedRateLimiter struct {
	store   ports.KeyValueStore
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	limits Limits
}

// NewDistributedRateLimiter creates a sliding-window limiter
func NewDistributedRateLimiter(store ports.KeyValueStore, limits Limits, logger *zap.Logger, metrics *observability.Metrics) *DistributedRateLimiter {
	return &DistributedRateLimiter{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		limits:  limits,
	}
}

// RateLimitKey returns rate_limit:<kind>:<value>:<class>
func RateLimitKey(identity Identity, class RequestClass) string {
	return fmt.Sprintf("rate_limit:%s:%s", identity, class)
}

// UpdateLimits swaps the limits used by subsequent checks
func (r *DistributedRateLimiter) UpdateLimits(limits Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = limits
}

func (r *DistributedRateLimiter) Limits() Limits {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limits
}

func (r *DistributedRateLimiter) Enabled() bool {
	return r.Limits().Enabled
}

// Check registers the request in the window and decides admission in one store round trip.
// The current request is counted before comparing, and a request is admitted
// while the count is at most the limit, so exactly Limit requests pass per window.
func (r *DistributedRateLimiter) Check(ctx context.Context, identity Identity, class RequestClass) Decision {
	limit := r.Limits().For(class)
	key := RateLimitKey(identity, class)
	now := r.now()
	nowMs := now.UnixMilli()
	windowMs := limit.Window.Milliseconds()

	// Requests exactly one window old still count
	window, err := r.store.ZSlide(ctx, key, float64(nowMs), uuid.NewString(), float64(nowMs-windowMs-1), limit.Window+expirySlack)
	if err != nil {
		r.logger.Warn("Rate limiter store error, failing open",
			zap.String("identity", identity.String()),
			zap.String("class", string(class)),
			zap.Error(err),
		)
		r.metrics.RecordRateLimit(string(class), "fail_open")
		return Decision{Allowed: true, Limit: limit.Requests, Remaining: limit.Requests, ResetSeconds: int64(limit.Window.Seconds())}
	}

	decision := Decision{
		Allowed:      window.Count <= int64(limit.Requests),
		Limit:        limit.Requests,
		Remaining:    remaining(limit.Requests, window.Count),
		ResetSeconds: windowMs / 1000,
	}
	if window.Count > 0 {
		decision.ResetSeconds = resetSeconds(int64(window.Oldest), nowMs, windowMs)
	}

	if decision.Allowed {
		r.metrics.RecordRateLimit(string(class), "allowed")
	} else {
		r.metrics.RecordRateLimit(string(class), "rejected")
	}
	return decision
}

// IsAllowed registers the request and reports whether it is admitted
func (r *DistributedRateLimiter) IsAllowed(ctx context.Context, identity Identity, class RequestClass) bool {
	return r.Check(ctx, identity, class).Allowed
}

// RemainingRequests reads the window without registering a request
func (r *DistributedRateLimiter) RemainingRequests(ctx context.Context, identity Identity, class RequestClass) int {
	limit := r.Limits().For(class)
	card, err := r.store.ZCard(ctx, RateLimitKey(identity, class))
	if err != nil {
		r.logger.Warn("Rate limiter store error reading window", zap.String("identity", identity.String()), zap.Error(err))
		return limit.Requests
	}
	return remaining(limit.Requests, card)
}

// ResetSeconds returns the seconds until the oldest request in the window ages out
func (r *DistributedRateLimiter) ResetSeconds(ctx context.Context, identity Identity, class RequestClass) int64 {
	limit := r.Limits().For(class)
	return r.resetFrom(ctx, RateLimitKey(identity, class), r.now().UnixMilli(), limit.Window.Milliseconds())
}

func (r *DistributedRateLimiter) resetFrom(ctx context.Context, key string, nowMs, windowMs int64) int64 {
	_, oldest, err := r.store.ZOldest(ctx, key)
	if errors.Is(err, ports.ErrCacheMiss) {
		return windowMs / 1000
	}
	if err != nil {
		r.logger.Warn("Rate limiter store error reading oldest entry", zap.String("key", key), zap.Error(err))
		return windowMs / 1000
	}
	return resetSeconds(int64(oldest), nowMs, windowMs)
}

func remaining(limit int, card int64) int {
	left := int64(limit) - card
	if left < 0 {
		return 0
	}
	return int(left)
}

// resetSeconds is the time until oldestMs leaves the window, rounded up to whole seconds
func resetSeconds(oldestMs, nowMs, windowMs int64) int64 {
	left := oldestMs + windowMs - nowMs
	if left <= 0 {
		return 0
	}
	return (left + 999) / 1000
}

var _ RateLimiter = (*DistributedRateLimiter)(nil)
