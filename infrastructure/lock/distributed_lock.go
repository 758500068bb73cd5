package lock

import (
	"context"
	"fmt"
	"time"

	"postservice/application/ports"
	"postservice/pkg/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DistributedLock hands out leases on the key-value store using SetNX of a
// random token. Release deletes the key only while it still holds that token.
type DistributedLock struct {
	store   ports.KeyValueStore
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewDistributedLock creates a new distributed lock instance
func NewDistributedLock(store ports.KeyValueStore, logger *zap.Logger, metrics *observability.Metrics) *DistributedLock {
	return &DistributedLock{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// TryAcquire makes one non-blocking attempt to take key for lease
func (dl *DistributedLock) TryAcquire(ctx context.Context, key string, lease time.Duration) (ports.Lock, bool, error) {
	token := uuid.NewString()
	acquiredAt := time.Now()

	ok, err := dl.store.SetNX(ctx, key, []byte(token), lease)
	if err != nil {
		dl.metrics.RecordLockAttempt("error")
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		dl.metrics.RecordLockAttempt("contended")
		dl.logger.Debug("Failed to acquire lock - already held", zap.String("lockKey", key))
		return nil, false, nil
	}

	dl.metrics.RecordLockAttempt("acquired")
	dl.logger.Debug("Lock acquired",
		zap.String("lockKey", key),
		zap.Duration("lease", lease),
	)

	return &Lock{
		owner:      dl,
		key:        key,
		token:      token,
		acquiredAt: acquiredAt,
		expiresAt:  acquiredAt.Add(lease),
	}, true, nil
}

// AcquireWithRetry retries a contended lock up to policy.Attempts times,
// sleeping policy.Backoff between attempts. Store errors end the loop.
func (dl *DistributedLock) AcquireWithRetry(ctx context.Context, key string, lease time.Duration, policy ports.RetryPolicy) (ports.Lock, bool, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		l, ok, err := dl.TryAcquire(ctx, key, lease)
		if err != nil || ok {
			return l, ok, err
		}
		if attempt >= attempts {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(policy.Backoff):
		}
	}
}

// Lock represents an acquired distributed lock
type Lock struct {
	owner      *DistributedLock
	key        string
	token      string
	acquiredAt time.Time
	expiresAt  time.Time
}

// Key returns the lock key
func (l *Lock) Key() string {
	return l.key
}

// releaseTimeout bounds a release that no longer follows the caller's cancellation
const releaseTimeout = 2 * time.Second

// Release deletes the lock key if this lease still owns it. A lease that
// expired and was taken over is left alone. The release outlives a cancelled
// request so an abandoned fetch does not strand the lock for its whole lease.
func (l *Lock) Release(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released, err := l.owner.store.CompareAndDelete(ctx, l.key, []byte(l.token))
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if !released {
		l.owner.logger.Warn("Lock already released or owned by someone else",
			zap.String("lockKey", l.key),
			zap.Duration("heldFor", time.Since(l.acquiredAt)),
		)
		return nil
	}

	l.owner.logger.Debug("Lock released", zap.String("lockKey", l.key))
	return nil
}

// IsExpired checks if the lease has run out
func (l *Lock) IsExpired() bool {
	return time.Now().After(l.expiresAt)
}

// TimeUntilExpiry returns the time until the lease runs out
func (l *Lock) TimeUntilExpiry() time.Duration {
	if l.IsExpired() {
		return 0
	}
	return time.Until(l.expiresAt)
}

// LockInfo returns information about the lock
func (l *Lock) LockInfo() map[string]interface{} {
	return map[string]interface{}{
		"key":             l.key,
		"acquiredAt":      l.acquiredAt,
		"expiresAt":       l.expiresAt,
		"isExpired":       l.IsExpired(),
		"timeUntilExpiry": l.TimeUntilExpiry().String(),
	}
}

var _ ports.Locker = (*DistributedLock)(nil)
