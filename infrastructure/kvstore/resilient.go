package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postservice/application/ports"
	"postservice/pkg/observability"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrStoreUnavailable is returned while the circuit breaker is rejecting calls
var ErrStoreUnavailable = errors.New("key-value store unavailable")

// BreakerConfig holds configuration for the store circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration for the store circuit breaker
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      10,
	}
}

// ResilientStore bounds every call to the wrapped store with a timeout and a
// circuit breaker, so callers degrading on store errors do so quickly.
type ResilientStore struct {
	next    ports.KeyValueStore
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *observability.Metrics
}

// NewResilientStore wraps next
func NewResilientStore(next ports.KeyValueStore, timeout time.Duration, cfg BreakerConfig, metrics *observability.Metrics, logger *zap.Logger) *ResilientStore {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ports.ErrCacheMiss)
		},
	})

	return &ResilientStore{
		next:    next,
		breaker: breaker,
		timeout: timeout,
		metrics: metrics,
	}
}

// State reports the breaker state
func (s *ResilientStore) State() gobreaker.State {
	return s.breaker.State()
}

func guarded[T any](s *ResilientStore, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})

	var zero T
	switch {
	case err == nil:
		s.metrics.RecordStoreOperation(op, nil, time.Since(start))
		return result.(T), nil
	case errors.Is(err, ports.ErrCacheMiss):
		s.metrics.RecordStoreOperation(op, nil, time.Since(start))
		return zero, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.metrics.RecordStoreOperation(op, err, time.Since(start))
		return zero, fmt.Errorf("%s: %w", op, ErrStoreUnavailable)
	default:
		s.metrics.RecordStoreOperation(op, err, time.Since(start))
		return zero, err
	}
}

func guardedErr(s *ResilientStore, ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := guarded(s, ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (s *ResilientStore) Get(ctx context.Context, key string) ([]byte, error) {
	return guarded(s, ctx, "get", func(ctx context.Context) ([]byte, error) {
		return s.next.Get(ctx, key)
	})
}

func (s *ResilientStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return guardedErr(s, ctx, "set", func(ctx context.Context) error {
		return s.next.Set(ctx, key, value, ttl)
	})
}

func (s *ResilientStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return guarded(s, ctx, "setnx", func(ctx context.Context) (bool, error) {
		return s.next.SetNX(ctx, key, value, ttl)
	})
}

func (s *ResilientStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	return guarded(s, ctx, "compare_and_delete", func(ctx context.Context) (bool, error) {
		return s.next.CompareAndDelete(ctx, key, expected)
	})
}

func (s *ResilientStore) Delete(ctx context.Context, keys ...string) error {
	return guardedErr(s, ctx, "delete", func(ctx context.Context) error {
		return s.next.Delete(ctx, keys...)
	})
}

func (s *ResilientStore) Exists(ctx context.Context, key string) (bool, error) {
	return guarded(s, ctx, "exists", func(ctx context.Context) (bool, error) {
		return s.next.Exists(ctx, key)
	})
}

func (s *ResilientStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return guarded(s, ctx, "expire", func(ctx context.Context) (bool, error) {
		return s.next.Expire(ctx, key, ttl)
	})
}

func (s *ResilientStore) SAdd(ctx context.Context, key string, members ...string) error {
	return guardedErr(s, ctx, "sadd", func(ctx context.Context) error {
		return s.next.SAdd(ctx, key, members...)
	})
}

func (s *ResilientStore) SRem(ctx context.Context, key string, members ...string) error {
	return guardedErr(s, ctx, "srem", func(ctx context.Context) error {
		return s.next.SRem(ctx, key, members...)
	})
}

func (s *ResilientStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return guarded(s, ctx, "smembers", func(ctx context.Context) ([]string, error) {
		return s.next.SMembers(ctx, key)
	})
}

func (s *ResilientStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return guardedErr(s, ctx, "zadd", func(ctx context.Context) error {
		return s.next.ZAdd(ctx, key, score, member)
	})
}

func (s *ResilientStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return guardedErr(s, ctx, "zremrangebyscore", func(ctx context.Context) error {
		return s.next.ZRemRangeByScore(ctx, key, min, max)
	})
}

func (s *ResilientStore) ZCard(ctx context.Context, key string) (int64, error) {
	return guarded(s, ctx, "zcard", func(ctx context.Context) (int64, error) {
		return s.next.ZCard(ctx, key)
	})
}

type scoredMember struct {
	member string
	score  float64
}

func (s *ResilientStore) ZOldest(ctx context.Context, key string) (string, float64, error) {
	sm, err := guarded(s, ctx, "zoldest", func(ctx context.Context) (scoredMember, error) {
		member, score, err := s.next.ZOldest(ctx, key)
		return scoredMember{member: member, score: score}, err
	})
	return sm.member, sm.score, err
}

func (s *ResilientStore) ZSlide(ctx context.Context, key string, score float64, member string, cutoff float64, ttl time.Duration) (ports.Window, error) {
	return guarded(s, ctx, "zslide", func(ctx context.Context) (ports.Window, error) {
		return s.next.ZSlide(ctx, key, score, member, cutoff, ttl)
	})
}

func (s *ResilientStore) Ping(ctx context.Context) error {
	return guardedErr(s, ctx, "ping", s.next.Ping)
}

// Close closes the wrapped store if it holds connections
func (s *ResilientStore) Close() error {
	if closer, ok := s.next.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

var _ ports.KeyValueStore = (*ResilientStore)(nil)
