package ports

import (
	"context"
	"errors"
	"time"

	"postservice/domain/core/entities"
)

var (
	// ErrCacheMiss is returned by a KeyValueStore when a key does not exist or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrLockNotAcquired is returned when a lock-guarded cache write gave up under contention
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// KeyValueStore abstracts the remote key-value, set and sorted-set service shared by
// the caches, the distributed lock and the rate limiter.
type KeyValueStore interface {
	// Get returns the value of a string key or ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes a string key with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes the key only if it does not exist and reports whether it did
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes the key only if it holds expected and reports whether it did
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// Delete removes keys of any kind
	Delete(ctx context.Context, keys ...string) error

	// Exists checks a key without reading it
	Exists(ctx context.Context, key string) (bool, error)

	// Expire resets the TTL of an existing key and reports whether the key existed
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SAdd adds members to a set
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from a set
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers lists the members of a set
	SMembers(ctx context.Context, key string) ([]string, error)

	// ZAdd adds a member with a score to a sorted set
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRemRangeByScore removes members with min <= score <= max
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error

	// ZCard returns the cardinality of a sorted set
	ZCard(ctx context.Context, key string) (int64, error)

	// ZOldest returns the lowest-scored member, or ErrCacheMiss when the set is empty
	ZOldest(ctx context.Context, key string) (member string, score float64, err error)

	// ZSlide adds member at score, drops members scored at or below cutoff and resets the
	// TTL, then reports the cardinality and lowest score left in the set
	ZSlide(ctx context.Context, key string, score float64, member string, cutoff float64, ttl time.Duration) (Window, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error
}

// Window is a sorted set's state right after a ZSlide
type Window struct {
	Count  int64
	Oldest float64 // lowest score, zero when Count is zero
}

// PostViewCache is the cache-aside store for sanitized post views
type PostViewCache interface {
	// Get returns a cached view and refreshes its TTL. Store errors read as a miss.
	Get(ctx context.Context, id string) (*entities.PostView, bool)

	// Put sanitizes and writes a view and indexes it under its author
	Put(ctx context.Context, view entities.PostView)

	// Seed writes a view only if none is cached and reports whether it did
	Seed(ctx context.Context, view entities.PostView) bool

	// Delete overwrites the cached view with its tombstone under the post lock.
	// It reports false when the cached entry already was a tombstone.
	Delete(ctx context.Context, view entities.PostView) (bool, error)

	// Exists checks for a cached view without decoding it
	Exists(ctx context.Context, id string) bool

	// Mutate applies fn to the cached view under the post lock. A miss is a no-op.
	// fn returns false to skip the write.
	Mutate(ctx context.Context, id string, fn func(view *entities.PostView) bool) (bool, error)

	// UserPostIDs lists the ids indexed under a user
	UserPostIDs(ctx context.Context, userID string) []string
}

// LikeStatusCache caches whether a user liked a post
type LikeStatusCache interface {
	Get(ctx context.Context, userID, postID string) (liked bool, found bool)
	Set(ctx context.Context, userID, postID string, liked bool)
}

// RetryPolicy bounds how long a caller keeps retrying a contended lock
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Lock is a held lease on a lock key
type Lock interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker hands out short-lived distributed locks
type Locker interface {
	// TryAcquire makes a single non-blocking attempt
	TryAcquire(ctx context.Context, key string, lease time.Duration) (Lock, bool, error)

	// AcquireWithRetry retries a contended lock within the policy bounds
	AcquireWithRetry(ctx context.Context, key string, lease time.Duration, policy RetryPolicy) (Lock, bool, error)
}
