package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"postservice/application/ports"
	"postservice/infrastructure/kvstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(t *testing.T, limits Limits) (*DistributedRateLimiter, *fakeClock) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	limiter := NewDistributedRateLimiter(store, limits, zap.NewNop(), nil)
	limiter.now = clock.Now
	return limiter, clock
}

func twoPerMinute() Limits {
	return Limits{
		Enabled: true,
		Get:     Limit{Requests: 2, Window: time.Minute},
		Other:   Limit{Requests: 2, Window: time.Minute},
	}
}

func TestRateLimiter_AdmitsExactlyLimitPerWindow(t *testing.T) {
	limiter, clock := newTestLimiter(t, twoPerMinute())
	ctx := context.Background()
	id := UserIdentity("42")

	first := limiter.Check(ctx, id, ClassGet)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	clock.Advance(time.Second)
	second := limiter.Check(ctx, id, ClassGet)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	clock.Advance(time.Second)
	third := limiter.Check(ctx, id, ClassGet)
	assert.False(t, third.Allowed)
	assert.Equal(t, 0, third.Remaining)
	assert.Equal(t, int64(58), third.ResetSeconds)
	assert.Equal(t, 2, third.Limit)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	limiter, clock := newTestLimiter(t, twoPerMinute())
	ctx := context.Background()
	id := IPIdentity("10.0.0.1")

	assert.True(t, limiter.IsAllowed(ctx, id, ClassOther))
	assert.True(t, limiter.IsAllowed(ctx, id, ClassOther))
	assert.False(t, limiter.IsAllowed(ctx, id, ClassOther))

	clock.Advance(time.Minute)
	assert.False(t, limiter.IsAllowed(ctx, id, ClassOther), "a request exactly one window old still counts")

	clock.Advance(time.Millisecond)
	assert.True(t, limiter.IsAllowed(ctx, id, ClassOther))
}

func TestRateLimiter_ClassesAndIdentitiesAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, twoPerMinute())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.True(t, limiter.IsAllowed(ctx, UserIdentity("1"), ClassGet))
	}
	assert.False(t, limiter.IsAllowed(ctx, UserIdentity("1"), ClassGet))
	assert.True(t, limiter.IsAllowed(ctx, UserIdentity("1"), ClassOther))
	assert.True(t, limiter.IsAllowed(ctx, UserIdentity("2"), ClassGet))
	assert.True(t, limiter.IsAllowed(ctx, IPIdentity("1"), ClassGet))
}

func TestRateLimiter_LimitOfOneResetWithinWindow(t *testing.T) {
	limits := twoPerMinute()
	limits.Get = Limit{Requests: 1, Window: time.Minute}
	limiter, clock := newTestLimiter(t, limits)
	ctx := context.Background()
	id := UserIdentity("7")

	assert.True(t, limiter.Check(ctx, id, ClassGet).Allowed)

	clock.Advance(100 * time.Millisecond)
	rejected := limiter.Check(ctx, id, ClassGet)
	assert.False(t, rejected.Allowed)
	assert.Greater(t, rejected.ResetSeconds, int64(0))
	assert.LessOrEqual(t, rejected.ResetSeconds, int64(60))
}

func TestRateLimiter_ReadOnlyQueries(t *testing.T) {
	limiter, clock := newTestLimiter(t, twoPerMinute())
	ctx := context.Background()
	id := UserIdentity("9")

	assert.Equal(t, 2, limiter.RemainingRequests(ctx, id, ClassGet))
	assert.Equal(t, int64(60), limiter.ResetSeconds(ctx, id, ClassGet), "empty window resets after a full window")

	limiter.Check(ctx, id, ClassGet)
	clock.Advance(15 * time.Second)

	assert.Equal(t, 1, limiter.RemainingRequests(ctx, id, ClassGet))
	assert.Equal(t, 1, limiter.RemainingRequests(ctx, id, ClassGet), "reading does not register a request")
	assert.Equal(t, int64(45), limiter.ResetSeconds(ctx, id, ClassGet))
}

func TestRateLimiter_UpdateLimits(t *testing.T) {
	limiter, _ := newTestLimiter(t, twoPerMinute())
	ctx := context.Background()
	id := UserIdentity("3")

	limiter.IsAllowed(ctx, id, ClassGet)
	limiter.IsAllowed(ctx, id, ClassGet)
	assert.False(t, limiter.IsAllowed(ctx, id, ClassGet))

	raised := twoPerMinute()
	raised.Get.Requests = 10
	limiter.UpdateLimits(raised)

	assert.True(t, limiter.IsAllowed(ctx, id, ClassGet))
	assert.Equal(t, 10, limiter.Limits().Get.Requests)
}

type unavailableStore struct {
	ports.KeyValueStore
}

func (unavailableStore) ZSlide(context.Context, string, float64, string, float64, time.Duration) (ports.Window, error) {
	return ports.Window{}, errors.New("dial tcp: connection refused")
}

func (unavailableStore) ZCard(context.Context, string) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	limiter := NewDistributedRateLimiter(unavailableStore{}, twoPerMinute(), zap.NewNop(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d := limiter.Check(ctx, UserIdentity("1"), ClassGet)
		assert.True(t, d.Allowed)
	}
	assert.Equal(t, 2, limiter.RemainingRequests(ctx, UserIdentity("1"), ClassGet))
}

// countingStore counts every sorted-set and TTL call reaching the backend
type countingStore struct {
	ports.KeyValueStore
	calls map[string]int
}

func (c *countingStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	c.calls["zadd"]++
	return c.KeyValueStore.ZAdd(ctx, key, score, member)
}

func (c *countingStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	c.calls["zremrangebyscore"]++
	return c.KeyValueStore.ZRemRangeByScore(ctx, key, min, max)
}

func (c *countingStore) ZCard(ctx context.Context, key string) (int64, error) {
	c.calls["zcard"]++
	return c.KeyValueStore.ZCard(ctx, key)
}

func (c *countingStore) ZOldest(ctx context.Context, key string) (string, float64, error) {
	c.calls["zoldest"]++
	return c.KeyValueStore.ZOldest(ctx, key)
}

func (c *countingStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.calls["expire"]++
	return c.KeyValueStore.Expire(ctx, key, ttl)
}

func (c *countingStore) ZSlide(ctx context.Context, key string, score float64, member string, cutoff float64, ttl time.Duration) (ports.Window, error) {
	c.calls["zslide"]++
	return c.KeyValueStore.ZSlide(ctx, key, score, member, cutoff, ttl)
}

func TestRateLimiter_CheckIsOneStoreCall(t *testing.T) {
	mem := kvstore.NewMemoryStore()
	t.Cleanup(func() { _ = mem.Close() })
	store := &countingStore{KeyValueStore: mem, calls: map[string]int{}}

	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	limiter := NewDistributedRateLimiter(store, twoPerMinute(), zap.NewNop(), nil)
	limiter.now = clock.Now
	ctx := context.Background()

	limiter.Check(ctx, UserIdentity("5"), ClassGet)
	clock.Advance(10 * time.Second)
	limiter.Check(ctx, UserIdentity("5"), ClassGet)
	clock.Advance(10 * time.Second)
	rejected := limiter.Check(ctx, UserIdentity("5"), ClassGet)

	assert.Equal(t, map[string]int{"zslide": 3}, store.calls)
	assert.False(t, rejected.Allowed)
	assert.Equal(t, int64(40), rejected.ResetSeconds, "reset derives from the same snapshot as the count")
}

func TestResetSeconds(t *testing.T) {
	assert.Equal(t, int64(60), resetSeconds(1000, 1000, 60000))
	assert.Equal(t, int64(1), resetSeconds(1000, 60500, 60000))
	assert.Equal(t, int64(0), resetSeconds(1000, 61000, 60000))
	assert.Equal(t, int64(0), resetSeconds(1000, 90000, 60000))
}

func TestClassForMethod(t *testing.T) {
	assert.Equal(t, ClassGet, ClassForMethod("GET"))
	assert.Equal(t, ClassOther, ClassForMethod("POST"))
	assert.Equal(t, ClassOther, ClassForMethod("DELETE"))
	assert.Equal(t, "rate_limit:user:42:get", RateLimitKey(UserIdentity("42"), ClassGet))
}
