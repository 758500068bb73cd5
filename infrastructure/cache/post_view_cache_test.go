package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	"postservice/infrastructure/kvstore"
	"postservice/infrastructure/lock"
	"postservice/pkg/cachekeys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testOptions = Options{
	TTL:       time.Hour,
	LockLease: 10 * time.Second,
	Retry:     ports.RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
}

func newPostViewCache(t *testing.T, store ports.KeyValueStore) *PostViewCache {
	t.Helper()
	locker := lock.NewDistributedLock(store, zap.NewNop(), nil)
	return NewPostViewCache(store, locker, testOptions, zap.NewNop(), nil)
}

func newMemory(t *testing.T) *kvstore.MemoryStore {
	store := kvstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func samplePostView() entities.PostView {
	liked := true
	return entities.PostView{
		ID:          "p1",
		AuthorID:    "u1",
		Content:     "hello",
		LikeCount:   2,
		ReplyCount:  1,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Username:    "alice",
		DisplayName: "Alice",
		IsLiked:     &liked,
	}
}

// brokenStore fails every call
type brokenStore struct {
	ports.KeyValueStore
}

var errBroken = errors.New("connection reset")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errBroken
}
func (brokenStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errBroken
}
func (brokenStore) Exists(context.Context, string) (bool, error) { return false, errBroken }
func (brokenStore) SMembers(context.Context, string) ([]string, error) {
	return nil, errBroken
}

func TestPostViewCache_PutThenGetReturnsSanitizedView(t *testing.T) {
	c := newPostViewCache(t, newMemory(t))
	ctx := context.Background()
	view := samplePostView()

	c.Put(ctx, view)

	got, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, view.Sanitize(), *got)
	assert.Empty(t, got.Username)
	assert.Nil(t, got.IsLiked)
	assert.Equal(t, []string{"p1"}, c.UserPostIDs(ctx, "u1"))
	assert.True(t, c.Exists(ctx, "p1"))
}

func TestPostViewCache_MissAndBrokenStoreAreMisses(t *testing.T) {
	ctx := context.Background()

	_, ok := newPostViewCache(t, newMemory(t)).Get(ctx, "absent")
	assert.False(t, ok)

	broken := NewPostViewCache(brokenStore{}, nil, testOptions, zap.NewNop(), nil)
	_, ok = broken.Get(ctx, "p1")
	assert.False(t, ok)
	assert.False(t, broken.Exists(ctx, "p1"))
	assert.Empty(t, broken.UserPostIDs(ctx, "u1"))

	assert.NotPanics(t, func() { broken.Put(ctx, samplePostView()) })
	assert.False(t, broken.Seed(ctx, samplePostView()))
}

func TestPostViewCache_SeedNeverOverwrites(t *testing.T) {
	c := newPostViewCache(t, newMemory(t))
	ctx := context.Background()

	populated := samplePostView()
	populated.LikeCount = 7
	c.Put(ctx, populated)

	fresh := samplePostView()
	fresh.LikeCount = 0
	assert.False(t, c.Seed(ctx, fresh))

	got, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, int64(7), got.LikeCount)

	assert.True(t, c.Seed(ctx, entities.PostView{ID: "p2", AuthorID: "u1"}))
	assert.ElementsMatch(t, []string{"p1", "p2"}, c.UserPostIDs(ctx, "u1"))
}

func TestPostViewCache_DeleteWritesTombstoneOnce(t *testing.T) {
	c := newPostViewCache(t, newMemory(t))
	ctx := context.Background()
	c.Put(ctx, samplePostView())

	transitioned, err := c.Delete(ctx, entities.PostView{ID: "p1", AuthorID: "u1"})
	require.NoError(t, err)
	assert.True(t, transitioned)

	got, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	assert.True(t, got.Deleted)
	assert.Empty(t, got.Content)
	assert.Equal(t, int64(2), got.LikeCount, "tombstone keeps cached counters")
	assert.Empty(t, c.UserPostIDs(ctx, "u1"))

	transitioned, err = c.Delete(ctx, entities.PostView{ID: "p1", AuthorID: "u1"})
	require.NoError(t, err)
	assert.False(t, transitioned)
}

func TestPostViewCache_DeleteAbsentEntryStillTombstones(t *testing.T) {
	c := newPostViewCache(t, newMemory(t))
	ctx := context.Background()

	transitioned, err := c.Delete(ctx, entities.PostView{ID: "p9", AuthorID: "u1", Content: "gone"})
	require.NoError(t, err)
	assert.True(t, transitioned)

	got, ok := c.Get(ctx, "p9")
	require.True(t, ok)
	assert.True(t, got.Deleted)
	assert.Empty(t, got.Content)
}

func TestPostViewCache_MutateAppliesUnderLock(t *testing.T) {
	store := newMemory(t)
	c := newPostViewCache(t, store)
	ctx := context.Background()

	applied, err := c.Mutate(ctx, "p1", func(v *entities.PostView) bool {
		v.LikeCount++
		return true
	})
	require.NoError(t, err)
	assert.False(t, applied, "miss is a no-op")
	assert.False(t, c.Exists(ctx, "p1"))

	c.Put(ctx, samplePostView())
	applied, err = c.Mutate(ctx, "p1", func(v *entities.PostView) bool {
		v.LikeCount++
		return true
	})
	require.NoError(t, err)
	assert.True(t, applied)

	got, _ := c.Get(ctx, "p1")
	assert.Equal(t, int64(3), got.LikeCount)

	exists, err := store.Exists(ctx, cachekeys.PostLockKey("p1"))
	require.NoError(t, err)
	assert.False(t, exists, "lock released")
}

func TestPostViewCache_MutateReportsContention(t *testing.T) {
	store := newMemory(t)
	c := newPostViewCache(t, store)
	ctx := context.Background()
	c.Put(ctx, samplePostView())

	require.NoError(t, store.Set(ctx, cachekeys.PostLockKey("p1"), []byte("someone-else"), time.Minute))

	_, err := c.Mutate(ctx, "p1", func(v *entities.PostView) bool {
		v.LikeCount++
		return true
	})
	assert.ErrorIs(t, err, ports.ErrLockNotAcquired)

	got, _ := c.Get(ctx, "p1")
	assert.Equal(t, int64(2), got.LikeCount)
}

func TestLikeStatusCache(t *testing.T) {
	c := NewLikeStatusCache(newMemory(t), time.Hour, zap.NewNop(), nil)
	ctx := context.Background()

	_, found := c.Get(ctx, "u1", "p1")
	assert.False(t, found)

	c.Set(ctx, "u1", "p1", true)
	isLiked, found := c.Get(ctx, "u1", "p1")
	assert.True(t, found)
	assert.True(t, isLiked)

	c.Set(ctx, "u1", "p1", false)
	isLiked, found = c.Get(ctx, "u1", "p1")
	assert.True(t, found)
	assert.False(t, isLiked)

	broken := NewLikeStatusCache(brokenStore{}, time.Hour, zap.NewNop(), nil)
	_, found = broken.Get(ctx, "u1", "p1")
	assert.False(t, found)
}
