package consumers

import (
	"context"
	"sync"
	"testing"
	"time"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	"postservice/domain/events"
	"postservice/infrastructure/cache"
	"postservice/infrastructure/kvstore"
	"postservice/infrastructure/lock"
	"postservice/pkg/cachekeys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePostRepo struct {
	ports.PostRepository
	mu          sync.Mutex
	reposts     map[string][]*entities.Post
	softDeleted []string
}

func (f *fakePostRepo) FindRepostsOf(ctx context.Context, postID string) ([]*entities.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reposts[postID], nil
}

func (f *fakePostRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.softDeleted = append(f.softDeleted, id)
	return nil
}

type syncFixture struct {
	store *kvstore.MemoryStore
	repo  *fakePostRepo
	views *cache.PostViewCache
	likes *cache.LikeStatusCache
	sync  *CounterSynchronizer
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	store := kvstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	logger := zap.NewNop()
	locker := lock.NewDistributedLock(store, logger, nil)
	views := cache.NewPostViewCache(store, locker, cache.Options{
		TTL:       time.Hour,
		LockLease: 10 * time.Second,
		Retry:     ports.RetryPolicy{Attempts: 2, Backoff: time.Millisecond},
	}, logger, nil)
	likes := cache.NewLikeStatusCache(store, time.Hour, logger, nil)
	repo := &fakePostRepo{reposts: map[string][]*entities.Post{}}

	return &syncFixture{
		store: store,
		repo:  repo,
		views: views,
		likes: likes,
		sync:  NewCounterSynchronizer(repo, views, likes, logger, nil),
	}
}

func strPtr(s string) *string { return &s }

func (f *syncFixture) cached(t *testing.T, id string) *entities.PostView {
	t.Helper()
	view, ok := f.views.Get(context.Background(), id)
	require.True(t, ok, "post %s should be cached", id)
	return view
}

var at = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestCreated_SeedsEntryAndBumpsParentCounters(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.views.Put(ctx, entities.PostView{ID: "parent", AuthorID: "u1", Content: "root", ReplyCount: 1})
	f.views.Put(ctx, entities.PostView{ID: "quoted", AuthorID: "u1", Content: "q"})

	reply := &entities.Post{ID: "reply", UserID: "u2", Content: "re", ParentPostID: strPtr("parent"), CreatedAt: at}
	require.NoError(t, f.sync.Handle(ctx, events.NewPostCreated(reply, at)))

	repost := &entities.Post{ID: "repost", UserID: "u2", RepostParentID: strPtr("quoted"), CreatedAt: at}
	require.NoError(t, f.sync.Handle(ctx, events.NewPostCreated(repost, at)))

	seeded := f.cached(t, "reply")
	assert.Equal(t, "re", seeded.Content)
	assert.Zero(t, seeded.LikeCount)
	assert.Equal(t, int64(2), f.cached(t, "parent").ReplyCount)
	assert.Equal(t, int64(1), f.cached(t, "quoted").RepostCount)
}

func TestCreated_DoesNotOverwriteReadThroughPopulation(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.views.Put(ctx, entities.PostView{ID: "p1", AuthorID: "u1", Content: "hi", LikeCount: 3})

	require.NoError(t, f.sync.Handle(ctx, events.NewPostCreated(&entities.Post{ID: "p1", UserID: "u1", Content: "hi"}, at)))

	assert.Equal(t, int64(3), f.cached(t, "p1").LikeCount)
}

func TestCreated_ParentMissDropsDelta(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	reply := &entities.Post{ID: "reply", UserID: "u2", Content: "re", ParentPostID: strPtr("cold")}
	require.NoError(t, f.sync.Handle(ctx, events.NewPostCreated(reply, at)))

	assert.False(t, f.views.Exists(ctx, "cold"))
}

func TestDeleted_TombstonesAndDecrementsOnce(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.views.Put(ctx, entities.PostView{ID: "parent", AuthorID: "u1", Content: "root", ReplyCount: 2})
	f.views.Put(ctx, entities.PostView{ID: "reply", AuthorID: "u2", Content: "re", ParentPostID: strPtr("parent"), LikeCount: 5})

	reply := &entities.Post{ID: "reply", UserID: "u2", Content: "re", ParentPostID: strPtr("parent")}
	event := events.NewPostDeleted(reply, at)

	require.NoError(t, f.sync.Handle(ctx, event))
	require.NoError(t, f.sync.Handle(ctx, event), "replay")

	tomb := f.cached(t, "reply")
	assert.True(t, tomb.Deleted)
	assert.Empty(t, tomb.Content)
	assert.Equal(t, int64(5), tomb.LikeCount)
	assert.Equal(t, int64(1), f.cached(t, "parent").ReplyCount)
	assert.NotContains(t, f.views.UserPostIDs(ctx, "u2"), "reply")
}

func TestDeleted_CascadesToPureRepostsOnly(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	original := &entities.Post{ID: "orig", UserID: "u1", Content: "source"}
	pure := &entities.Post{ID: "pure", UserID: "u2", RepostParentID: strPtr("orig")}
	quote := &entities.Post{ID: "quote", UserID: "u3", Content: "my take", RepostParentID: strPtr("orig")}
	f.repo.reposts["orig"] = []*entities.Post{pure, quote}

	f.views.Put(ctx, entities.NewPostView(original))
	f.views.Put(ctx, entities.NewPostView(pure))
	f.views.Put(ctx, entities.NewPostView(quote))

	require.NoError(t, f.sync.Handle(ctx, events.NewPostDeleted(original, at)))

	assert.Equal(t, []string{"pure"}, f.repo.softDeleted)
	assert.True(t, f.cached(t, "pure").Deleted)

	kept := f.cached(t, "quote")
	assert.False(t, kept.Deleted)
	assert.Equal(t, "my take", kept.Content)
	require.NotNil(t, kept.RepostParentID)
	assert.Equal(t, "orig", *kept.RepostParentID)
}

func TestLikes_EachEventAppliesOneDelta(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.views.Put(ctx, entities.PostView{ID: "p1", AuthorID: "u1", Content: "hi", LikeCount: 1})

	require.NoError(t, f.sync.Handle(ctx, events.NewPostLiked("p1", "u2", at)))
	require.NoError(t, f.sync.Handle(ctx, events.NewPostLiked("p1", "u2", at)))
	assert.Equal(t, int64(3), f.cached(t, "p1").LikeCount, "a redelivered like is counted twice")

	liked, found := f.likes.Get(ctx, "u2", "p1")
	assert.True(t, found)
	assert.True(t, liked)

	require.NoError(t, f.sync.Handle(ctx, events.NewPostUnliked("p1", "u2", at)))
	assert.Equal(t, int64(2), f.cached(t, "p1").LikeCount)

	liked, found = f.likes.Get(ctx, "u2", "p1")
	assert.True(t, found)
	assert.False(t, liked)
}

func TestLikes_MissStillRecordsStatus(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sync.Handle(ctx, events.NewPostLiked("cold", "u2", at)))

	assert.False(t, f.views.Exists(ctx, "cold"))
	liked, found := f.likes.Get(ctx, "u2", "cold")
	assert.True(t, found)
	assert.True(t, liked)
}

func TestUnlike_NeverGoesNegative(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.views.Put(ctx, entities.PostView{ID: "p1", AuthorID: "u1", Content: "hi"})

	require.NoError(t, f.sync.Handle(ctx, events.NewPostUnliked("p1", "u2", at)))
	assert.Zero(t, f.cached(t, "p1").LikeCount)
}

func TestViewed_IncrementsOnHit(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.views.Put(ctx, entities.PostView{ID: "p1", AuthorID: "u1", Content: "hi", ViewCount: 10})

	require.NoError(t, f.sync.Handle(ctx, events.NewPostViewed("p1", "u2", at)))
	require.NoError(t, f.sync.Handle(ctx, events.NewPostViewed("cold", "u2", at)))

	assert.Equal(t, int64(11), f.cached(t, "p1").ViewCount)
	assert.False(t, f.views.Exists(ctx, "cold"))
}

func TestHandle_LockContentionAsksForRedelivery(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.views.Put(ctx, entities.PostView{ID: "p1", AuthorID: "u1", Content: "hi"})
	require.NoError(t, f.store.Set(ctx, cachekeys.PostLockKey("p1"), []byte("resolver"), time.Minute))

	err := f.sync.Handle(ctx, events.NewPostViewed("p1", "u2", at))
	assert.ErrorIs(t, err, ports.ErrLockNotAcquired)
}

func TestHandle_ConcurrentDeltasAreNotLost(t *testing.T) {
	f := newSyncFixture(t)
	f.views = cache.NewPostViewCache(f.store, lock.NewDistributedLock(f.store, zap.NewNop(), nil), cache.Options{
		TTL:       time.Hour,
		LockLease: 10 * time.Second,
		Retry:     ports.RetryPolicy{Attempts: 500, Backoff: time.Millisecond},
	}, zap.NewNop(), nil)
	f.sync = NewCounterSynchronizer(f.repo, f.views, f.likes, zap.NewNop(), nil)
	ctx := context.Background()
	f.views.Put(ctx, entities.PostView{ID: "p1", AuthorID: "u1", Content: "hi"})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.sync.Handle(ctx, events.NewPostViewed("p1", "u2", at)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(25), f.cached(t, "p1").ViewCount)
}
