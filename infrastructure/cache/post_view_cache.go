package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	"postservice/pkg/cachekeys"
	"postservice/pkg/observability"

	"go.uber.org/zap"
)

// Options configures the lock-guarded caches
type Options struct {
	TTL       time.Duration
	LockLease time.Duration
	Retry     ports.RetryPolicy
}

// PostViewCache stores sanitized post views under post:id:<id> and keeps the
// per-author index user:posts:<userId>. Store failures degrade to misses.
type PostViewCache struct {
	store   ports.KeyValueStore
	locker  ports.Locker
	opts    Options
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewPostViewCache creates the post view cache
func NewPostViewCache(store ports.KeyValueStore, locker ports.Locker, opts Options, logger *zap.Logger, metrics *observability.Metrics) *PostViewCache {
	return &PostViewCache{
		store:   store,
		locker:  locker,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *PostViewCache) Get(ctx context.Context, id string) (*entities.PostView, bool) {
	view, found := c.read(ctx, id)
	c.metrics.RecordCacheLookup("post", found)
	if !found {
		return nil, false
	}

	if _, err := c.store.Expire(ctx, cachekeys.PostKey(id), c.opts.TTL); err != nil {
		c.logger.Warn("Failed to refresh post cache TTL", zap.String("postID", id), zap.Error(err))
	}
	return view, true
}

// read decodes the cached entry without touching its TTL
func (c *PostViewCache) read(ctx context.Context, id string) (*entities.PostView, bool) {
	data, err := c.store.Get(ctx, cachekeys.PostKey(id))
	if errors.Is(err, ports.ErrCacheMiss) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Post cache read failed, treating as miss", zap.String("postID", id), zap.Error(err))
		return nil, false
	}

	var view entities.PostView
	if err := json.Unmarshal(data, &view); err != nil {
		c.logger.Warn("Discarding undecodable post cache entry", zap.String("postID", id), zap.Error(err))
		return nil, false
	}
	return &view, true
}

func (c *PostViewCache) write(ctx context.Context, view entities.PostView) bool {
	data, err := json.Marshal(view)
	if err != nil {
		c.logger.Warn("Failed to encode post view", zap.String("postID", view.ID), zap.Error(err))
		return false
	}
	if err := c.store.Set(ctx, cachekeys.PostKey(view.ID), data, c.opts.TTL); err != nil {
		c.logger.Warn("Post cache write failed", zap.String("postID", view.ID), zap.Error(err))
		return false
	}
	return true
}

func (c *PostViewCache) index(ctx context.Context, view entities.PostView) {
	if view.Deleted || view.AuthorID == "" {
		return
	}
	key := cachekeys.UserPostsKey(view.AuthorID)
	if err := c.store.SAdd(ctx, key, view.ID); err != nil {
		c.logger.Warn("Failed to index post under author", zap.String("postID", view.ID), zap.Error(err))
		return
	}
	if _, err := c.store.Expire(ctx, key, c.opts.TTL); err != nil {
		c.logger.Warn("Failed to refresh author index TTL", zap.String("userID", view.AuthorID), zap.Error(err))
	}
}

func (c *PostViewCache) Put(ctx context.Context, view entities.PostView) {
	sanitized := view.Sanitize()
	if c.write(ctx, sanitized) {
		c.index(ctx, sanitized)
	}
}

func (c *PostViewCache) Seed(ctx context.Context, view entities.PostView) bool {
	sanitized := view.Sanitize()
	data, err := json.Marshal(sanitized)
	if err != nil {
		c.logger.Warn("Failed to encode post view", zap.String("postID", view.ID), zap.Error(err))
		return false
	}

	ok, err := c.store.SetNX(ctx, cachekeys.PostKey(view.ID), data, c.opts.TTL)
	if err != nil {
		c.logger.Warn("Post cache seed failed", zap.String("postID", view.ID), zap.Error(err))
		return false
	}
	if ok {
		c.index(ctx, sanitized)
	}
	return ok
}

// withPostLock runs fn while holding lock:post:<id>. Contention past the retry
// ceiling returns ErrLockNotAcquired; a store failure skips fn and returns nil.
func (c *PostViewCache) withPostLock(ctx context.Context, id string, fn func()) error {
	l, ok, err := c.locker.AcquireWithRetry(ctx, cachekeys.PostLockKey(id), c.opts.LockLease, c.opts.Retry)
	if err != nil {
		c.logger.Warn("Post lock unavailable, skipping cache write", zap.String("postID", id), zap.Error(err))
		return nil
	}
	if !ok {
		return ports.ErrLockNotAcquired
	}
	defer func() {
		if err := l.Release(ctx); err != nil {
			c.logger.Warn("Failed to release post lock", zap.String("postID", id), zap.Error(err))
		}
	}()

	fn()
	return nil
}

func (c *PostViewCache) Delete(ctx context.Context, view entities.PostView) (bool, error) {
	transitioned := false
	err := c.withPostLock(ctx, view.ID, func() {
		current, found := c.read(ctx, view.ID)
		if found && current.Deleted {
			return
		}

		tombstone := view.Tombstone()
		if found {
			tombstone = current.Tombstone()
		}
		transitioned = true
		c.write(ctx, tombstone)

		authorID := view.AuthorID
		if authorID == "" && found {
			authorID = current.AuthorID
		}
		if authorID != "" {
			if err := c.store.SRem(ctx, cachekeys.UserPostsKey(authorID), view.ID); err != nil {
				c.logger.Warn("Failed to unindex deleted post", zap.String("postID", view.ID), zap.Error(err))
			}
		}
	})
	return transitioned, err
}

func (c *PostViewCache) Exists(ctx context.Context, id string) bool {
	ok, err := c.store.Exists(ctx, cachekeys.PostKey(id))
	if err != nil {
		c.logger.Warn("Post cache existence check failed", zap.String("postID", id), zap.Error(err))
		return false
	}
	return ok
}

func (c *PostViewCache) Mutate(ctx context.Context, id string, fn func(view *entities.PostView) bool) (bool, error) {
	applied := false
	err := c.withPostLock(ctx, id, func() {
		view, found := c.read(ctx, id)
		if !found || !fn(view) {
			return
		}
		applied = c.write(ctx, *view)
	})
	return applied, err
}

func (c *PostViewCache) UserPostIDs(ctx context.Context, userID string) []string {
	ids, err := c.store.SMembers(ctx, cachekeys.UserPostsKey(userID))
	if err != nil {
		c.logger.Warn("Author index read failed", zap.String("userID", userID), zap.Error(err))
		return []string{}
	}
	return ids
}

var _ ports.PostViewCache = (*PostViewCache)(nil)
