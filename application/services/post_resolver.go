package services

import (
	"context"
	"errors"
	"time"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	"postservice/pkg/cachekeys"
	apperrors "postservice/pkg/errors"
	"postservice/pkg/observability"

	"go.uber.org/zap"
)

// ResolverConfig bounds the read-through
type ResolverConfig struct {
	LockLease      time.Duration
	Retry          ports.RetryPolicy
	ExpansionDepth int
}

// PostResolver serves post views cache-aside. On a miss only the holder of
// lock:post:<id> queries the authoritative aggregation and populates the cache;
// everyone else backs off and re-reads the cache.
type PostResolver struct {
	posts  ports.PostRepository
	cache  ports.PostViewCache
	locker ports.Locker
	users  ports.UserDirectory
	likes  *LikeStatusResolver
	cfg    ResolverConfig
	logger *zap.Logger
	tracer *observability.Tracer
}

// NewPostResolver creates a new post resolver
func NewPostResolver(
	posts ports.PostRepository,
	cache ports.PostViewCache,
	locker ports.Locker,
	users ports.UserDirectory,
	likes *LikeStatusResolver,
	cfg ResolverConfig,
	logger *zap.Logger,
	tracer *observability.Tracer,
) *PostResolver {
	return &PostResolver{
		posts:  posts,
		cache:  cache,
		locker: locker,
		users:  users,
		likes:  likes,
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
	}
}

// Resolve returns the enriched view of a post for viewerID, which may be empty.
// Deleted and unknown posts are NOT_FOUND.
func (r *PostResolver) Resolve(ctx context.Context, postID, viewerID string) (*entities.PostView, error) {
	return r.resolve(ctx, postID, viewerID, r.cfg.ExpansionDepth)
}

func (r *PostResolver) resolve(ctx context.Context, postID, viewerID string, depth int) (*entities.PostView, error) {
	view, err := r.load(ctx, postID)
	if err != nil {
		return nil, err
	}

	enriched := r.enrich(ctx, *view, viewerID)

	// depth drops below zero on the nested call so a repost chain never goes deeper than one level
	if enriched.RepostParentID != nil && depth > 0 {
		parent, err := r.resolve(ctx, *enriched.RepostParentID, viewerID, depth-1)
		switch {
		case err == nil:
			enriched.Repost = parent
		case !apperrors.IsNotFound(err):
			r.logger.Warn("Failed to expand repost parent",
				zap.String("postID", postID),
				zap.String("repostParentID", *enriched.RepostParentID),
				zap.Error(err),
			)
		}
	}

	return &enriched, nil
}

// load runs the cache-aside state machine and returns the sanitized view.
// Losers of the lock race only ever re-read the cache: they poll for at least
// Retry.Attempts rounds and for no less than one lock lease, so a slow holder
// is waited out instead of stampeded. A final miss is reported as unavailable.
func (r *PostResolver) load(ctx context.Context, postID string) (*entities.PostView, error) {
	attempts := max(r.cfg.Retry.Attempts, 1)
	deadline := time.Now().Add(r.cfg.LockLease)

	for attempt := 1; ; attempt++ {
		if view, ok := r.cache.Get(ctx, postID); ok {
			return liveOrNotFound(view)
		}

		l, acquired, err := r.locker.TryAcquire(ctx, cachekeys.PostLockKey(postID), r.cfg.LockLease)
		if err != nil {
			r.logger.Warn("Post lock unavailable, reading authoritative store directly",
				zap.String("postID", postID), zap.Error(err))
			return r.fetchDirect(ctx, postID)
		}
		if acquired {
			return r.populate(ctx, postID, l)
		}

		if attempt == 1 {
			r.logger.Debug("Post lock contended, backing off", zap.String("postID", postID))
		}

		select {
		case <-ctx.Done():
			return nil, contextError("resolve post", ctx.Err())
		case <-time.After(r.cfg.Retry.Backoff):
		}

		if attempt >= attempts && !time.Now().Before(deadline) {
			break
		}
	}

	if view, ok := r.cache.Get(ctx, postID); ok {
		return liveOrNotFound(view)
	}

	r.logger.Warn("Post lock still contended after retries",
		zap.String("postID", postID),
		zap.Int("attempts", attempts),
		zap.Duration("lease", r.cfg.LockLease),
	)
	return nil, apperrors.PostBusy(postID)
}

func (r *PostResolver) populate(ctx context.Context, postID string, l ports.Lock) (*entities.PostView, error) {
	defer func() {
		if err := l.Release(ctx); err != nil {
			r.logger.Warn("Failed to release post lock", zap.String("postID", postID), zap.Error(err))
		}
	}()

	// another holder may have populated the entry while we were acquiring
	if view, ok := r.cache.Get(ctx, postID); ok {
		return liveOrNotFound(view)
	}

	view, err := r.fetch(ctx, postID)
	if err != nil {
		return nil, err
	}
	if view.Deleted {
		return nil, apperrors.PostNotFound(postID)
	}

	r.cache.Put(ctx, *view)
	sanitized := view.Sanitize()
	return &sanitized, nil
}

// fetchDirect reads the authority without touching the cache
func (r *PostResolver) fetchDirect(ctx context.Context, postID string) (*entities.PostView, error) {
	view, err := r.fetch(ctx, postID)
	if err != nil {
		return nil, err
	}
	return liveOrNotFound(view)
}

func (r *PostResolver) fetch(ctx context.Context, postID string) (*entities.PostView, error) {
	var view *entities.PostView
	err := r.tracer.TraceFunction(ctx, "FetchAggregatedPostView", func(ctx context.Context) error {
		var err error
		view, err = r.posts.FetchAggregatedPostView(ctx, postID)
		return err
	})
	if err != nil {
		if !apperrors.IsNotFound(err) {
			r.logger.Error("Authoritative post read failed", zap.String("postID", postID), zap.Error(err))
		}
		return nil, err
	}
	return view, nil
}

func (r *PostResolver) enrich(ctx context.Context, view entities.PostView, viewerID string) entities.PostView {
	if author, err := r.users.PublicUser(ctx, view.AuthorID); err == nil {
		view.Username = author.Username
		view.DisplayName = author.DisplayName
		view.ProfileImageURL = author.ProfileImageURL
	} else {
		r.logger.Warn("Failed to load post author",
			zap.String("postID", view.ID),
			zap.String("authorID", view.AuthorID),
			zap.Error(err),
		)
	}

	if viewerID != "" && r.likes != nil {
		liked := r.likes.IsLiked(ctx, viewerID, view.ID)
		view.IsLiked = &liked
	}

	return view
}

// contextError maps an expired request deadline onto a timeout error
func contextError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(operation).WithCause(err)
	}
	return err
}

func liveOrNotFound(view *entities.PostView) (*entities.PostView, error) {
	if view.Deleted {
		return nil, apperrors.PostNotFound(view.ID)
	}
	return view, nil
}
