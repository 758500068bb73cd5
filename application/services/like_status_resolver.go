package services

import (
	"context"
	"time"

	"postservice/application/ports"
	"postservice/pkg/cachekeys"

	"go.uber.org/zap"
)

// LikeStatusResolver answers "did this user like this post" through the like
// status cache, guarding population with lock:like:<userId>:<postId>.
type LikeStatusResolver struct {
	likes  ports.LikeRepository
	cache  ports.LikeStatusCache
	locker ports.Locker
	lease  time.Duration
	retry  ports.RetryPolicy
	logger *zap.Logger
}

func NewLikeStatusResolver(likes ports.LikeRepository, cache ports.LikeStatusCache, locker ports.Locker, lease time.Duration, retry ports.RetryPolicy, logger *zap.Logger) *LikeStatusResolver {
	return &LikeStatusResolver{
		likes:  likes,
		cache:  cache,
		locker: locker,
		lease:  lease,
		retry:  retry,
		logger: logger,
	}
}

// IsLiked reports the like status. Contention past the retry ceiling and
// authoritative failures both read as not liked.
func (r *LikeStatusResolver) IsLiked(ctx context.Context, userID, postID string) bool {
	attempts := r.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if liked, found := r.cache.Get(ctx, userID, postID); found {
			return liked
		}

		l, acquired, err := r.locker.TryAcquire(ctx, cachekeys.LikeLockKey(userID, postID), r.lease)
		if err != nil {
			r.logger.Warn("Like lock unavailable, reading authoritative store directly",
				zap.String("postID", postID), zap.Error(err))
			liked, _ := r.exists(ctx, userID, postID)
			return liked
		}
		if acquired {
			return r.populate(ctx, userID, postID, l)
		}

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(r.retry.Backoff):
			}
		}
	}

	r.logger.Debug("Like status unknown after lock retries",
		zap.String("userID", userID), zap.String("postID", postID))
	return false
}

func (r *LikeStatusResolver) populate(ctx context.Context, userID, postID string, l ports.Lock) bool {
	defer func() {
		if err := l.Release(ctx); err != nil {
			r.logger.Warn("Failed to release like lock", zap.String("postID", postID), zap.Error(err))
		}
	}()

	if liked, found := r.cache.Get(ctx, userID, postID); found {
		return liked
	}

	liked, ok := r.exists(ctx, userID, postID)
	if ok {
		r.cache.Set(ctx, userID, postID, liked)
	}
	return liked
}

func (r *LikeStatusResolver) exists(ctx context.Context, userID, postID string) (bool, bool) {
	liked, err := r.likes.Exists(ctx, userID, postID)
	if err != nil {
		r.logger.Error("Authoritative like lookup failed",
			zap.String("userID", userID), zap.String("postID", postID), zap.Error(err))
		return false, false
	}
	return liked, true
}
