package cache

import (
	"context"
	"errors"
	"time"

	"postservice/application/ports"
	"postservice/pkg/cachekeys"
	"postservice/pkg/observability"

	"go.uber.org/zap"
)

var (
	liked    = []byte("1")
	notLiked = []byte("0")
)

// LikeStatusCache stores like:user:<u>:post:<p> as "1" or "0"
type LikeStatusCache struct {
	store   ports.KeyValueStore
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewLikeStatusCache(store ports.KeyValueStore, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *LikeStatusCache {
	return &LikeStatusCache{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *LikeStatusCache) Get(ctx context.Context, userID, postID string) (bool, bool) {
	key := cachekeys.LikeKey(userID, postID)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			c.logger.Warn("Like status read failed, treating as miss",
				zap.String("userID", userID), zap.String("postID", postID), zap.Error(err))
		}
		c.metrics.RecordCacheLookup("like", false)
		return false, false
	}

	c.metrics.RecordCacheLookup("like", true)
	if _, err := c.store.Expire(ctx, key, c.ttl); err != nil {
		c.logger.Warn("Failed to refresh like status TTL", zap.String("postID", postID), zap.Error(err))
	}
	return string(data) == string(liked), true
}

func (c *LikeStatusCache) Set(ctx context.Context, userID, postID string, isLiked bool) {
	value := notLiked
	if isLiked {
		value = liked
	}
	if err := c.store.Set(ctx, cachekeys.LikeKey(userID, postID), value, c.ttl); err != nil {
		c.logger.Warn("Like status write failed",
			zap.String("userID", userID), zap.String("postID", postID), zap.Error(err))
	}
}

var _ ports.LikeStatusCache = (*LikeStatusCache)(nil)
