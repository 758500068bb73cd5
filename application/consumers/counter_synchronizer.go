package consumers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	"postservice/domain/events"
	"postservice/pkg/observability"

	"go.uber.org/zap"
)

// CounterSynchronizer applies post events to the cached views. Counter deltas
// land only on cache hits; a miss drops the delta and the next cold read
// recomputes the counts from the authoritative store.
type CounterSynchronizer struct {
	posts     ports.PostRepository
	cache     ports.PostViewCache
	likeCache ports.LikeStatusCache
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewCounterSynchronizer creates a new counter synchronizer
func NewCounterSynchronizer(
	posts ports.PostRepository,
	cache ports.PostViewCache,
	likeCache ports.LikeStatusCache,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *CounterSynchronizer {
	return &CounterSynchronizer{
		posts:     posts,
		cache:     cache,
		likeCache: likeCache,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Handle dispatches one event. ErrLockNotAcquired is returned when a cached view
// stayed locked past the retry ceiling so the transport redelivers the event.
func (s *CounterSynchronizer) Handle(ctx context.Context, event events.PostEvent) error {
	s.logger.Debug("Received event",
		zap.String("eventType", event.GetEventType()),
		zap.String("eventID", event.GetEventID()),
		zap.String("postID", event.PartitionKey()),
	)

	var err error
	switch e := event.(type) {
	case events.PostCreated:
		err = s.onCreated(ctx, e)
	case events.PostDeleted:
		err = s.onDeleted(ctx, e)
	case events.PostLiked:
		err = s.onLikeChanged(ctx, e.PostID, e.UserID, true)
	case events.PostUnliked:
		err = s.onLikeChanged(ctx, e.PostID, e.UserID, false)
	case events.PostViewed:
		err = s.onViewed(ctx, e)
	default:
		err = fmt.Errorf("%w: %T", events.ErrUnknownEventType, event)
	}

	s.metrics.RecordEventConsumed(event.GetEventType(), err)
	if err != nil {
		s.logger.Warn("Event handling failed",
			zap.String("eventType", event.GetEventType()),
			zap.String("eventID", event.GetEventID()),
			zap.Error(err),
		)
	}
	return err
}

func (s *CounterSynchronizer) onCreated(ctx context.Context, e events.PostCreated) error {
	post := e.Post.ToPost()

	// a read-through may already have cached the post with its real counts
	if s.cache.Seed(ctx, entities.NewPostView(post)) {
		s.logger.Debug("Seeded post cache entry", zap.String("postID", post.ID))
	}

	var errs []error
	if post.ParentPostID != nil {
		errs = append(errs, s.adjust(ctx, *post.ParentPostID, func(v *entities.PostView) bool {
			v.ReplyCount++
			return true
		}))
	}
	if post.RepostParentID != nil {
		errs = append(errs, s.adjust(ctx, *post.RepostParentID, func(v *entities.PostView) bool {
			v.RepostCount++
			return true
		}))
	}
	return errors.Join(errs...)
}

func (s *CounterSynchronizer) onDeleted(ctx context.Context, e events.PostDeleted) error {
	post := e.Post.ToPost()

	transitioned, err := s.cache.Delete(ctx, entities.NewPostView(post))
	if err != nil {
		return fmt.Errorf("failed to tombstone post %s: %w", post.ID, err)
	}

	var errs []error
	if transitioned {
		if post.ParentPostID != nil {
			errs = append(errs, s.adjust(ctx, *post.ParentPostID, func(v *entities.PostView) bool {
				return decrement(&v.ReplyCount)
			}))
		}
		if post.RepostParentID != nil {
			errs = append(errs, s.adjust(ctx, *post.RepostParentID, func(v *entities.PostView) bool {
				return decrement(&v.RepostCount)
			}))
		}
	} else {
		s.logger.Debug("Post already tombstoned, skipping counter updates", zap.String("postID", post.ID))
	}

	errs = append(errs, s.cascade(ctx, post.ID))
	return errors.Join(errs...)
}

// cascade soft-deletes pure reposts of a deleted post. Quote reposts keep their
// entry; their nested payload is assembled on read and the deleted parent no
// longer resolves.
func (s *CounterSynchronizer) cascade(ctx context.Context, postID string) error {
	reposts, err := s.posts.FindRepostsOf(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to list reposts of %s: %w", postID, err)
	}

	var errs []error
	for _, repost := range reposts {
		if repost.HasOwnContent() {
			s.logger.Debug("Keeping quote repost of deleted post",
				zap.String("postID", repost.ID), zap.String("repostParentID", postID))
			continue
		}

		if err := s.posts.SoftDelete(ctx, repost.ID, s.now()); err != nil {
			errs = append(errs, fmt.Errorf("failed to soft-delete repost %s: %w", repost.ID, err))
			continue
		}
		if _, err := s.cache.Delete(ctx, entities.NewPostView(repost)); err != nil {
			errs = append(errs, fmt.Errorf("failed to tombstone repost %s: %w", repost.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *CounterSynchronizer) onLikeChanged(ctx context.Context, postID, userID string, liked bool) error {
	err := s.adjust(ctx, postID, func(v *entities.PostView) bool {
		if liked {
			v.LikeCount++
			return true
		}
		return decrement(&v.LikeCount)
	})
	s.likeCache.Set(ctx, userID, postID, liked)
	return err
}

func (s *CounterSynchronizer) onViewed(ctx context.Context, e events.PostViewed) error {
	return s.adjust(ctx, e.PostID, func(v *entities.PostView) bool {
		v.ViewCount++
		return true
	})
}

func (s *CounterSynchronizer) adjust(ctx context.Context, postID string, fn func(*entities.PostView) bool) error {
	applied, err := s.cache.Mutate(ctx, postID, fn)
	if err != nil {
		return fmt.Errorf("failed to update counters of %s: %w", postID, err)
	}
	if !applied {
		s.logger.Debug("Counter delta dropped", zap.String("postID", postID))
	}
	return nil
}

// decrement lowers a counter without going negative
func decrement(counter *int64) bool {
	if *counter <= 0 {
		return false
	}
	*counter--
	return true
}

var _ ports.EventHandler = (*CounterSynchronizer)(nil)
