package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"postservice/application/commands"
	"postservice/application/ports"
	"postservice/domain/events"
)

// EngagementHandler handles likes, unlikes and views. Repeated actions are
// no-ops that publish nothing.
type EngagementHandler struct {
	posts     ports.PostRepository
	likes     ports.LikeRepository
	views     ports.ViewRepository
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	logger    *zap.Logger
	now       clock
}

// NewEngagementHandler creates a new engagement handler
func NewEngagementHandler(
	posts ports.PostRepository,
	likes ports.LikeRepository,
	views ports.ViewRepository,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *EngagementHandler {
	return &EngagementHandler{
		posts:     posts,
		likes:     likes,
		views:     views,
		uow:       uow,
		publisher: publisher,
		logger:    logger,
		now:       utcNow,
	}
}

// Like records a like on a live post
func (h *EngagementHandler) Like(ctx context.Context, cmd commands.LikePostCommand) error {
	if _, err := livePost(ctx, h.posts, cmd.PostID); err != nil {
		return err
	}

	now := h.now()
	return h.uow.Within(ctx, func(ctx context.Context) error {
		created, err := h.likes.Save(ctx, cmd.UserID, cmd.PostID, now)
		if err != nil {
			return fmt.Errorf("failed to save like: %w", err)
		}
		if !created {
			return nil
		}
		return publish(ctx, h.publisher, h.logger, events.NewPostLiked(cmd.PostID, cmd.UserID, now))
	})
}

// Unlike removes a like from a live post
func (h *EngagementHandler) Unlike(ctx context.Context, cmd commands.UnlikePostCommand) error {
	if _, err := livePost(ctx, h.posts, cmd.PostID); err != nil {
		return err
	}

	return h.uow.Within(ctx, func(ctx context.Context) error {
		removed, err := h.likes.Delete(ctx, cmd.UserID, cmd.PostID)
		if err != nil {
			return fmt.Errorf("failed to delete like: %w", err)
		}
		if !removed {
			return nil
		}
		return publish(ctx, h.publisher, h.logger, events.NewPostUnliked(cmd.PostID, cmd.UserID, h.now()))
	})
}

// View records the first view of a post by a user. Views of deleted posts are ignored.
func (h *EngagementHandler) View(ctx context.Context, cmd commands.ViewPostCommand) error {
	post, err := h.posts.GetByID(ctx, cmd.PostID)
	if err != nil {
		return err
	}
	if post.Deleted {
		h.logger.Debug("Skipping view of deleted post", zap.String("postID", cmd.PostID))
		return nil
	}

	now := h.now()
	return h.uow.Within(ctx, func(ctx context.Context) error {
		first, err := h.views.Save(ctx, cmd.UserID, cmd.PostID, now)
		if err != nil {
			return fmt.Errorf("failed to save view: %w", err)
		}
		if !first {
			return nil
		}
		return publish(ctx, h.publisher, h.logger, events.NewPostViewed(cmd.PostID, cmd.UserID, now))
	})
}
