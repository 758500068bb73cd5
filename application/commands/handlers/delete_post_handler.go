package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"postservice/application/commands"
	"postservice/application/ports"
	"postservice/domain/events"
	apperrors "postservice/pkg/errors"
)

// DeletePostHandler handles post deletion commands
type DeletePostHandler struct {
	posts     ports.PostRepository
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	logger    *zap.Logger
	now       clock
}

// NewDeletePostHandler creates a new delete post handler
func NewDeletePostHandler(posts ports.PostRepository, uow ports.UnitOfWork, publisher ports.EventPublisher, logger *zap.Logger) *DeletePostHandler {
	return &DeletePostHandler{
		posts:     posts,
		uow:       uow,
		publisher: publisher,
		logger:    logger,
		now:       utcNow,
	}
}

// Handle soft-deletes the post and publishes PostDeleted with the pre-delete snapshot
func (h *DeletePostHandler) Handle(ctx context.Context, cmd commands.DeletePostCommand) error {
	post, err := livePost(ctx, h.posts, cmd.PostID)
	if err != nil {
		return err
	}

	if post.UserID != cmd.UserID {
		return apperrors.NotPostOwner(cmd.PostID)
	}

	deletedAt := h.now()
	err = h.uow.Within(ctx, func(ctx context.Context) error {
		if err := h.posts.SoftDelete(ctx, post.ID, deletedAt); err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		return publish(ctx, h.publisher, h.logger, events.NewPostDeleted(post, deletedAt))
	})
	if err != nil {
		return err
	}

	h.logger.Info("Post deleted",
		zap.String("postID", post.ID),
		zap.String("userID", cmd.UserID),
	)

	return nil
}
