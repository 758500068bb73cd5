package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"postservice/application/commands"
	"postservice/application/ports"
	"postservice/domain/core/validators"
	"postservice/domain/events"
)

// CreatePostHandler handles post creation commands
type CreatePostHandler struct {
	posts     ports.PostRepository
	uow       ports.UnitOfWork
	validator *validators.PostValidator
	publisher ports.EventPublisher
	logger    *zap.Logger
	now       clock
}

// NewCreatePostHandler creates a new create post handler
func NewCreatePostHandler(
	posts ports.PostRepository,
	uow ports.UnitOfWork,
	validator *validators.PostValidator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *CreatePostHandler {
	return &CreatePostHandler{
		posts:     posts,
		uow:       uow,
		validator: validator,
		publisher: publisher,
		logger:    logger,
		now:       utcNow,
	}
}

// Handle persists the post and publishes PostCreated
func (h *CreatePostHandler) Handle(ctx context.Context, cmd commands.CreatePostCommand) error {
	post := cmd.ToPost(h.now())

	if err := h.validator.ValidateNewPost(post); err != nil {
		return err
	}

	// Replies and reposts must point at a live post
	for _, ref := range []*string{post.ParentPostID, post.RepostParentID} {
		if ref == nil {
			continue
		}
		if _, err := livePost(ctx, h.posts, *ref); err != nil {
			return err
		}
	}

	err := h.uow.Within(ctx, func(ctx context.Context) error {
		if err := h.posts.Save(ctx, post); err != nil {
			return fmt.Errorf("failed to save post: %w", err)
		}
		return publish(ctx, h.publisher, h.logger, events.NewPostCreated(post, post.CreatedAt))
	})
	if err != nil {
		return err
	}

	h.logger.Info("Post created",
		zap.String("postID", post.ID),
		zap.String("userID", post.UserID),
		zap.Bool("reply", post.IsReply()),
		zap.Bool("repost", post.IsRepost()),
	)

	return nil
}
