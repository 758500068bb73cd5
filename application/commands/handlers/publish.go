package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	"postservice/domain/events"
	apperrors "postservice/pkg/errors"
)

// publish sends one event. A failed publish fails the command. Inside a
// transactional unit of work that also rolls the write back; with an
// immediate one the write is already committed and the caller may retry.
func publish(ctx context.Context, publisher ports.EventPublisher, logger *zap.Logger, event events.PostEvent) error {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish event",
			zap.String("eventType", event.GetEventType()),
			zap.String("postID", event.PartitionKey()),
			zap.Error(err),
		)
		return apperrors.NewInternalError("failed to publish event").
			WithCode(apperrors.CodeEventPublishFailed).
			WithCause(err)
	}
	return nil
}

// livePost loads a post and reports soft-deleted posts as not found
func livePost(ctx context.Context, posts ports.PostRepository, postID string) (*entities.Post, error) {
	post, err := posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Deleted {
		return nil, apperrors.PostNotFound(postID)
	}
	return post, nil
}

type clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
