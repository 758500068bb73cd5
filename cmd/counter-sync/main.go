// Package main runs the counter synchronizer as an EventBridge target.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"postservice/application/ports"
	"postservice/domain/events"
	"postservice/infrastructure/config"
	"postservice/infrastructure/di"
)

// handleEvent decodes one EventBridge delivery and applies it. Unknown or
// malformed details are acknowledged; handler failures are returned so
// EventBridge retries the delivery.
func handleEvent(ctx context.Context, h ports.EventHandler, logger *zap.Logger, raw awsevents.CloudWatchEvent) error {
	event, err := events.Decode(raw.DetailType, raw.Detail)
	if errors.Is(err, events.ErrUnknownEventType) {
		logger.Warn("Skipping unknown event type",
			zap.String("detailType", raw.DetailType),
			zap.String("id", raw.ID),
		)
		return nil
	}
	if err != nil {
		// A malformed detail will not improve on retry
		logger.Error("Dropping undecodable event",
			zap.String("detailType", raw.DetailType),
			zap.String("id", raw.ID),
			zap.Error(err),
		)
		return nil
	}

	if err := h.Handle(ctx, event); err != nil {
		return fmt.Errorf("failed to apply %s for %s: %w", raw.DetailType, event.PartitionKey(), err)
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.IsLambda = true
	// The consumer never publishes; keep the container off EventBridge
	cfg.Events.Transport = "local"
	cfg.Events.Outbox = false

	container, err := di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependency container: %v", err)
	}

	var handler ports.EventHandler = container.Synchronizer
	lambda.Start(func(ctx context.Context, raw awsevents.CloudWatchEvent) error {
		return handleEvent(ctx, handler, container.Logger, raw)
	})
}
