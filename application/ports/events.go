package ports

import (
	"context"

	"postservice/domain/events"
)

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.PostEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.PostEvent) error
}

// EventHandler processes consumed events
type EventHandler interface {
	// Handle processes an event. A returned error asks the transport to retry.
	Handle(ctx context.Context, event events.PostEvent) error
}
