package eventbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"postservice/application/ports"
	"postservice/domain/events"
	"postservice/pkg/observability"
)

// EventBridge limits PutEvents to 10 entries
const maxBatchSize = 10

// PutEventsAPI is the slice of the EventBridge client the publisher needs
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher implements ports.EventPublisher on AWS EventBridge. The event type
// is the DetailType and the JSON event is the Detail.
type Publisher struct {
	client       PutEventsAPI
	eventBusName string
	source       string
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client PutEventsAPI, eventBusName string, logger *zap.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		source:       events.SourcePostService,
		logger:       logger,
		metrics:      metrics,
	}
}

// Publish sends a single event
func (p *Publisher) Publish(ctx context.Context, event events.PostEvent) error {
	return p.PublishBatch(ctx, []events.PostEvent{event})
}

// PublishBatch sends events in chunks of ten, in order
func (p *Publisher) PublishBatch(ctx context.Context, batch []events.PostEvent) error {
	for i := 0; i < len(batch); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		if err := p.publishWithRetry(ctx, batch[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishWithRetry(ctx context.Context, batch []events.PostEvent) error {
	const maxRetries = 3
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if batch, err = p.publishChunk(ctx, batch); err == nil {
			return nil
		}

		if attempt < maxRetries-1 {
			p.logger.Warn("Retrying event publication",
				zap.Int("attempt", attempt+1),
				zap.Int("remaining", len(batch)),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed to publish events after %d attempts: %w", maxRetries, err)
}

// publishChunk sends up to ten events and returns the ones that failed
func (p *Publisher) publishChunk(ctx context.Context, batch []events.PostEvent) ([]events.PostEvent, error) {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, event := range batch {
		detail, err := events.Encode(event)
		if err != nil {
			return nil, err
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.GetTimestamp()),
			Resources:    []string{fmt.Sprintf("post:%s", event.PartitionKey())},
		})
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		for _, event := range batch {
			p.metrics.RecordEventPublished(event.GetEventType(), err)
		}
		return batch, fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}

	var failed []events.PostEvent
	for i, entry := range result.Entries {
		if i >= len(batch) {
			break
		}
		if entry.ErrorCode != nil {
			p.logger.Error("Failed to publish event",
				zap.String("eventType", batch[i].GetEventType()),
				zap.String("errorCode", aws.ToString(entry.ErrorCode)),
				zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
			)
			p.metrics.RecordEventPublished(batch[i].GetEventType(), fmt.Errorf("%s", aws.ToString(entry.ErrorCode)))
			failed = append(failed, batch[i])
			continue
		}
		p.metrics.RecordEventPublished(batch[i].GetEventType(), nil)
	}

	if len(failed) > 0 {
		return failed, fmt.Errorf("%d events failed to publish", len(failed))
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("eventBus", p.eventBusName),
	)
	return nil, nil
}

var _ ports.EventPublisher = (*Publisher)(nil)
