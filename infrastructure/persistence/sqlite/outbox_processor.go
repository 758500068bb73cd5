package sqlite

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"postservice/application/ports"
)

// OutboxProcessor relays stored events to the event transport. Records are
// relayed in append order; once a record of a post fails, later records of
// the same post wait for the next round so per-post order is kept.
type OutboxProcessor struct {
	outbox    *Outbox
	publisher ports.EventPublisher
	logger    *zap.Logger

	batchSize          int
	processingInterval time.Duration
	maxRetries         int
	retention          time.Duration

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(outbox *Outbox, publisher ports.EventPublisher, interval time.Duration, logger *zap.Logger) *OutboxProcessor {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxProcessor{
		outbox:             outbox,
		publisher:          publisher,
		logger:             logger,
		batchSize:          50,
		processingInterval: interval,
		maxRetries:         5,
		retention:          24 * time.Hour,
		stopChan:           make(chan struct{}),
		stoppedChan:        make(chan struct{}),
	}
}

// Start begins the background relay
func (op *OutboxProcessor) Start(ctx context.Context) {
	op.logger.Info("Starting outbox processor",
		zap.Int("batchSize", op.batchSize),
		zap.Duration("interval", op.processingInterval),
	)

	go op.processLoop(ctx)
}

// Stop stops the relay and waits for the current batch to finish
func (op *OutboxProcessor) Stop() {
	close(op.stopChan)
	<-op.stoppedChan
	op.logger.Info("Outbox processor stopped")
}

func (op *OutboxProcessor) processLoop(ctx context.Context) {
	defer close(op.stoppedChan)

	ticker := time.NewTicker(op.processingInterval)
	defer ticker.Stop()

	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-op.stopChan:
			return
		case <-ticker.C:
			if _, err := op.ProcessBatch(ctx); err != nil {
				op.logger.Error("Error processing outbox batch", zap.Error(err))
			}
		case <-prune.C:
			if n, err := op.outbox.Prune(ctx, time.Now().Add(-op.retention)); err != nil {
				op.logger.Warn("Failed to prune outbox", zap.Error(err))
			} else if n > 0 {
				op.logger.Debug("Pruned outbox", zap.Int64("records", n))
			}
		}
	}
}

// ProcessBatch relays one batch and returns how many records were published
func (op *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	records, err := op.outbox.Pending(ctx, op.batchSize, op.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	blocked := make(map[string]bool)
	published := 0

	for _, rec := range records {
		if blocked[rec.PartitionKey] {
			continue
		}
		if err := op.processRecord(ctx, rec); err != nil {
			blocked[rec.PartitionKey] = true
			continue
		}
		published++
	}

	if len(records) > 0 {
		op.logger.Debug("Completed outbox batch",
			zap.Int("records", len(records)),
			zap.Int("published", published),
		)
	}
	return published, nil
}

func (op *OutboxProcessor) processRecord(ctx context.Context, rec OutboxRecord) error {
	event, err := rec.Decode()
	if err == nil {
		err = op.publisher.Publish(ctx, event)
	}
	if err != nil {
		attempts, markErr := op.outbox.MarkFailed(ctx, rec.ID, err.Error())
		if markErr != nil {
			op.logger.Error("Failed to mark outbox record failed", zap.Int64("recordID", rec.ID), zap.Error(markErr))
		}
		if attempts >= op.maxRetries {
			op.logger.Warn("Event permanently failed after max retries",
				zap.String("eventID", rec.EventID),
				zap.String("eventType", rec.EventType),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
		}
		return err
	}

	if err := op.outbox.MarkPublished(ctx, rec.ID); err != nil {
		op.logger.Error("Failed to mark outbox record published", zap.Int64("recordID", rec.ID), zap.Error(err))
		return err
	}
	return nil
}
