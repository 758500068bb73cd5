// Package local is the in-process event transport. Events with the same
// partition key are delivered to the handler one at a time and in publish order.
package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"postservice/application/ports"
	"postservice/domain/events"
)

// ErrBusClosed is returned by Publish after Close
var ErrBusClosed = errors.New("event bus closed")

// Config sizes the bus
type Config struct {
	Workers      int
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultConfig returns the default bus sizing
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		QueueSize:    256,
		MaxAttempts:  5,
		RetryBackoff: 20 * time.Millisecond,
	}
}

// PartitionedBus hashes each event's partition key onto one of N workers.
// A worker retries an event that failed with ErrLockNotAcquired before moving
// on, so a post's deltas are never reordered.
type PartitionedBus struct {
	handler ports.EventHandler
	cfg     Config
	logger  *zap.Logger

	queues []chan events.PostEvent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPartitionedBus starts the workers
func NewPartitionedBus(handler ports.EventHandler, cfg Config, logger *zap.Logger) *PartitionedBus {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}

	b := &PartitionedBus{
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		queues:  make([]chan events.PostEvent, cfg.Workers),
	}
	for i := range b.queues {
		b.queues[i] = make(chan events.PostEvent, cfg.QueueSize)
		b.wg.Add(1)
		go b.worker(i, b.queues[i])
	}
	return b
}

// Publish enqueues an event on its partition. It blocks while the partition queue is full.
func (b *PartitionedBus) Publish(ctx context.Context, event events.PostEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.queues[b.partition(event.PartitionKey())] <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishBatch enqueues events in order
func (b *PartitionedBus) PublishBatch(ctx context.Context, batch []events.PostEvent) error {
	for _, event := range batch {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting events and waits until queued events are handled
func (b *PartitionedBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *PartitionedBus) partition(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(b.queues)))
}

func (b *PartitionedBus) worker(id int, queue <-chan events.PostEvent) {
	defer b.wg.Done()
	for event := range queue {
		b.deliver(id, event)
	}
}

func (b *PartitionedBus) deliver(worker int, event events.PostEvent) {
	backoff := b.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := b.handler.Handle(context.Background(), event)
		if err == nil {
			return
		}

		if !errors.Is(err, ports.ErrLockNotAcquired) || attempt >= b.cfg.MaxAttempts {
			b.logger.Error("Dropping event after failed delivery",
				zap.Int("worker", worker),
				zap.String("eventType", event.GetEventType()),
				zap.String("postID", event.PartitionKey()),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}

		time.Sleep(backoff)
		backoff *= 2
	}
}

var _ ports.EventPublisher = (*PartitionedBus)(nil)
