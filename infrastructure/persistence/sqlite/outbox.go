package sqlite

import (
	"context"
	"fmt"
	"time"

	"postservice/application/ports"
	"postservice/domain/events"
	apperrors "postservice/pkg/errors"
)

// OutboxRecord is one stored event awaiting relay
type OutboxRecord struct {
	ID           int64
	EventID      string
	EventType    string
	PartitionKey string
	Payload      []byte
	Attempts     int
	CreatedAt    time.Time
}

// Outbox stores events durably until the outbox processor relays them.
// It implements ports.EventPublisher so command handlers can write to it
// in place of the transport.
type Outbox struct {
	db  *DB
	now func() time.Time
}

// NewOutbox creates a new outbox
func NewOutbox(db *DB) *Outbox {
	return &Outbox{db: db, now: time.Now}
}

// Publish appends one event. Re-appending the same event id is a no-op.
func (o *Outbox) Publish(ctx context.Context, event events.PostEvent) error {
	return o.PublishBatch(ctx, []events.PostEvent{event})
}

// PublishBatch appends events in one transaction. Called inside DB.Within it
// joins the caller's transaction, so the events commit or roll back together
// with the write that produced them.
func (o *Outbox) PublishBatch(ctx context.Context, batch []events.PostEvent) error {
	if len(batch) == 0 {
		return nil
	}

	return o.db.Within(ctx, func(ctx context.Context) error {
		for _, event := range batch {
			payload, err := events.Encode(event)
			if err != nil {
				return err
			}
			if _, err := o.db.conn(ctx).ExecContext(ctx, `
				INSERT INTO outbox (event_id, event_type, partition_key, payload, created_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(event_id) DO NOTHING`,
				event.GetEventID(), event.GetEventType(), event.PartitionKey(), payload, toUnix(o.now()),
			); err != nil {
				return apperrors.NewDatabaseError("append outbox event", err)
			}
		}
		return nil
	})
}

// Pending returns unpublished records in append order, skipping records that
// have used up maxAttempts
func (o *Outbox) Pending(ctx context.Context, limit, maxAttempts int) ([]OutboxRecord, error) {
	rows, err := o.db.conn(ctx).QueryContext(ctx, `
		SELECT id, event_id, event_type, partition_key, payload, attempts, created_at
		FROM outbox
		WHERE published_at IS NULL AND attempts < ?
		ORDER BY id
		LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("read outbox", err)
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var (
			rec       OutboxRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.PartitionKey, &rec.Payload, &rec.Attempts, &createdAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan outbox", err)
		}
		rec.CreatedAt = fromUnix(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkPublished records a successful relay
func (o *Outbox) MarkPublished(ctx context.Context, id int64) error {
	_, err := o.db.conn(ctx).ExecContext(ctx, `UPDATE outbox SET published_at = ?, last_error = NULL WHERE id = ?`, toUnix(o.now()), id)
	if err != nil {
		return apperrors.NewDatabaseError("mark outbox published", err)
	}
	return nil
}

// MarkFailed records a failed relay attempt and returns the new attempt count
func (o *Outbox) MarkFailed(ctx context.Context, id int64, reason string) (int, error) {
	var attempts int
	err := o.db.conn(ctx).QueryRowContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ? RETURNING attempts`,
		reason, id,
	).Scan(&attempts)
	if err != nil {
		return 0, apperrors.NewDatabaseError("mark outbox failed", err)
	}
	return attempts, nil
}

// Prune deletes published records older than cutoff
func (o *Outbox) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := o.db.conn(ctx).ExecContext(ctx, `DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`, toUnix(cutoff))
	if err != nil {
		return 0, apperrors.NewDatabaseError("prune outbox", err)
	}
	return res.RowsAffected()
}

// Decode rebuilds the event held by a record
func (r OutboxRecord) Decode() (events.PostEvent, error) {
	event, err := events.Decode(r.EventType, r.Payload)
	if err != nil {
		return nil, fmt.Errorf("outbox record %d: %w", r.ID, err)
	}
	return event, nil
}

var _ ports.EventPublisher = (*Outbox)(nil)
