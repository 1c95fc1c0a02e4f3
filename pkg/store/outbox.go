package store

import (
	"context"
	"database/sql"
	"time"
)

// Outbox event types.
const (
	OutboxSalesOrderCreated = "salesorder_created"
	OutboxSalesOrderFailed  = "salesorder_failed"
	OutboxRetryExhausted    = "retry_exhausted"
)

// OutboxEntry is one external-facing event awaiting delivery to a downstream
// adapter (chat notification, status-update port).
type OutboxEntry struct {
	ID          string
	CaseID      string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
	Status      string
}

// AppendOutbox writes a pending outbox entry.
func (s *Store) AppendOutbox(ctx context.Context, e *OutboxEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox (id, case_id, event_type, payload, created_at, status)
		VALUES (?, ?, ?, ?, ?, 'pending')
	`, e.ID, e.CaseID, e.EventType, string(e.Payload), e.CreatedAt)
	if err != nil {
		return newStorageError("append_outbox", err)
	}
	return nil
}

// PendingOutbox returns up to limit pending entries, oldest first.
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]*OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, event_type, payload, created_at, processed_at, status
		FROM outbox WHERE status = 'pending' ORDER BY created_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, newStorageError("pending_outbox", err)
	}
	defer rows.Close()

	var entries []*OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var payload string
		var processedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.CaseID, &e.EventType, &payload, &e.CreatedAt, &processedAt, &e.Status); err != nil {
			return nil, newStorageError("scan_outbox", err)
		}
		e.Payload = []byte(payload)
		if processedAt.Valid {
			t := processedAt.Time
			e.ProcessedAt = &t
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("pending_outbox", err)
	}
	return entries, nil
}

// MarkOutboxProcessed transitions an entry to processed after the downstream
// adapter acknowledged delivery.
func (s *Store) MarkOutboxProcessed(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = 'processed', processed_at = ? WHERE id = ? AND status = 'pending'
	`, at, id)
	if err != nil {
		return newStorageError("mark_outbox", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return newStorageError("mark_outbox", err)
	}
	if affected == 0 {
		return &NotFoundError{Kind: "outbox entry", ID: id}
	}
	return nil
}
