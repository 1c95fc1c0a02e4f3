package store

import (
	"context"
	"database/sql"
	"time"
)

// RetryItem is one durable submission retry. Items survive process restarts
// and are claimed with a visibility timeout so two workers never retry the
// same case concurrently.
type RetryItem struct {
	CaseID        string
	Payload       []byte
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
}

// EnqueueRetry inserts or replaces the retry item for a case. One case has
// at most one pending retry.
func (s *Store) EnqueueRetry(ctx context.Context, item *RetryItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retry_queue (case_id, payload, attempt_count, next_attempt_at, last_error, claimed_until)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(case_id) DO UPDATE SET
			payload = excluded.payload,
			attempt_count = excluded.attempt_count,
			next_attempt_at = excluded.next_attempt_at,
			last_error = excluded.last_error,
			claimed_until = NULL
	`, item.CaseID, string(item.Payload), item.AttemptCount, item.NextAttemptAt, item.LastError)
	if err != nil {
		return newStorageError("enqueue_retry", err)
	}
	return nil
}

// ClaimDueRetries claims up to limit retry items whose next attempt time has
// passed. A claim makes the item invisible to other consumers until the
// visibility timeout elapses; a crashed consumer's claim simply expires.
func (s *Store) ClaimDueRetries(ctx context.Context, now time.Time, visibility time.Duration, limit int) ([]*RetryItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, newStorageError("begin_tx", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT case_id, payload, attempt_count, next_attempt_at, last_error
		FROM retry_queue
		WHERE next_attempt_at <= ? AND (claimed_until IS NULL OR claimed_until <= ?)
		ORDER BY next_attempt_at ASC
		LIMIT ?
	`, now, now, limit)
	if err != nil {
		return nil, newStorageError("claim_retries", err)
	}

	var items []*RetryItem
	for rows.Next() {
		var item RetryItem
		var payload string
		var lastError sql.NullString
		if err := rows.Scan(&item.CaseID, &payload, &item.AttemptCount, &item.NextAttemptAt, &lastError); err != nil {
			rows.Close()
			return nil, newStorageError("scan_retry", err)
		}
		item.Payload = []byte(payload)
		if lastError.Valid {
			item.LastError = lastError.String
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, newStorageError("claim_retries", err)
	}
	rows.Close()

	claimedUntil := now.Add(visibility)
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE retry_queue SET claimed_until = ? WHERE case_id = ?
		`, claimedUntil, item.CaseID); err != nil {
			return nil, newStorageError("mark_claimed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, newStorageError("commit_claims", err)
	}
	return items, nil
}

// DeleteRetry removes a case's retry item after a terminal outcome.
func (s *Store) DeleteRetry(ctx context.Context, caseID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM retry_queue WHERE case_id = ?`, caseID); err != nil {
		return newStorageError("delete_retry", err)
	}
	return nil
}
