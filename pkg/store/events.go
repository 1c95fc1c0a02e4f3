package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"orderdesk-hq/callisto/pkg/cases"
)

// AppendEvent appends one audit event to a case's log and advances the case
// in the same transaction. The event's Sequence must be exactly the case's
// last sequence plus one; anything else means another writer won the race and
// SequenceConflictError is returned.
//
// When the event carries a StatusAfter, the case row's status is updated
// together with the append, so status and log can never diverge. The caller
// owns setting or clearing the wait deadline through the event's status.
func (s *Store) AppendEvent(ctx context.Context, ev *cases.AuditEvent, waitDeadline sql.NullTime) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return newStorageError("marshal_event_data", err)
	}
	pointers, err := json.Marshal(ev.Pointers)
	if err != nil {
		return newStorageError("marshal_event_pointers", err)
	}
	redactions, err := json.Marshal(ev.Redactions)
	if err != nil {
		return newStorageError("marshal_event_redactions", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newStorageError("begin_tx", err)
	}
	defer tx.Rollback()

	// Optimistic concurrency: the UPDATE only matches when last_sequence is
	// still sequence-1. Zero rows affected means a concurrent append won.
	var res sql.Result
	if ev.StatusAfter != "" {
		res, err = tx.ExecContext(ctx, `
			UPDATE cases
			SET last_sequence = ?, status = ?, wait_deadline = ?, updated_at = ?
			WHERE id = ? AND last_sequence = ?
		`, ev.Sequence, string(ev.StatusAfter), waitDeadline, ev.Timestamp, ev.CaseID, ev.Sequence-1)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE cases
			SET last_sequence = ?, updated_at = ?
			WHERE id = ? AND last_sequence = ?
		`, ev.Sequence, ev.Timestamp, ev.CaseID, ev.Sequence-1)
	}
	if err != nil {
		return newStorageError("advance_case", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return newStorageError("advance_case", err)
	}
	if affected == 0 {
		return &SequenceConflictError{CaseID: ev.CaseID, Sequence: ev.Sequence}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (
			id, case_id, sequence, timestamp, event_type, status_after,
			actor_type, actor_user_id, actor_ip, data, pointers, redactions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID, ev.CaseID, ev.Sequence, ev.Timestamp, ev.EventType, string(ev.StatusAfter),
		string(ev.Actor.Type), ev.Actor.UserID, ev.Actor.IP, string(data), string(pointers), string(redactions),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &SequenceConflictError{CaseID: ev.CaseID, Sequence: ev.Sequence}
		}
		return newStorageError("insert_event", err)
	}

	if err := tx.Commit(); err != nil {
		return newStorageError("commit_event", err)
	}
	return nil
}

// ListEvents returns a case's events ordered by sequence.
func (s *Store) ListEvents(ctx context.Context, caseID string) ([]*cases.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, sequence, timestamp, event_type, status_after,
		       actor_type, actor_user_id, actor_ip, data, pointers, redactions
		FROM events WHERE case_id = ? ORDER BY sequence ASC
	`, caseID)
	if err != nil {
		return nil, newStorageError("list_events", err)
	}
	defer rows.Close()

	var result []*cases.AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, newStorageError("scan_event", err)
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("list_events", err)
	}
	return result, nil
}

// LatestEvent returns the newest event for a case, or nil when the log is
// empty. Replay after a worker restart starts here.
func (s *Store) LatestEvent(ctx context.Context, caseID string) (*cases.AuditEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, sequence, timestamp, event_type, status_after,
		       actor_type, actor_user_id, actor_ip, data, pointers, redactions
		FROM events WHERE case_id = ? ORDER BY sequence DESC LIMIT 1
	`, caseID)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, newStorageError("latest_event", err)
	}
	return ev, nil
}

func scanEvent(row scanner) (*cases.AuditEvent, error) {
	var ev cases.AuditEvent
	var statusAfter, actorType string
	var actorUserID, actorIP sql.NullString
	var data, pointers, redactions string

	err := row.Scan(
		&ev.ID, &ev.CaseID, &ev.Sequence, &ev.Timestamp, &ev.EventType, &statusAfter,
		&actorType, &actorUserID, &actorIP, &data, &pointers, &redactions,
	)
	if err != nil {
		return nil, err
	}

	ev.StatusAfter = cases.Status(statusAfter)
	ev.Actor.Type = cases.ActorType(actorType)
	if actorUserID.Valid {
		ev.Actor.UserID = actorUserID.String
	}
	if actorIP.Valid {
		ev.Actor.IP = actorIP.String
	}
	if data != "" && data != "null" {
		json.Unmarshal([]byte(data), &ev.Data)
	}
	if pointers != "" && pointers != "null" {
		json.Unmarshal([]byte(pointers), &ev.Pointers)
	}
	if redactions != "" && redactions != "null" {
		json.Unmarshal([]byte(redactions), &ev.Redactions)
	}
	return &ev, nil
}
