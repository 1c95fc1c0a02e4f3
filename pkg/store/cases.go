package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"orderdesk-hq/callisto/pkg/cases"
)

// CreateCase atomically inserts a new case. If a case with the same id
// already exists the insert is a no-op and DuplicateCaseError is returned:
// two concurrent uploads of the same case id race on the primary key and the
// loser observes the winner's row.
func (s *Store) CreateCase(ctx context.Context, c *cases.Case) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cases (
			id, tenant_id, uploader_id, conversation, file_name, file_hash,
			status, correlation_id, created_at, updated_at, wait_deadline, last_sequence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.TenantID, c.UploaderID, c.Conversation, c.FileName, c.FileHash,
		string(c.Status), c.CorrelationID, c.CreatedAt, c.UpdatedAt, c.WaitDeadline, c.LastSequence,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &DuplicateCaseError{CaseID: c.ID}
		}
		return newStorageError("create_case", err)
	}
	return nil
}

// UpdateCaseFile replaces a case's source file identity after a re-upload.
func (s *Store) UpdateCaseFile(ctx context.Context, caseID, fileName, fileHash string, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases SET file_name = ?, file_hash = ?, updated_at = ? WHERE id = ?
	`, fileName, fileHash, updatedAt, caseID)
	if err != nil {
		return newStorageError("update_case_file", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return newStorageError("update_case_file", err)
	}
	if affected == 0 {
		return &NotFoundError{Kind: "case", ID: caseID}
	}
	return nil
}

// GetCase fetches a case by id.
func (s *Store) GetCase(ctx context.Context, id string) (*cases.Case, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, uploader_id, conversation, file_name, file_hash,
		       status, correlation_id, created_at, updated_at, wait_deadline, last_sequence
		FROM cases WHERE id = ?
	`, id)

	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "case", ID: id}
	}
	if err != nil {
		return nil, newStorageError("get_case", err)
	}
	return c, nil
}

// CaseQuery filters ListCases. Zero values mean "no filter".
type CaseQuery struct {
	TenantID   string
	Status     cases.Status
	UploaderID string
	DateFrom   *time.Time
	DateTo     *time.Time
	Limit      int
	Offset     int
}

// ListCases returns cases matching the query, newest first.
func (s *Store) ListCases(ctx context.Context, q CaseQuery) ([]*cases.Case, error) {
	var conditions []string
	var args []interface{}

	if q.TenantID != "" {
		conditions = append(conditions, "tenant_id = ?")
		args = append(args, q.TenantID)
	}
	if q.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.UploaderID != "" {
		conditions = append(conditions, "uploader_id = ?")
		args = append(args, q.UploaderID)
	}
	if q.DateFrom != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *q.DateFrom)
	}
	if q.DateTo != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *q.DateTo)
	}

	query := `SELECT id, tenant_id, uploader_id, conversation, file_name, file_hash,
	       status, correlation_id, created_at, updated_at, wait_deadline, last_sequence
	FROM cases`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := 100
	if q.Limit > 0 {
		limit = q.Limit
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if q.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newStorageError("list_cases", err)
	}
	defer rows.Close()

	var result []*cases.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, newStorageError("scan_case", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("list_cases", err)
	}
	return result, nil
}

// ListExpiredWaiting returns cases sitting in a waiting state whose deadline
// has passed.
func (s *Store) ListExpiredWaiting(ctx context.Context, now time.Time) ([]*cases.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, uploader_id, conversation, file_name, file_hash,
		       status, correlation_id, created_at, updated_at, wait_deadline, last_sequence
		FROM cases
		WHERE wait_deadline IS NOT NULL AND wait_deadline <= ?
	`, now)
	if err != nil {
		return nil, newStorageError("list_expired", err)
	}
	defer rows.Close()

	var result []*cases.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, newStorageError("scan_case", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("list_expired", err)
	}
	return result, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row scanner) (*cases.Case, error) {
	var c cases.Case
	var status string
	var conversation sql.NullString
	var waitDeadline sql.NullTime

	err := row.Scan(
		&c.ID, &c.TenantID, &c.UploaderID, &conversation, &c.FileName, &c.FileHash,
		&status, &c.CorrelationID, &c.CreatedAt, &c.UpdatedAt, &waitDeadline, &c.LastSequence,
	)
	if err != nil {
		return nil, err
	}

	c.Status = cases.Status(status)
	if conversation.Valid {
		c.Conversation = conversation.String
	}
	if waitDeadline.Valid {
		t := waitDeadline.Time
		c.WaitDeadline = &t
	}
	return &c, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
