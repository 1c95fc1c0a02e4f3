package store

import (
	"context"
	"database/sql"
	"time"
)

// Fingerprint is the at-most-once gate for external submission. Presence of
// a row means the canonical input was already submitted (or is in flight).
type Fingerprint struct {
	FingerprintHex  string
	CaseID          string
	TenantID        string
	CreatedAt       time.Time
	ExternalOrderID string
}

// InsertFingerprint attempts the atomic insert-or-conflict that guards
// submission. On conflict the stored record is fetched and returned inside
// DuplicateFingerprintError so the caller can surface the original external
// order id instead of posting again.
func (s *Store) InsertFingerprint(ctx context.Context, fp *Fingerprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (fingerprint_hex, case_id, tenant_id, created_at, external_order_id)
		VALUES (?, ?, ?, ?, NULLIF(?, ''))
	`, fp.FingerprintHex, fp.CaseID, fp.TenantID, fp.CreatedAt, fp.ExternalOrderID)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return newStorageError("insert_fingerprint", err)
	}

	existing, getErr := s.GetFingerprint(ctx, fp.FingerprintHex)
	if getErr != nil {
		return getErr
	}
	return &DuplicateFingerprintError{Fingerprint: fp.FingerprintHex, Existing: existing}
}

// GetFingerprint fetches a fingerprint record by hex key.
func (s *Store) GetFingerprint(ctx context.Context, hex string) (*Fingerprint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint_hex, case_id, tenant_id, created_at, external_order_id
		FROM fingerprints WHERE fingerprint_hex = ?
	`, hex)

	var fp Fingerprint
	var externalID sql.NullString
	err := row.Scan(&fp.FingerprintHex, &fp.CaseID, &fp.TenantID, &fp.CreatedAt, &externalID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "fingerprint", ID: hex}
	}
	if err != nil {
		return nil, newStorageError("get_fingerprint", err)
	}
	if externalID.Valid {
		fp.ExternalOrderID = externalID.String
	}
	return &fp, nil
}

// SetFingerprintOrderID records the external order id once the draft order
// has been created. The submitter is the only caller.
func (s *Store) SetFingerprintOrderID(ctx context.Context, hex, externalOrderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fingerprints SET external_order_id = ? WHERE fingerprint_hex = ?
	`, externalOrderID, hex)
	if err != nil {
		return newStorageError("set_fingerprint_order", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return newStorageError("set_fingerprint_order", err)
	}
	if affected == 0 {
		return &NotFoundError{Kind: "fingerprint", ID: hex}
	}
	return nil
}
