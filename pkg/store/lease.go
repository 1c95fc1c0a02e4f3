package store

import (
	"context"
	"time"
)

// AcquireLease takes or renews the per-case worker lease. It returns true
// when owner now holds the lease, false when another live owner does. An
// expired lease is taken over regardless of its previous owner.
func (s *Store) AcquireLease(ctx context.Context, caseID, owner string, ttl time.Duration, now time.Time) (bool, error) {
	expires := now.Add(ttl)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (case_id, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE leases.owner = excluded.owner OR leases.expires_at <= ?
	`, caseID, owner, expires, now)
	if err != nil {
		return false, newStorageError("acquire_lease", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, newStorageError("acquire_lease", err)
	}
	return affected > 0, nil
}

// ReleaseLease drops the lease when held by owner.
func (s *Store) ReleaseLease(ctx context.Context, caseID, owner string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM leases WHERE case_id = ? AND owner = ?
	`, caseID, owner); err != nil {
		return newStorageError("release_lease", err)
	}
	return nil
}
