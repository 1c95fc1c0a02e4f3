// Package store implements the durable state store backing the case engine:
// cases, the append-only audit event log, submission fingerprints, the retry
// queue, the outbox and the catalog cache tables, all in a single SQLite
// database running in WAL mode.
//
// Concurrency contracts enforced here:
//
//   - Event appends use the per-case sequence number as an optimistic
//     concurrency token; a stale append fails with *SequenceConflictError.
//   - Fingerprint inserts are atomic insert-or-conflict; a conflict returns
//     *DuplicateFingerprintError carrying the stored record.
//   - Retry items are claimed with a visibility timeout so no two workers
//     retry the same item concurrently.
//   - Case leases are TTL locks ensuring at most one worker drives a case.
package store
