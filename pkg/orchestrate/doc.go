// Package orchestrate drives each case through its lifecycle: extraction,
// committee review, catalog resolution, human corrections and approval, and
// idempotent external submission.
//
// Execution is cooperative and single-case-scoped. Many cases progress
// concurrently, but a TTL lease in the state store guarantees at most one
// worker drives a given case at a time. Waiting states hold no worker: the
// case parks on durable state and resumes when the matching human event
// arrives through the boundary adapters, or is cancelled when its deadline
// expires.
//
// Every transition appends exactly one audit event whose sequence number is
// the optimistic-concurrency token. The intended effect of a side-effecting
// step is logged before it executes; on restart the engine recomputes the
// next step from the persisted status, and the fingerprint gate plus the
// content-addressed blob writes make re-execution safe.
package orchestrate
