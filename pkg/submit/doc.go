// Package submit creates draft sales orders in the external bookkeeping
// system with at-most-once semantics.
//
// The guard is a deterministic fingerprint over the canonical inputs
// (file hash, resolved customer, normalized line items, UTC day bucket)
// inserted atomically before any network call. A fingerprint conflict means
// the order was already submitted — or is in flight, in which case the
// lookup is retried for a bounded window instead of posting twice.
//
// Transient failures (network, 5xx, 429) land in the durable retry queue
// with capped exponential backoff; Retry-After is honored verbatim when it
// exceeds the computed backoff. Permanent failures fail the case and emit a
// salesorder_failed outbox event. The payload always uses the catalog price;
// the spreadsheet price goes to the audit record only.
package submit
