// Package cases defines the case entity, its status machine and the
// append-only audit event type. A case is one unit of work for one uploaded
// spreadsheet file; its status is owned exclusively by the orchestrator.
package cases
