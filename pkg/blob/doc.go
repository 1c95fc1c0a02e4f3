// Package blob implements the append-only evidence store: a content-addressed
// filesystem layout with per-case artifact folders and an SQLite index of
// every written object.
//
// Objects are addressed by container/case/name, and the index records the
// SHA-256 of each object's content, which makes writes naturally idempotent:
// re-storing identical bytes is a no-op that returns the existing URI, while
// different bytes under an existing name are refused. Nothing in this package mutates or deletes an object;
// the retention policy is immutable with a minimum of five years, so there
// is deliberately no pruner wired to these containers.
//
// Layout:
//
//	orders-incoming/{case_id}/original-{hash12}{ext}
//	orders-audit/{case_id}/canonical.json (later versions: canonical-v{n}.json)
//	orders-audit/{case_id}/committee-votes.json
//	orders-audit/{case_id}/corrections-{sequence}.json
//	orders-audit/{case_id}/external-request.json
//	orders-audit/{case_id}/external-response.json
package blob
