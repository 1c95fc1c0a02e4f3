// Package catalog resolves extracted customers and line items against the
// external bookkeeping catalog.
//
// The catalog is served from a two-tier cache: an in-memory snapshot with a
// TTL, swapped atomically by the single refresh writer, backed by the
// persistent cache tables in the state store. A failed refresh keeps serving
// the stale snapshot with a stale flag rather than failing resolution.
//
// Matching is tiered. Customers: exact normalized name, then fuzzy edit
// distance with high/low thresholds and an ambiguity margin. Items: exact
// SKU, then exact GTIN, then feature-gated fuzzy name. Prices always come
// from the catalog; the spreadsheet price is preserved for audit only.
package catalog
