// Package order defines the canonical order representation extracted from an
// uploaded spreadsheet, together with the evidence and issue types that make
// every extracted value auditable.
//
// A CanonicalOrder is produced once by the extractor and treated as immutable
// afterwards; user corrections yield a new version rather than mutating the
// original. Every scalar value in the order carries an EvidenceCell pointing
// at the workbook cell it was read from.
package order
