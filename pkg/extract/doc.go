// Package extract implements the deterministic spreadsheet extractor: it
// turns a decoded workbook into a canonical order with per-value evidence
// cells, a list of user-facing issues and a confidence breakdown.
//
// The pipeline is fully deterministic and never touches the network: decode,
// sheet selection, formula gate, header-row detection, digit normalization,
// number parsing, column mapping, row extraction, arithmetic check, GTIN
// validation, language hint. Running it twice on byte-identical input yields
// a byte-identical order modulo timestamps.
//
// All recoverable problems surface as order.Issue values; the only error the
// extractor itself returns is a fatal workbook decode failure.
package extract
