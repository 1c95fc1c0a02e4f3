// Package committee cross-checks the extractor's column-to-field mapping
// with three independent AI providers and aggregates their votes under a
// weighted consensus.
//
// The committee only ever sees a bounded evidence pack: header snippets,
// a handful of sample values per column and aggregate column statistics.
// Raw cell data beyond those caps must not leave the process; the cap is a
// privacy boundary as much as a cost boundary, and BuildPack enforces it by
// construction.
//
// Provider selection is random within a family-diversity constraint (no two
// providers from the same vendor family) and reproducible from a seed the
// orchestrator stores in the case event log. Provider output is validated
// against a strict JSON Schema plus two structural checks before its vote
// counts: every field mapped, every selected column inside the candidate
// set. Invalid votes are discarded, never repaired.
package committee
