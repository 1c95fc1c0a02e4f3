package committee

import (
	"fmt"

	"orderdesk-hq/callisto/pkg/extract"
	"orderdesk-hq/callisto/pkg/order"
)

// BuildPack assembles the bounded evidence pack from extraction data. The
// caps are applied here, by construction: headers truncate to MaxHeaderLen,
// at most MaxSamplesPerColumn samples each truncated to MaxSampleLen.
func BuildPack(headers []string, columns [][]string, language string) *Pack {
	pack := &Pack{
		Language: language,
		Constraints: []string{
			"map each field to exactly one column id from the candidate set, or null",
			"confidence is a number between 0 and 1",
			"do not invent column ids",
		},
	}
	for _, f := range order.CanonicalFields() {
		pack.Fields = append(pack.Fields, string(f))
	}

	for c, header := range headers {
		col := ColumnEvidence{
			ID:     extract.ColumnID(c),
			Header: truncate(header, MaxHeaderLen),
		}

		unique := map[string]bool{}
		numeric, text := 0, 0
		var values []string
		if c < len(columns) {
			values = columns[c]
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			col.NonEmptyCount++
			unique[v] = true
			if _, _, ok := extract.ParseNumber(v, ""); ok {
				numeric++
			} else {
				text++
			}
			if len(col.Samples) < MaxSamplesPerColumn {
				col.Samples = append(col.Samples, truncate(v, MaxSampleLen))
			}
		}
		col.UniqueCount = len(unique)
		if numeric > 0 {
			col.DataTypes = append(col.DataTypes, "number")
		}
		if text > 0 {
			col.DataTypes = append(col.DataTypes, "text")
		}
		col.Patterns = detectPatterns(values)

		pack.Columns = append(pack.Columns, col)
	}
	return pack
}

// detectPatterns labels shapes the providers may find useful.
func detectPatterns(values []string) []string {
	gtin, currency := 0, 0
	n := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		n++
		if extract.ValidGTIN(v) {
			gtin++
		}
		if containsCurrencySymbol(v) {
			currency++
		}
	}
	if n == 0 {
		return nil
	}
	var patterns []string
	if float64(gtin)/float64(n) > 0.5 {
		patterns = append(patterns, "gtin")
	}
	if float64(currency)/float64(n) > 0.5 {
		patterns = append(patterns, "currency")
	}
	return patterns
}

func containsCurrencySymbol(s string) bool {
	for _, r := range s {
		switch r {
		case '$', '€', '£', '¥', '₹':
			return true
		}
	}
	return false
}

// Validate checks the pack against its own caps. It exists so the committee
// can refuse a pack built elsewhere that leaks raw data.
func (p *Pack) Validate() error {
	for _, col := range p.Columns {
		if len([]rune(col.Header)) > MaxHeaderLen {
			return fmt.Errorf("column %s: header exceeds %d characters", col.ID, MaxHeaderLen)
		}
		if len(col.Samples) > MaxSamplesPerColumn {
			return fmt.Errorf("column %s: more than %d samples", col.ID, MaxSamplesPerColumn)
		}
		for _, s := range col.Samples {
			if len([]rune(s)) > MaxSampleLen {
				return fmt.Errorf("column %s: sample exceeds %d characters", col.ID, MaxSampleLen)
			}
		}
	}
	return nil
}

// CandidateSet returns the set of legal column ids.
func (p *Pack) CandidateSet() map[string]bool {
	set := make(map[string]bool, len(p.Columns))
	for _, col := range p.Columns {
		set[col.ID] = true
	}
	return set
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
