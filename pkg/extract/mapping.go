package extract

import (
	"fmt"
	"sort"

	"orderdesk-hq/callisto/pkg/order"
)

// Mapping score weights, per the column-mapping heuristic: header similarity
// dominates, then value-type compatibility, pattern shape, adjacency priors.
const (
	weightHeader    = 0.4
	weightValueType = 0.3
	weightPattern   = 0.2
	weightAdjacency = 0.1
)

// ColumnID returns the stable identifier for a 0-based column index. The
// same ids enumerate the committee's candidate set.
func ColumnID(col int) string {
	return fmt.Sprintf("col_%d", col)
}

// fieldMapping is one field's scored winner.
type fieldMapping struct {
	Field      order.Field
	Column     int
	Confidence float64
	Margin     float64
}

// mapColumns scores every column against every canonical field and picks the
// best column per field. Fields whose best score is below the floor stay
// unmapped. The returned margin is best minus runner-up for the ambiguity
// check.
func mapColumns(headers []string, samples [][]string) []fieldMapping {
	const scoreFloor = 0.25

	numericShare := make([]float64, len(headers))
	for c := range headers {
		numericShare[c] = shareParsing(samples[c])
	}

	// First pass: header + type + pattern scores per (field, column).
	type scored struct {
		col   int
		score float64
	}
	base := map[order.Field][]scored{}
	for _, field := range order.CanonicalFields() {
		for c := range headers {
			hs := headerSimilarity(headers[c], field)
			// Workbook-level totals live in rows, not columns: only an
			// explicit header can claim these fields.
			if hs == 0 && isTotalsField(field) {
				base[field] = append(base[field], scored{col: c, score: 0})
				continue
			}
			s := weightHeader*hs +
				weightValueType*typeCompatibility(field, numericShare[c]) +
				weightPattern*patternScore(field, samples[c])
			base[field] = append(base[field], scored{col: c, score: s})
		}
	}

	// Provisional winners feed the adjacency priors.
	provisional := map[order.Field]int{}
	for field, list := range base {
		bestCol, bestScore := -1, 0.0
		for _, sc := range list {
			if sc.score > bestScore {
				bestCol, bestScore = sc.col, sc.score
			}
		}
		if bestCol >= 0 && bestScore >= scoreFloor {
			provisional[field] = bestCol
		}
	}

	// Second pass: fold in adjacency and take final winners.
	var result []fieldMapping
	for _, field := range order.CanonicalFields() {
		list := base[field]
		for i := range list {
			list[i].score += weightAdjacency * adjacencyScore(field, list[i].col, provisional)
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].score != list[j].score {
				return list[i].score > list[j].score
			}
			return list[i].col < list[j].col
		})
		if len(list) == 0 || list[0].score < scoreFloor {
			continue
		}
		margin := list[0].score
		if len(list) > 1 {
			margin = list[0].score - list[1].score
		}
		conf := list[0].score
		if conf > 1 {
			conf = 1
		}
		result = append(result, fieldMapping{
			Field:      field,
			Column:     list[0].col,
			Confidence: conf,
			Margin:     margin,
		})
	}
	return result
}

func isTotalsField(f order.Field) bool {
	switch f {
	case order.FieldSubtotal, order.FieldTax, order.FieldGrandTotal:
		return true
	}
	return false
}

// shareParsing returns the fraction of sample values that parse as numbers.
func shareParsing(samples []string) float64 {
	if len(samples) == 0 {
		return 0
	}
	n := 0
	for _, s := range samples {
		if _, _, ok := ParseNumber(s, ""); ok {
			n++
		}
	}
	return float64(n) / float64(len(samples))
}

// typeCompatibility scores how well a column's numeric share fits a field's
// expected value type.
func typeCompatibility(field order.Field, numericShare float64) float64 {
	switch field {
	case order.FieldQuantity, order.FieldUnitPrice, order.FieldLineTotal,
		order.FieldSubtotal, order.FieldTax, order.FieldGrandTotal:
		return numericShare
	case order.FieldGTIN:
		return numericShare // GTINs parse as plain digit runs
	case order.FieldProductName, order.FieldCustomerName:
		return 1 - numericShare
	case order.FieldSKU:
		// SKUs are frequently mixed alphanumerics.
		return 1 - 0.5*numericShare
	}
	return 0
}

// patternScore scores value-shape heuristics: GTIN check-digit runs,
// currency-looking strings, SKU shape.
func patternScore(field order.Field, samples []string) float64 {
	if len(samples) == 0 {
		return 0
	}
	hits := 0.0
	for _, s := range samples {
		switch field {
		case order.FieldGTIN:
			if ValidGTIN(s) {
				hits++
			} else if looksLikeGTIN(s) {
				// Right shape, failed check digit.
				hits += 0.5
			}
		case order.FieldSKU:
			if looksLikeSKU(s) {
				hits++
			}
		case order.FieldUnitPrice, order.FieldLineTotal, order.FieldSubtotal,
			order.FieldTax, order.FieldGrandTotal:
			if looksLikeCurrency(s) {
				hits++
			}
		case order.FieldQuantity:
			if v, _, ok := ParseNumber(s, ""); ok && v == float64(int64(v)) {
				hits++
			}
		}
	}
	return hits / float64(len(samples))
}

// adjacencyScore rewards columns that sit next to a related field's
// provisional winner: sku by name, quantity by price, price by total.
func adjacencyScore(field order.Field, col int, provisional map[order.Field]int) float64 {
	neighbors := map[order.Field][]order.Field{
		order.FieldSKU:         {order.FieldProductName},
		order.FieldProductName: {order.FieldSKU},
		order.FieldQuantity:    {order.FieldUnitPrice},
		order.FieldUnitPrice:   {order.FieldQuantity, order.FieldLineTotal},
		order.FieldLineTotal:   {order.FieldUnitPrice},
	}
	score := 0.0
	for _, n := range neighbors[field] {
		if nc, ok := provisional[n]; ok {
			if nc == col+1 || nc == col-1 {
				score = 1.0
			}
		}
	}
	return score
}
