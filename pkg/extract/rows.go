package extract

import (
	"fmt"
	"math"
	"strings"

	"orderdesk-hq/callisto/pkg/order"
)

// extractRows walks the data rows below the header, skipping totals rows,
// and produces line items with per-field evidence. Totals rows feed the
// order's Totals block instead.
func (e *Extractor) extractRows(out *order.CanonicalOrder, sheet *Sheet, headerRow int, byField map[order.Field]fieldMapping) {
	// Column number styles, detected once per mapped numeric column.
	styles := map[int]NumberStyle{}
	for _, f := range []order.Field{order.FieldQuantity, order.FieldUnitPrice, order.FieldLineTotal} {
		if m, ok := byField[f]; ok {
			styles[m.Column] = DetectColumnStyle(sampleColumnValues(sheet, headerRow, m.Column, 20))
		}
	}

	seen := map[string]int{}
	extracted := 0

	for r := headerRow + 1; r < len(sheet.Rows); r++ {
		row := sheet.Rows[r]
		if rowIsEmpty(row) {
			continue
		}
		if isTotalsRow(out, sheet, r, row, byField, styles) {
			continue
		}

		li := order.LineItem{
			RowIndex: r,
			Status:   order.ResolutionPending,
			Evidence: map[order.Field]order.EvidenceCell{},
		}

		cellAt := func(col int) (Cell, bool) {
			if col < len(row) {
				return row[col], true
			}
			return Cell{}, false
		}
		evidence := func(f order.Field, col int, cell Cell) {
			li.Evidence[f] = order.EvidenceCell{
				Sheet:        sheet.Name,
				Cell:         CellRef(r, col),
				RawValue:     cell.RawValue,
				DisplayValue: cell.Display,
			}
		}

		if m, ok := byField[order.FieldSKU]; ok {
			if cell, ok := cellAt(m.Column); ok && strings.TrimSpace(cell.RawValue) != "" {
				li.SKU = strings.TrimSpace(cell.RawValue)
				evidence(order.FieldSKU, m.Column, cell)
			}
		}
		if m, ok := byField[order.FieldGTIN]; ok {
			if cell, ok := cellAt(m.Column); ok && strings.TrimSpace(cell.RawValue) != "" {
				li.GTIN = strings.TrimSpace(NormalizeDigits(cell.RawValue))
				evidence(order.FieldGTIN, m.Column, cell)
				if !ValidGTIN(li.GTIN) {
					e.addIssue(out, order.Issue{
						Code:           order.CodeInvalidGTIN,
						Severity:       order.SeverityWarning,
						Message:        fmt.Sprintf("row %d: %q is not a valid GTIN", r+1, li.GTIN),
						AffectedFields: []order.Field{order.FieldGTIN},
						Evidence:       []order.EvidenceCell{li.Evidence[order.FieldGTIN]},
					})
				}
			}
		}
		if m, ok := byField[order.FieldProductName]; ok {
			if cell, ok := cellAt(m.Column); ok && strings.TrimSpace(cell.RawValue) != "" {
				li.ProductName = strings.TrimSpace(cell.RawValue)
				evidence(order.FieldProductName, m.Column, cell)
			}
		}

		hasQuantity := false
		if m, ok := byField[order.FieldQuantity]; ok {
			if cell, ok := cellAt(m.Column); ok && strings.TrimSpace(cell.RawValue) != "" {
				v, _, parsed := ParseNumber(cell.RawValue, styles[m.Column])
				if !parsed {
					e.addIssue(out, order.Issue{
						Code:           order.CodeInvalidQuantity,
						Severity:       order.SeverityError,
						Message:        fmt.Sprintf("row %d: quantity %q is not a number", r+1, cell.RawValue),
						AffectedFields: []order.Field{order.FieldQuantity},
					})
				} else if v < 0 {
					e.addIssue(out, order.Issue{
						Code:           order.CodeInvalidQuantity,
						Severity:       order.SeverityError,
						Message:        fmt.Sprintf("row %d: quantity %v is negative", r+1, v),
						AffectedFields: []order.Field{order.FieldQuantity},
					})
				} else {
					// Zero is a legal quantity and never warns.
					li.Quantity = v
					hasQuantity = true
					evidence(order.FieldQuantity, m.Column, cell)
				}
			}
		}

		if m, ok := byField[order.FieldUnitPrice]; ok {
			if cell, ok := cellAt(m.Column); ok && strings.TrimSpace(cell.RawValue) != "" {
				if v, _, parsed := ParseNumber(cell.RawValue, styles[m.Column]); parsed && v >= 0 {
					li.UnitPriceSource = &v
					li.Currency = detectCurrency(cell.RawValue)
					evidence(order.FieldUnitPrice, m.Column, cell)
				} else {
					e.addIssue(out, order.Issue{
						Code:           order.CodeInvalidPrice,
						Severity:       order.SeverityError,
						Message:        fmt.Sprintf("row %d: unit price %q is not a valid price", r+1, cell.RawValue),
						AffectedFields: []order.Field{order.FieldUnitPrice},
					})
				}
			}
		}
		if m, ok := byField[order.FieldLineTotal]; ok {
			if cell, ok := cellAt(m.Column); ok && strings.TrimSpace(cell.RawValue) != "" {
				if v, _, parsed := ParseNumber(cell.RawValue, styles[m.Column]); parsed {
					li.LineTotalSource = &v
					evidence(order.FieldLineTotal, m.Column, cell)
				}
			}
		}

		// Rows with no identity and no quantity are decoration, not lines.
		if li.SKU == "" && li.GTIN == "" && li.ProductName == "" && !hasQuantity {
			continue
		}

		// Arithmetic check when quantity, price and total are all present.
		if hasQuantity && li.UnitPriceSource != nil && li.LineTotalSource != nil {
			product := li.Quantity * *li.UnitPriceSource
			total := *li.LineTotalSource
			tol := math.Max(e.config.AbsTol, e.config.RelTol*math.Max(math.Abs(product), math.Max(math.Abs(total), 1)))
			if math.Abs(product-total) > tol {
				e.addIssue(out, order.Issue{
					Code:     order.CodeArithmeticMismatch,
					Severity: order.SeverityWarning,
					Message: fmt.Sprintf("row %d: %v × %v = %.2f does not match the stated total %.2f",
						r+1, li.Quantity, *li.UnitPriceSource, product, total),
					AffectedFields: []order.Field{order.FieldQuantity, order.FieldUnitPrice, order.FieldLineTotal},
					Evidence: []order.EvidenceCell{
						li.Evidence[order.FieldQuantity],
						li.Evidence[order.FieldUnitPrice],
						li.Evidence[order.FieldLineTotal],
					},
				})
			}
		}

		// Duplicate detection on the line's identity.
		key := li.SKU + "|" + li.GTIN + "|" + strings.ToLower(li.ProductName)
		if prev, dup := seen[key]; dup && key != "||" {
			e.addIssue(out, order.Issue{
				Code:     order.CodeDuplicateLineItem,
				Severity: order.SeverityWarning,
				Message:  fmt.Sprintf("row %d repeats the item from row %d", r+1, prev+1),
			})
		} else {
			seen[key] = r
		}

		out.LineItems = append(out.LineItems, li)
		extracted++
	}

	if extracted > 0 {
		out.Conf.PerStage["row_extraction"] = 1.0
	} else {
		out.Conf.PerStage["row_extraction"] = 0.0
	}
}

// isTotalsRow detects totals rows by keyword or by a numeric cell that
// equals the running sum of extracted line totals, and records the workbook
// totals with evidence.
func isTotalsRow(out *order.CanonicalOrder, sheet *Sheet, r int, row []Cell, byField map[order.Field]fieldMapping, styles map[int]NumberStyle) bool {
	keyword := false
	for _, cell := range row {
		if isTotalsText(cell.RawValue) {
			keyword = true
			break
		}
	}

	sumOfLines := 0.0
	haveSum := false
	for _, li := range out.LineItems {
		if li.LineTotalSource != nil {
			sumOfLines += *li.LineTotalSource
			haveSum = true
		}
	}

	matchesSum := false
	if haveSum && len(out.LineItems) > 1 {
		if m, ok := byField[order.FieldLineTotal]; ok && m.Column < len(row) {
			if v, _, parsed := ParseNumber(row[m.Column].RawValue, styles[m.Column]); parsed {
				if math.Abs(v-sumOfLines) <= 0.02 {
					matchesSum = true
				}
			}
		}
	}

	if !keyword && !matchesSum {
		return false
	}

	// Record the grand total with evidence when the row carries one.
	if m, ok := byField[order.FieldLineTotal]; ok && m.Column < len(row) {
		if v, _, parsed := ParseNumber(row[m.Column].RawValue, styles[m.Column]); parsed && out.Totals.Grand == nil {
			out.Totals.Grand = &order.TotalValue{
				Value: v,
				Evidence: order.EvidenceCell{
					Sheet:        sheet.Name,
					Cell:         CellRef(r, m.Column),
					RawValue:     row[m.Column].RawValue,
					DisplayValue: row[m.Column].Display,
				},
			}
		}
	}
	return true
}

func rowIsEmpty(row []Cell) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell.RawValue) != "" {
			return false
		}
	}
	return true
}

func detectCurrency(s string) string {
	switch {
	case strings.Contains(s, "$"):
		return "USD"
	case strings.Contains(s, "€"):
		return "EUR"
	case strings.Contains(s, "£"):
		return "GBP"
	case strings.Contains(s, "¥"):
		return "JPY"
	case strings.Contains(s, "₹"):
		return "INR"
	}
	return ""
}
