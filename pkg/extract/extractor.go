package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"orderdesk-hq/callisto/pkg/order"
)

// ParserVersion is stamped into every extracted order's meta.
const ParserVersion = "1.3.0"

// Config contains extractor configuration.
type Config struct {
	// StrictFormulas blocks extraction when any data-region cell carries a
	// formula. Default: true.
	StrictFormulas bool

	// AmbiguityMargin is the best-vs-runner-up distance below which sheet,
	// header and mapping decisions need user review. Default: 0.1.
	AmbiguityMargin float64

	// AbsTol and RelTol bound the line arithmetic check
	// |qty*price - total| <= max(AbsTol, RelTol*max(|a|,|b|,1)).
	// Defaults: 0.02 and 0.01.
	AbsTol float64
	RelTol float64

	// SampleSize is how many values per column feed type detection.
	// Default: 5.
	SampleSize int
}

// DefaultConfig returns the default extractor configuration.
func DefaultConfig() Config {
	return Config{
		StrictFormulas:  true,
		AmbiguityMargin: 0.1,
		AbsTol:          0.02,
		RelTol:          0.01,
		SampleSize:      5,
	}
}

// Extractor is the deterministic workbook extractor.
type Extractor struct {
	config  Config
	decoder Decoder
	logger  *slog.Logger
}

// New creates an extractor with the given configuration and decoder.
func New(config Config, decoder Decoder) *Extractor {
	if decoder == nil {
		decoder = NewExcelDecoder()
	}
	if config.SampleSize <= 0 {
		config.SampleSize = 5
	}
	if config.AmbiguityMargin <= 0 {
		config.AmbiguityMargin = 0.1
	}
	if config.AbsTol <= 0 {
		config.AbsTol = 0.02
	}
	if config.RelTol <= 0 {
		config.RelTol = 0.01
	}
	return &Extractor{
		config:  config,
		decoder: decoder,
		logger:  slog.Default().With("component", "extract"),
	}
}

// Extract decodes the workbook bytes and runs the extraction pipeline.
// The only error it returns is a fatal decode failure; every other problem
// surfaces as an issue on the returned order.
func (e *Extractor) Extract(meta order.Meta, data []byte) (*order.CanonicalOrder, error) {
	wb, err := e.decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	return e.ExtractWorkbook(meta, wb), nil
}

// ExtractWorkbook runs the pipeline on an already-decoded workbook.
func (e *Extractor) ExtractWorkbook(meta order.Meta, wb *Workbook) *order.CanonicalOrder {
	return e.ExtractWorkbookWithOverrides(meta, wb, nil)
}

// ExtractWorkbookWithOverrides runs the pipeline with user-supplied column
// overrides applied on top of the heuristic mapping. An override pins a
// field to a column id with full confidence; the evidence and row
// extraction then follow the pinned columns.
func (e *Extractor) ExtractWorkbookWithOverrides(meta order.Meta, wb *Workbook, overrides map[order.Field]string) *order.CanonicalOrder {
	meta.ParserVersion = ParserVersion
	out := &order.CanonicalOrder{
		Meta:    meta,
		Version: 1,
		Conf:    order.Confidence{PerStage: map[string]float64{}},
	}
	out.Customer.Status = order.ResolutionPending

	if isEmptyWorkbook(wb) {
		e.addIssue(out, order.Issue{
			Code:     order.CodeEmptySpreadsheet,
			Severity: order.SeverityBlocker,
			Message:  "the workbook contains no data",
		})
		out.Conf.Overall = 0
		return out
	}

	// Sheet selection.
	selected, sheetMargin, ok := selectSheet(wb)
	if !ok {
		e.addIssue(out, order.Issue{
			Code:     order.CodeEmptySpreadsheet,
			Severity: order.SeverityBlocker,
			Message:  "no visible sheet contains data",
		})
		out.Conf.Overall = 0
		return out
	}
	sheet := &wb.Sheets[selected.Index]
	out.Schema.Sheet = sheet.Name
	out.Conf.PerStage["sheet_selection"] = clamp01(0.5 + sheetMargin/2)
	if sheetMargin < e.config.AmbiguityMargin {
		e.addIssue(out, order.Issue{
			Code:                order.CodeMultipleSheetCandidates,
			Severity:            order.SeverityWarning,
			Message:             fmt.Sprintf("several sheets look like order data; selected %q", sheet.Name),
			SuggestedUserAction: "confirm which sheet holds the order",
		})
	}

	// Formula gate, strict by default: any formula inside the plausible
	// data region blocks extraction entirely.
	if e.config.StrictFormulas {
		if ref, found := findFormula(sheet); found {
			e.addIssue(out, order.Issue{
				Code:                order.CodeFormulasBlocked,
				Severity:            order.SeverityBlocker,
				Message:             fmt.Sprintf("cell %s contains a formula; formulas are not accepted in order files", ref.Cell),
				Evidence:            []order.EvidenceCell{ref},
				SuggestedUserAction: "replace formulas with plain values and re-upload the file",
			})
			out.Conf.Overall = 0
			return out
		}
	}

	// Header-row detection.
	headerRow, headerScore := detectHeaderRow(sheet)
	headerMargin := headerRunnerUpMargin(sheet)
	out.Schema.HeaderRow = headerRow
	out.Conf.PerStage["header_detection"] = clamp01(headerScore)
	if headerMargin < e.config.AmbiguityMargin {
		e.addIssue(out, order.Issue{
			Code:                order.CodeMultipleHeaderCandidates,
			Severity:            order.SeverityWarning,
			Message:             fmt.Sprintf("header row %d is ambiguous", headerRow+1),
			SuggestedUserAction: "confirm which row holds the column headers",
		})
	}

	// Column mapping.
	headers := columnHeaders(sheet, headerRow)
	samples := make([][]string, len(headers))
	for c := range headers {
		samples[c] = sampleColumnValues(sheet, headerRow, c, e.config.SampleSize)
	}
	mappings := mapColumns(headers, samples)
	mappings = applyOverrides(mappings, overrides, len(headers))

	mappingConf := 0.0
	byField := map[order.Field]fieldMapping{}
	for _, m := range mappings {
		byField[m.Field] = m
		method := order.MethodHeaderMatch
		if _, pinned := overrides[m.Field]; pinned {
			method = order.MethodUser
		}
		out.Schema.Mappings = append(out.Schema.Mappings, order.ColumnMapping{
			Field:      m.Field,
			ColumnID:   ColumnID(m.Column),
			Header:     headers[m.Column],
			Confidence: m.Confidence,
			Method:     method,
		})
		mappingConf += m.Confidence
		if m.Margin < e.config.AmbiguityMargin {
			e.addIssue(out, order.Issue{
				Code:                order.CodeMissingRequiredField,
				Severity:            order.SeverityWarning,
				Message:             fmt.Sprintf("column for %s is ambiguous", m.Field),
				AffectedFields:      []order.Field{m.Field},
				SuggestedUserAction: "review the proposed column mapping",
			})
		}
	}
	if len(mappings) > 0 {
		mappingConf /= float64(len(mappings))
	}
	out.Conf.PerStage["column_mapping"] = clamp01(mappingConf)

	// Row extraction, arithmetic and GTIN checks.
	e.extractRows(out, sheet, headerRow, byField)

	// Customer extraction.
	e.extractCustomer(out, sheet, headerRow, byField)

	// Language hint from headers plus first-column samples.
	var firstColSamples []string
	if len(headers) > 0 {
		firstColSamples = sampleColumnValues(sheet, headerRow, 0, 10)
	}
	out.Meta.LanguageHint = detectLanguage(headers, firstColSamples)

	if len(out.LineItems) == 0 && !order.HasBlockers(out.Issues) {
		e.addIssue(out, order.Issue{
			Code:                order.CodeNoLineItems,
			Severity:            order.SeverityBlocker,
			Message:             "no order lines could be extracted",
			SuggestedUserAction: "check that the sheet has item rows under the header",
		})
	}

	// Overall confidence is the minimum per-stage confidence.
	overall := 1.0
	for _, v := range out.Conf.PerStage {
		if v < overall {
			overall = v
		}
	}
	out.Conf.Overall = clamp01(overall)

	e.logger.Debug("extraction finished",
		"case_id", meta.CaseID,
		"sheet", out.Schema.Sheet,
		"lines", len(out.LineItems),
		"issues", len(out.Issues),
		"language", out.Meta.LanguageHint,
		"confidence", out.Conf.Overall,
	)
	return out
}

// applyOverrides pins user-corrected fields onto the heuristic mapping.
func applyOverrides(mappings []fieldMapping, overrides map[order.Field]string, columnCount int) []fieldMapping {
	if len(overrides) == 0 {
		return mappings
	}

	byField := map[order.Field]int{}
	for i, m := range mappings {
		byField[m.Field] = i
	}
	for field, columnID := range overrides {
		var col int
		if _, err := fmt.Sscanf(columnID, "col_%d", &col); err != nil || col < 0 || col >= columnCount {
			continue
		}
		pinned := fieldMapping{Field: field, Column: col, Confidence: 1.0, Margin: 1.0}
		if i, ok := byField[field]; ok {
			mappings[i] = pinned
		} else {
			mappings = append(mappings, pinned)
		}
	}
	return mappings
}

func (e *Extractor) addIssue(out *order.CanonicalOrder, is order.Issue) {
	out.Issues = append(out.Issues, is)
}

// extractCustomer pulls the customer text from the mapped customer column's
// first non-empty data value.
func (e *Extractor) extractCustomer(out *order.CanonicalOrder, sheet *Sheet, headerRow int, byField map[order.Field]fieldMapping) {
	m, ok := byField[order.FieldCustomerName]
	if !ok {
		e.addIssue(out, order.Issue{
			Code:                order.CodeMissingCustomer,
			Severity:            order.SeverityError,
			Message:             "no customer column could be identified",
			AffectedFields:      []order.Field{order.FieldCustomerName},
			SuggestedUserAction: "tell the bot which customer this order belongs to",
		})
		return
	}

	for r := headerRow + 1; r < len(sheet.Rows); r++ {
		row := sheet.Rows[r]
		if m.Column >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[m.Column].RawValue)
		if v == "" || isTotalsText(v) {
			continue
		}
		out.Customer.RawText = v
		out.Customer.Evidence = []order.EvidenceCell{{
			Sheet:        sheet.Name,
			Cell:         CellRef(r, m.Column),
			RawValue:     row[m.Column].RawValue,
			DisplayValue: row[m.Column].Display,
		}}
		return
	}

	e.addIssue(out, order.Issue{
		Code:           order.CodeMissingCustomer,
		Severity:       order.SeverityError,
		Message:        "the customer column has no values",
		AffectedFields: []order.Field{order.FieldCustomerName},
	})
}

// findFormula locates the first formula cell in the sheet's plausible data
// region (everything is plausible until proven otherwise).
func findFormula(sheet *Sheet) (order.EvidenceCell, bool) {
	for r, row := range sheet.Rows {
		for c, cell := range row {
			if cell.HasFormula {
				return order.EvidenceCell{
					Sheet:        sheet.Name,
					Cell:         CellRef(r, c),
					RawValue:     cell.RawValue,
					DisplayValue: cell.Display,
				}, true
			}
		}
	}
	return order.EvidenceCell{}, false
}

func isEmptyWorkbook(wb *Workbook) bool {
	for _, sheet := range wb.Sheets {
		for _, row := range sheet.Rows {
			for _, cell := range row {
				if strings.TrimSpace(cell.RawValue) != "" {
					return false
				}
			}
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
