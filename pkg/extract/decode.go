package extract

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Cell is one decoded workbook cell. RawValue preserves the stored value
// before any formatting; Display is the value as the spreadsheet renders it.
type Cell struct {
	RawValue     string
	Display      string
	HasFormula   bool
	NumberFormat string
}

// Sheet is one decoded worksheet as a dense row/column matrix.
type Sheet struct {
	Name   string
	Rows   [][]Cell
	Hidden bool

	// Merged lists merged regions as "A1:B2" range references.
	Merged []string
}

// Workbook is the decoder output the extraction pipeline operates on.
type Workbook struct {
	Sheets []Sheet
}

// FatalError is the unrecoverable decode failure; everything else the
// extractor finds surfaces as issues on the order.
type FatalError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("workbook decode failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("workbook decode failed: %s", e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *FatalError) Unwrap() error {
	return e.Cause
}

// Decoder turns opaque workbook bytes into the matrix model.
type Decoder interface {
	Decode(data []byte) (*Workbook, error)
}

// ExcelDecoder decodes xlsx workbooks using excelize.
type ExcelDecoder struct{}

// NewExcelDecoder returns the xlsx decoder.
func NewExcelDecoder() *ExcelDecoder {
	return &ExcelDecoder{}
}

// Decode reads an xlsx workbook into the matrix model, preserving raw
// values, formula markers, merged regions and hidden flags.
func (d *ExcelDecoder) Decode(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FatalError{Message: "cannot open workbook", Cause: err}
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		visible, _ := f.GetSheetVisible(name)

		raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, &FatalError{Message: fmt.Sprintf("cannot read sheet %q", name), Cause: err}
		}
		display, err := f.GetRows(name)
		if err != nil {
			return nil, &FatalError{Message: fmt.Sprintf("cannot format sheet %q", name), Cause: err}
		}

		sheet := Sheet{Name: name, Hidden: !visible}
		for r, rawRow := range raw {
			row := make([]Cell, len(rawRow))
			for c, rawVal := range rawRow {
				cell := Cell{RawValue: rawVal}
				if r < len(display) && c < len(display[r]) {
					cell.Display = display[r][c]
				}
				axis, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err == nil {
					if formula, _ := f.GetCellFormula(name, axis); formula != "" {
						cell.HasFormula = true
					}
				}
				row[c] = cell
			}
			sheet.Rows = append(sheet.Rows, row)
		}

		if merged, err := f.GetMergeCells(name); err == nil {
			for _, m := range merged {
				sheet.Merged = append(sheet.Merged, m.GetStartAxis()+":"+m.GetEndAxis())
			}
		}

		wb.Sheets = append(wb.Sheets, sheet)
	}

	if len(wb.Sheets) == 0 {
		return nil, &FatalError{Message: "workbook has no sheets"}
	}
	return wb, nil
}

// CellRef returns the A1-style reference for 0-based row/column indexes.
func CellRef(row, col int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return fmt.Sprintf("R%dC%d", row+1, col+1)
	}
	return name
}
