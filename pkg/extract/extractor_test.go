package extract

import (
	"encoding/json"
	"testing"
	"time"

	"orderdesk-hq/callisto/pkg/order"
)

// sheetFromStrings builds a decoded sheet from plain string rows.
func sheetFromStrings(name string, rows [][]string) Sheet {
	s := Sheet{Name: name}
	for _, row := range rows {
		cells := make([]Cell, len(row))
		for i, v := range row {
			cells[i] = Cell{RawValue: v, Display: v}
		}
		s.Rows = append(s.Rows, cells)
	}
	return s
}

func testMeta() order.Meta {
	return order.Meta{
		CaseID:     "case-1",
		TenantID:   "tenant-1",
		ReceivedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		FileName:   "orders.xlsx",
		FileHash:   "0000000000000000000000000000000000000000000000000000000000000000",
	}
}

func simpleEnglishWorkbook() *Workbook {
	return &Workbook{Sheets: []Sheet{
		sheetFromStrings("Orders", [][]string{
			{"Customer", "SKU", "Product", "Qty", "Unit Price", "Total"},
			{"ACME Corporation", "SKU-001", "Widget", "10", "25.50", "255.00"},
		}),
	}}
}

func TestExtract_HappyPathEnglish(t *testing.T) {
	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), simpleEnglishWorkbook())

	if order.HasBlockers(out.Issues) {
		t.Fatalf("unexpected blockers: %+v", out.Issues)
	}
	if len(out.LineItems) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(out.LineItems))
	}

	li := out.LineItems[0]
	if li.SKU != "SKU-001" {
		t.Errorf("sku = %q", li.SKU)
	}
	if li.Quantity != 10 {
		t.Errorf("quantity = %v", li.Quantity)
	}
	if li.UnitPriceSource == nil || *li.UnitPriceSource != 25.50 {
		t.Errorf("unit price = %v", li.UnitPriceSource)
	}
	if li.LineTotalSource == nil || *li.LineTotalSource != 255.00 {
		t.Errorf("line total = %v", li.LineTotalSource)
	}
	if out.Customer.RawText != "ACME Corporation" {
		t.Errorf("customer = %q", out.Customer.RawText)
	}
	if out.Meta.LanguageHint != "en" {
		t.Errorf("language hint = %q", out.Meta.LanguageHint)
	}

	// Every extracted scalar carries an evidence cell
	for _, f := range []order.Field{order.FieldSKU, order.FieldProductName, order.FieldQuantity, order.FieldUnitPrice, order.FieldLineTotal} {
		ev, ok := li.Evidence[f]
		if !ok {
			t.Errorf("missing evidence for %s", f)
			continue
		}
		if ev.Sheet != "Orders" || ev.Cell == "" {
			t.Errorf("bad evidence for %s: %+v", f, ev)
		}
	}

	if out.Conf.Overall < 0 || out.Conf.Overall > 1 {
		t.Errorf("overall confidence %v out of range", out.Conf.Overall)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := New(DefaultConfig(), nil)

	out1 := e.ExtractWorkbook(testMeta(), simpleEnglishWorkbook())
	out2 := e.ExtractWorkbook(testMeta(), simpleEnglishWorkbook())

	j1, _ := json.Marshal(out1)
	j2, _ := json.Marshal(out2)
	if string(j1) != string(j2) {
		t.Error("extraction is not deterministic on identical input")
	}
}

func TestExtract_PersianDigits(t *testing.T) {
	wb := &Workbook{Sheets: []Sheet{
		sheetFromStrings("سفارش", [][]string{
			{"مشتری", "کد کالا", "نام کالا", "تعداد", "قیمت"},
			{"شرکت نمونه", "SKU-001", "ویجت", "۱۵", "۲۵۰۰"},
		}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	if len(out.LineItems) != 1 {
		t.Fatalf("expected 1 line item, got %d: %+v", len(out.LineItems), out.Issues)
	}
	if out.LineItems[0].Quantity != 15 {
		t.Errorf("quantity = %v, want 15", out.LineItems[0].Quantity)
	}
	if out.Meta.LanguageHint != "fa" {
		t.Errorf("language hint = %q, want fa", out.Meta.LanguageHint)
	}
}

func TestExtract_FormulaBlocked(t *testing.T) {
	wb := simpleEnglishWorkbook()
	wb.Sheets[0].Rows[1][5].HasFormula = true
	wb.Sheets[0].Rows[1][5].RawValue = "=D2*E2"

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	found := false
	for _, is := range out.Issues {
		if is.Code == order.CodeFormulasBlocked && is.Severity == order.SeverityBlocker {
			found = true
			if len(is.Evidence) == 0 {
				t.Error("formula blocker should carry evidence")
			}
		}
	}
	if !found {
		t.Fatalf("expected FORMULAS_BLOCKED, got %+v", out.Issues)
	}
	if len(out.LineItems) != 0 {
		t.Error("no lines may be extracted past the formula gate")
	}
}

func TestExtract_FormulaGateDisabled(t *testing.T) {
	wb := simpleEnglishWorkbook()
	wb.Sheets[0].Rows[1][5].HasFormula = true

	cfg := DefaultConfig()
	cfg.StrictFormulas = false
	e := New(cfg, nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	for _, is := range out.Issues {
		if is.Code == order.CodeFormulasBlocked {
			t.Fatal("formula gate should be off")
		}
	}
	if len(out.LineItems) != 1 {
		t.Errorf("expected extraction to proceed, got %d lines", len(out.LineItems))
	}
}

func TestExtract_ZeroQuantityIsSilent(t *testing.T) {
	wb := &Workbook{Sheets: []Sheet{
		sheetFromStrings("Orders", [][]string{
			{"Customer", "SKU", "Product", "Qty", "Unit Price"},
			{"ACME", "SKU-001", "Widget", "0", "25.50"},
		}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	if len(out.LineItems) != 1 {
		t.Fatalf("expected 1 line, got %d", len(out.LineItems))
	}
	if out.LineItems[0].Quantity != 0 {
		t.Errorf("quantity = %v, want 0", out.LineItems[0].Quantity)
	}
	for _, is := range out.Issues {
		if is.Code == order.CodeInvalidQuantity {
			t.Error("zero quantity must never warn")
		}
	}
}

func TestExtract_NegativeQuantity(t *testing.T) {
	wb := &Workbook{Sheets: []Sheet{
		sheetFromStrings("Orders", [][]string{
			{"Customer", "SKU", "Product", "Qty", "Unit Price"},
			{"ACME", "SKU-001", "Widget", "-3", "25.50"},
		}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	found := false
	for _, is := range out.Issues {
		if is.Code == order.CodeInvalidQuantity {
			found = true
		}
	}
	if !found {
		t.Error("expected INVALID_QUANTITY for negative quantity")
	}
}

func TestExtract_ArithmeticMismatch(t *testing.T) {
	wb := &Workbook{Sheets: []Sheet{
		sheetFromStrings("Orders", [][]string{
			{"Customer", "SKU", "Product", "Qty", "Unit Price", "Total"},
			{"ACME", "SKU-001", "Widget", "10", "25.50", "300.00"},
		}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	found := false
	for _, is := range out.Issues {
		if is.Code == order.CodeArithmeticMismatch {
			found = true
		}
	}
	if !found {
		t.Error("expected ARITHMETIC_MISMATCH for 10×25.50 ≠ 300.00")
	}
}

func TestExtract_ArithmeticWithinTolerance(t *testing.T) {
	wb := &Workbook{Sheets: []Sheet{
		sheetFromStrings("Orders", [][]string{
			{"Customer", "SKU", "Product", "Qty", "Unit Price", "Total"},
			{"ACME", "SKU-001", "Widget", "10", "25.50", "255.01"},
		}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	for _, is := range out.Issues {
		if is.Code == order.CodeArithmeticMismatch {
			t.Error("0.01 off on 255 is within tolerance")
		}
	}
}

func TestExtract_TotalsRowSkipped(t *testing.T) {
	wb := &Workbook{Sheets: []Sheet{
		sheetFromStrings("Orders", [][]string{
			{"Customer", "SKU", "Product", "Qty", "Unit Price", "Total"},
			{"ACME", "SKU-001", "Widget", "10", "25.50", "255.00"},
			{"ACME", "SKU-002", "Gadget", "2", "10.00", "20.00"},
			{"", "", "Grand Total", "", "", "275.00"},
		}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	if len(out.LineItems) != 2 {
		t.Fatalf("expected 2 lines (totals row skipped), got %d", len(out.LineItems))
	}
	if out.Totals.Grand == nil || out.Totals.Grand.Value != 275.00 {
		t.Errorf("grand total = %+v, want 275.00", out.Totals.Grand)
	}
}

func TestExtract_EmptyWorkbook(t *testing.T) {
	wb := &Workbook{Sheets: []Sheet{
		sheetFromStrings("Sheet1", [][]string{{"", ""}, {"", ""}}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	if !order.HasBlockers(out.Issues) {
		t.Fatal("expected a blocker for an empty workbook")
	}
	if out.Issues[0].Code != order.CodeEmptySpreadsheet {
		t.Errorf("code = %q, want EMPTY_SPREADSHEET", out.Issues[0].Code)
	}
}

func TestExtract_NoLineItems(t *testing.T) {
	wb := &Workbook{Sheets: []Sheet{
		sheetFromStrings("Orders", [][]string{
			{"Customer", "SKU", "Product", "Qty", "Unit Price"},
		}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	found := false
	for _, is := range out.Issues {
		if is.Code == order.CodeNoLineItems && is.Severity == order.SeverityBlocker {
			found = true
		}
	}
	if !found {
		t.Errorf("expected NO_LINE_ITEMS blocker, got %+v", out.Issues)
	}
}

func TestExtract_HiddenSheetNeverWins(t *testing.T) {
	hidden := sheetFromStrings("Hidden", [][]string{
		{"Customer", "SKU", "Product", "Qty", "Unit Price"},
		{"ACME", "SKU-001", "Widget", "1", "1.00"},
	})
	hidden.Hidden = true

	wb := &Workbook{Sheets: []Sheet{
		hidden,
		sheetFromStrings("Visible", [][]string{
			{"Customer", "SKU", "Product", "Qty", "Unit Price"},
			{"Beta LLC", "SKU-009", "Bolt", "4", "2.00"},
		}),
	}}

	e := New(DefaultConfig(), nil)
	out := e.ExtractWorkbook(testMeta(), wb)

	if out.Schema.Sheet != "Visible" {
		t.Errorf("selected sheet = %q, want Visible", out.Schema.Sheet)
	}
}
