package order

import "time"

// EvidenceCell points at a single workbook cell that an extracted value was
// read from. Evidence cells are immutable once written.
type EvidenceCell struct {
	// Sheet is the worksheet name the value was read from.
	Sheet string `json:"sheet"`

	// Cell is the A1-style reference (e.g. "C7").
	Cell string `json:"cell"`

	// RawValue is the cell's raw stored value before any normalization.
	RawValue string `json:"raw_value"`

	// DisplayValue is the formatted value as the spreadsheet renders it.
	DisplayValue string `json:"display_value,omitempty"`

	// NumberFormat is the cell's number format code, when present.
	NumberFormat string `json:"number_format,omitempty"`
}

// ResolutionStatus describes how far an entity got through catalog resolution.
type ResolutionStatus string

const (
	ResolutionPending   ResolutionStatus = "pending"
	ResolutionResolved  ResolutionStatus = "resolved"
	ResolutionAmbiguous ResolutionStatus = "ambiguous"
	ResolutionNeedsUser ResolutionStatus = "needs_user_input"
	ResolutionNotFound  ResolutionStatus = "not_found"
)

// Candidate is one catalog entry offered to the user for an ambiguous match.
type Candidate struct {
	ExternalID string  `json:"external_id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
}

// Customer is the extracted and (possibly) resolved customer of the order.
type Customer struct {
	RawText    string           `json:"raw_text"`
	Status     ResolutionStatus `json:"status"`
	ResolvedID string           `json:"resolved_id,omitempty"`
	Candidates []Candidate      `json:"candidates,omitempty"`
	Evidence   []EvidenceCell   `json:"evidence,omitempty"`
}

// LineItem is one extracted order line. RowIndex is the 0-based index of the
// source row within the selected sheet. UnitPriceResolved, when set, is the
// authoritative price from the external catalog; UnitPriceSource is audit-only.
type LineItem struct {
	RowIndex          int              `json:"row_index"`
	SKU               string           `json:"sku,omitempty"`
	GTIN              string           `json:"gtin,omitempty"`
	ProductName       string           `json:"product_name,omitempty"`
	Quantity          float64          `json:"quantity"`
	UnitPriceSource   *float64         `json:"unit_price_source,omitempty"`
	UnitPriceResolved *float64         `json:"unit_price_resolved,omitempty"`
	LineTotalSource   *float64         `json:"line_total_source,omitempty"`
	Currency          string           `json:"currency,omitempty"`
	Status            ResolutionStatus `json:"status"`
	ResolvedItemID    string           `json:"resolved_item_id,omitempty"`
	Candidates        []Candidate      `json:"candidates,omitempty"`

	// Evidence maps canonical field names to the cell each value came from.
	Evidence map[Field]EvidenceCell `json:"evidence"`
}

// TotalValue is an extracted workbook total with its evidence.
type TotalValue struct {
	Value    float64      `json:"value"`
	Evidence EvidenceCell `json:"evidence"`
}

// Totals carries the workbook-level totals when present.
type Totals struct {
	Subtotal *TotalValue `json:"subtotal,omitempty"`
	Tax      *TotalValue `json:"tax,omitempty"`
	Grand    *TotalValue `json:"grand,omitempty"`
}

// MappingMethod records how a column mapping was decided.
type MappingMethod string

const (
	MethodHeaderMatch MappingMethod = "header_match"
	MethodValueType   MappingMethod = "value_type"
	MethodPattern     MappingMethod = "pattern"
	MethodCommittee   MappingMethod = "committee"
	MethodUser        MappingMethod = "user"
)

// ColumnMapping binds one canonical field to a source column.
type ColumnMapping struct {
	Field      Field         `json:"field"`
	ColumnID   string        `json:"column_id"`
	Header     string        `json:"header,omitempty"`
	Confidence float64       `json:"confidence"`
	Method     MappingMethod `json:"method"`
}

// SchemaInference records the structural decisions the extractor made.
type SchemaInference struct {
	Sheet     string          `json:"sheet"`
	HeaderRow int             `json:"header_row"`
	Mappings  []ColumnMapping `json:"mappings"`
}

// Confidence is the extractor's confidence breakdown. Overall is the minimum
// of the per-stage values and always lies in [0,1].
type Confidence struct {
	Overall  float64            `json:"overall"`
	PerStage map[string]float64 `json:"per_stage"`
}

// Meta identifies the case and source file an order was extracted from.
type Meta struct {
	CaseID        string    `json:"case_id"`
	TenantID      string    `json:"tenant_id"`
	ReceivedAt    time.Time `json:"received_at"`
	FileName      string    `json:"file_name"`
	FileHash      string    `json:"file_hash"`
	LanguageHint  string    `json:"language_hint,omitempty"`
	ParserVersion string    `json:"parser_version"`
}

// ExternalLink records the draft order created in the external bookkeeping
// system once submission succeeds.
type ExternalLink struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CanonicalOrder is the extracted, validated, evidence-linked order. It is the
// handoff artifact between the extractor, the committee, the resolver and the
// submitter. Once written it is treated as immutable; corrections produce a
// new version referenced from the case event log.
type CanonicalOrder struct {
	Meta      Meta            `json:"meta"`
	Customer  Customer        `json:"customer"`
	LineItems []LineItem      `json:"line_items"`
	Totals    Totals          `json:"totals"`
	Schema    SchemaInference `json:"schema_inference"`
	Conf      Confidence      `json:"confidence"`
	Issues    []Issue         `json:"issues"`
	External  *ExternalLink   `json:"external,omitempty"`
	Version   int             `json:"version"`
}

// HasBlocker reports whether any issue prevents submission.
func (o *CanonicalOrder) HasBlocker() bool {
	for _, is := range o.Issues {
		if is.Severity == SeverityBlocker {
			return true
		}
	}
	return false
}

// AllItemsResolved reports whether every line item carries a resolved catalog
// reference.
func (o *CanonicalOrder) AllItemsResolved() bool {
	if len(o.LineItems) == 0 {
		return false
	}
	for _, li := range o.LineItems {
		if li.Status != ResolutionResolved {
			return false
		}
	}
	return true
}
