package order

// Field identifies one canonical order field that column mapping can target.
// The set is closed: evidence maps and committee mappings keyed by anything
// outside this set are rejected at validation time.
type Field string

const (
	FieldSKU          Field = "sku"
	FieldGTIN         Field = "gtin"
	FieldProductName  Field = "product_name"
	FieldQuantity     Field = "quantity"
	FieldUnitPrice    Field = "unit_price"
	FieldLineTotal    Field = "line_total"
	FieldCustomerName Field = "customer_name"
	FieldSubtotal     Field = "subtotal"
	FieldTax          Field = "tax"
	FieldGrandTotal   Field = "grand_total"
)

// CanonicalFields lists every mappable field in a stable order.
func CanonicalFields() []Field {
	return []Field{
		FieldSKU,
		FieldGTIN,
		FieldProductName,
		FieldQuantity,
		FieldUnitPrice,
		FieldLineTotal,
		FieldCustomerName,
		FieldSubtotal,
		FieldTax,
		FieldGrandTotal,
	}
}

// IsCanonicalField reports whether s names a known canonical field.
func IsCanonicalField(s string) bool {
	for _, f := range CanonicalFields() {
		if string(f) == s {
			return true
		}
	}
	return false
}
