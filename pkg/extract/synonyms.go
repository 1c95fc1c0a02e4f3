package extract

import (
	"strings"

	"orderdesk-hq/callisto/pkg/order"
)

// headerSynonyms maps each canonical field to the header spellings seen in
// real order sheets: English, Farsi and Arabic, plus common abbreviations.
// Matching is case-insensitive on the normalized header text.
var headerSynonyms = map[order.Field][]string{
	order.FieldSKU: {
		"sku", "item code", "item no", "item number", "product code",
		"article", "article no", "code", "ref", "reference",
		"کد کالا", "کد محصول", "شماره کالا",
		"رمز الصنف", "كود المنتج",
	},
	order.FieldGTIN: {
		"gtin", "ean", "ean13", "upc", "barcode", "bar code",
		"بارکد", "الباركود",
	},
	order.FieldProductName: {
		"product", "product name", "item", "item name", "description",
		"name", "goods", "article name",
		"نام کالا", "شرح کالا", "محصول", "کالا",
		"اسم الصنف", "الوصف", "المنتج",
	},
	order.FieldQuantity: {
		"qty", "quantity", "count", "units", "pcs", "pieces", "amount",
		"تعداد", "مقدار",
		"الكمية", "العدد",
	},
	order.FieldUnitPrice: {
		"price", "unit price", "unit cost", "rate", "price per unit",
		"قیمت", "قیمت واحد", "فی",
		"السعر", "سعر الوحدة",
	},
	order.FieldLineTotal: {
		"total", "line total", "amount", "subtotal", "extended price",
		"net amount", "value",
		"جمع", "مبلغ", "مبلغ کل", "قیمت کل",
		"الإجمالي", "المجموع",
	},
	order.FieldSubtotal: {
		"subtotal", "sub total", "net total",
		"جمع جزء",
		"المجموع الفرعي",
	},
	order.FieldTax: {
		"tax", "vat", "sales tax", "tax amount",
		"مالیات",
		"الضريبة",
	},
	order.FieldGrandTotal: {
		"grand total", "total due", "total amount",
		"جمع کل", "مجموع کل",
		"الإجمالي الكلي",
	},
	order.FieldCustomerName: {
		"customer", "customer name", "client", "buyer", "company",
		"account", "bill to", "sold to",
		"مشتری", "نام مشتری", "خریدار",
		"العميل", "اسم العميل", "المشتري",
	},
}

// totalsKeywords mark workbook totals rows that must not be extracted as
// line items.
var totalsKeywords = []string{
	"total", "grand total", "sum", "subtotal", "sub total", "tax", "vat",
	"جمع کل", "مجموع", "مالیات",
	"الإجمالي الكلي", "المجموع", "الضريبة",
}

// normalizeHeader lowercases and collapses whitespace for dictionary lookup.
func normalizeHeader(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// headerSimilarity scores a header against a field's synonym list in [0,1]:
// 1.0 for an exact normalized match, 0.8 for containment, otherwise a token
// overlap ratio.
func headerSimilarity(header string, field order.Field) float64 {
	h := normalizeHeader(NormalizeDigits(header))
	if h == "" {
		return 0
	}

	best := 0.0
	for _, syn := range headerSynonyms[field] {
		sn := normalizeHeader(syn)
		switch {
		case h == sn:
			return 1.0
		case strings.Contains(h, sn) || strings.Contains(sn, h):
			if best < 0.8 {
				best = 0.8
			}
		default:
			if ov := tokenOverlap(h, sn); ov > best {
				best = ov
			}
		}
	}
	return best
}

// tokenOverlap is the fraction of synonym tokens present in the header,
// scaled down so it never beats containment.
func tokenOverlap(header, syn string) float64 {
	synTokens := strings.Fields(syn)
	if len(synTokens) == 0 {
		return 0
	}
	headerTokens := map[string]bool{}
	for _, tok := range strings.Fields(header) {
		headerTokens[tok] = true
	}
	hits := 0
	for _, tok := range synTokens {
		if headerTokens[tok] {
			hits++
		}
	}
	return 0.6 * float64(hits) / float64(len(synTokens))
}

// isTotalsText reports whether a cell's text marks a totals row.
func isTotalsText(s string) bool {
	n := normalizeHeader(s)
	if n == "" {
		return false
	}
	for _, kw := range totalsKeywords {
		if n == kw || strings.HasPrefix(n, kw+" ") || strings.HasPrefix(n, kw+":") {
			return true
		}
	}
	return false
}
