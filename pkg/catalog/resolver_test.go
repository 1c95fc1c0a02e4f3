package catalog

import (
	"context"
	"testing"
	"time"

	"orderdesk-hq/callisto/pkg/order"
)

func cacheWith(customers []*Customer, items []*Item) *Cache {
	c := NewCache(CacheConfig{TTL: time.Hour}, nil, nil)
	c.current.Store(buildSnapshot(customers, items, time.Now(), false))
	return c
}

func testCustomers() []*Customer {
	return []*Customer{
		{ExternalID: "cust_001", DisplayName: "ACME Corporation", Status: "active"},
		{ExternalID: "cust_002", DisplayName: "Beta Industries", Status: "active"},
		{ExternalID: "cust_003", DisplayName: "Gamma Trading LLC", CompanyName: "Gamma Trading", Status: "active"},
	}
}

func testItems() []*Item {
	return []*Item{
		{ExternalID: "item_001", SKU: "SKU-001", GTIN: "4006381333931", Name: "Widget", Rate: 25.50, Status: "active"},
		{ExternalID: "item_002", SKU: "SKU-002", Name: "Gadget", Rate: 10.00, Status: "active"},
		{ExternalID: "item_003", SKU: "DUP-01", Name: "Bolt A", Rate: 1.00, Status: "active"},
		{ExternalID: "item_004", SKU: "DUP-01", Name: "Bolt B", Rate: 1.10, Status: "active"},
	}
}

func orderWithCustomer(name string) *order.CanonicalOrder {
	return &order.CanonicalOrder{
		Customer: order.Customer{RawText: name, Status: order.ResolutionPending},
	}
}

func TestResolveCustomer_ExactNormalized(t *testing.T) {
	r := NewResolver(DefaultResolverConfig(), cacheWith(testCustomers(), nil))

	// Case, punctuation and whitespace differences still match exactly.
	o := orderWithCustomer("  acme,  CORPORATION. ")
	issues, err := r.ResolveCustomer(context.Background(), o)
	if err != nil {
		t.Fatalf("ResolveCustomer failed: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %+v", issues)
	}
	if o.Customer.Status != order.ResolutionResolved || o.Customer.ResolvedID != "cust_001" {
		t.Errorf("customer = %+v", o.Customer)
	}
}

func TestResolveCustomer_FuzzyResolves(t *testing.T) {
	r := NewResolver(DefaultResolverConfig(), cacheWith(testCustomers(), nil))

	o := orderWithCustomer("ACME Corporatio") // one rune short
	issues, err := r.ResolveCustomer(context.Background(), o)
	if err != nil {
		t.Fatalf("ResolveCustomer failed: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %+v", issues)
	}
	if o.Customer.Status != order.ResolutionResolved || o.Customer.ResolvedID != "cust_001" {
		t.Errorf("customer = %+v", o.Customer)
	}
}

func TestResolveCustomer_AmbiguousWithinMargin(t *testing.T) {
	customers := []*Customer{
		{ExternalID: "cust_001", DisplayName: "ACME GmbH"},
		{ExternalID: "cust_002", DisplayName: "ACME GmbX"},
		{ExternalID: "cust_003", DisplayName: "ACME GmbY"},
	}
	r := NewResolver(DefaultResolverConfig(), cacheWith(customers, nil))

	o := orderWithCustomer("ACME Gmb")
	issues, err := r.ResolveCustomer(context.Background(), o)
	if err != nil {
		t.Fatalf("ResolveCustomer failed: %v", err)
	}
	if o.Customer.Status != order.ResolutionAmbiguous {
		t.Fatalf("status = %s, want ambiguous", o.Customer.Status)
	}
	if len(o.Customer.Candidates) < 2 {
		t.Errorf("expected candidate list, got %+v", o.Customer.Candidates)
	}
	if len(issues) == 0 || issues[0].Code != order.CodeAmbiguousCustomer {
		t.Errorf("expected AMBIGUOUS_CUSTOMER issue, got %+v", issues)
	}
}

func TestResolveCustomer_NotFound(t *testing.T) {
	r := NewResolver(DefaultResolverConfig(), cacheWith(testCustomers(), nil))

	o := orderWithCustomer("Completely Unrelated Entity 999")
	issues, err := r.ResolveCustomer(context.Background(), o)
	if err != nil {
		t.Fatalf("ResolveCustomer failed: %v", err)
	}
	if o.Customer.Status != order.ResolutionNotFound {
		t.Errorf("status = %s, want not_found", o.Customer.Status)
	}
	if len(issues) == 0 || issues[0].Code != order.CodeCustomerNotFound {
		t.Errorf("expected CUSTOMER_NOT_FOUND, got %+v", issues)
	}
}

func TestResolveItems_SKUExactAndPrice(t *testing.T) {
	r := NewResolver(DefaultResolverConfig(), cacheWith(nil, testItems()))

	src := 24.00
	o := &order.CanonicalOrder{
		LineItems: []order.LineItem{{
			RowIndex:        1,
			SKU:             "sku-001", // normalizes to SKU-001
			Quantity:        10,
			UnitPriceSource: &src,
			Status:          order.ResolutionPending,
		}},
	}

	issues, deltas, err := r.ResolveItems(context.Background(), o)
	if err != nil {
		t.Fatalf("ResolveItems failed: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %+v", issues)
	}

	li := o.LineItems[0]
	if li.Status != order.ResolutionResolved || li.ResolvedItemID != "item_001" {
		t.Errorf("line = %+v", li)
	}
	// Catalog rate prevails; source price is preserved untouched.
	if li.UnitPriceResolved == nil || *li.UnitPriceResolved != 25.50 {
		t.Errorf("resolved price = %v, want 25.50", li.UnitPriceResolved)
	}
	if li.UnitPriceSource == nil || *li.UnitPriceSource != 24.00 {
		t.Errorf("source price mutated: %v", li.UnitPriceSource)
	}
	if len(deltas) != 1 || deltas[0].Delta != 1.50 {
		t.Errorf("deltas = %+v", deltas)
	}
}

func TestResolveItems_GTINFallback(t *testing.T) {
	r := NewResolver(DefaultResolverConfig(), cacheWith(nil, testItems()))

	o := &order.CanonicalOrder{
		LineItems: []order.LineItem{{
			RowIndex: 1,
			GTIN:     "4006381333931",
			Status:   order.ResolutionPending,
		}},
	}

	_, _, err := r.ResolveItems(context.Background(), o)
	if err != nil {
		t.Fatalf("ResolveItems failed: %v", err)
	}
	if o.LineItems[0].ResolvedItemID != "item_001" {
		t.Errorf("line = %+v", o.LineItems[0])
	}
}

func TestResolveItems_AmbiguousSKU(t *testing.T) {
	r := NewResolver(DefaultResolverConfig(), cacheWith(nil, testItems()))

	o := &order.CanonicalOrder{
		LineItems: []order.LineItem{{
			RowIndex: 1,
			SKU:      "DUP-01",
			Status:   order.ResolutionPending,
		}},
	}

	issues, _, err := r.ResolveItems(context.Background(), o)
	if err != nil {
		t.Fatalf("ResolveItems failed: %v", err)
	}
	if o.LineItems[0].Status != order.ResolutionAmbiguous {
		t.Errorf("status = %s, want ambiguous", o.LineItems[0].Status)
	}
	if len(o.LineItems[0].Candidates) != 2 {
		t.Errorf("candidates = %+v", o.LineItems[0].Candidates)
	}
	if len(issues) == 0 || issues[0].Code != order.CodeAmbiguousItem {
		t.Errorf("expected AMBIGUOUS_ITEM, got %+v", issues)
	}
}

func TestResolveItems_NameFuzzyGatedOff(t *testing.T) {
	r := NewResolver(DefaultResolverConfig(), cacheWith(nil, testItems()))

	o := &order.CanonicalOrder{
		LineItems: []order.LineItem{{
			RowIndex:    1,
			ProductName: "Widget",
			Status:      order.ResolutionPending,
		}},
	}

	issues, _, err := r.ResolveItems(context.Background(), o)
	if err != nil {
		t.Fatalf("ResolveItems failed: %v", err)
	}
	// Fuzzy name matching is off by default: not_found, not resolved.
	if o.LineItems[0].Status != order.ResolutionNotFound {
		t.Errorf("status = %s, want not_found with fuzzy gated off", o.LineItems[0].Status)
	}
	if len(issues) == 0 || issues[0].Code != order.CodeItemNotFound {
		t.Errorf("expected ITEM_NOT_FOUND, got %+v", issues)
	}

	// Enabled, the same line resolves.
	cfg := DefaultResolverConfig()
	cfg.ItemNameFuzzy = true
	r2 := NewResolver(cfg, cacheWith(nil, testItems()))
	o.LineItems[0].Status = order.ResolutionPending
	if _, _, err := r2.ResolveItems(context.Background(), o); err != nil {
		t.Fatalf("ResolveItems failed: %v", err)
	}
	if o.LineItems[0].ResolvedItemID != "item_001" {
		t.Errorf("fuzzy-on line = %+v", o.LineItems[0])
	}
}

func TestNormalize(t *testing.T) {
	if NormalizeName("  ACME,   Corp.  ") != "acme corp" {
		t.Errorf("NormalizeName = %q", NormalizeName("  ACME,   Corp.  "))
	}
	if NormalizeSKU(" sku 001 ") != "SKU001" {
		t.Errorf("NormalizeSKU = %q", NormalizeSKU(" sku 001 "))
	}
	if NormalizeGTIN("40-0638 1333931") != "4006381333931" {
		t.Errorf("NormalizeGTIN = %q", NormalizeGTIN("40-0638 1333931"))
	}
}

func TestSimilarity(t *testing.T) {
	if similarity("acme", "acme") != 1.0 {
		t.Error("identical strings must score 1.0")
	}
	if s := similarity("acme corporation", "acme corp"); s <= 0.4 || s >= 1.0 {
		t.Errorf("similarity = %v, expected partial match", s)
	}
	if similarity("", "acme") != 0.0 {
		t.Error("empty vs non-empty must score 0")
	}
}
