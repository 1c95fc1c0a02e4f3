package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"orderdesk-hq/callisto/pkg/order"
)

// ResolverConfig tunes the matching thresholds.
type ResolverConfig struct {
	// CustomerFuzzyHigh is the similarity at or above which a fuzzy customer
	// match resolves (given enough margin). Default: 0.75.
	CustomerFuzzyHigh float64

	// CustomerFuzzyLow is the similarity at or above which candidates are
	// offered for user selection. Default: 0.60.
	CustomerFuzzyLow float64

	// Margin is the best-vs-runner-up distance required for an automatic
	// fuzzy resolution. Default: 0.1.
	Margin float64

	// TopK bounds the candidate lists surfaced to the user. Default: 5.
	TopK int

	// ItemNameFuzzy enables the fuzzy item-name tier. Default: false.
	ItemNameFuzzy bool
}

// DefaultResolverConfig returns the default matching thresholds.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CustomerFuzzyHigh: 0.75,
		CustomerFuzzyLow:  0.60,
		Margin:            0.1,
		TopK:              5,
		ItemNameFuzzy:     false,
	}
}

// PriceDelta is the audit record comparing spreadsheet and catalog prices
// for one resolved line.
type PriceDelta struct {
	RowIndex    int     `json:"row_index"`
	ItemID      string  `json:"item_id"`
	SourcePrice float64 `json:"source_price"`
	CatalogRate float64 `json:"catalog_rate"`
	Delta       float64 `json:"delta"`
}

// Resolver matches extracted customers and items against the catalog cache.
type Resolver struct {
	config ResolverConfig
	cache  *Cache
	logger *slog.Logger
}

// NewResolver creates a resolver over the catalog cache.
func NewResolver(config ResolverConfig, cache *Cache) *Resolver {
	return &Resolver{
		config: config,
		cache:  cache,
		logger: slog.Default().With("component", "catalog.resolver"),
	}
}

// ResolveCustomer resolves the order's customer in place and returns issues
// for the unresolvable outcomes. The tiers: exact normalized name, then
// fuzzy with high/low thresholds and the ambiguity margin.
func (r *Resolver) ResolveCustomer(ctx context.Context, o *order.CanonicalOrder) ([]order.Issue, error) {
	if _, _, _, err := r.cache.Snapshot(ctx); err != nil {
		return nil, err
	}
	snap := r.cache.lookup()

	raw := o.Customer.RawText
	if raw == "" {
		o.Customer.Status = order.ResolutionNotFound
		return []order.Issue{{
			Code:     order.CodeMissingCustomer,
			Severity: order.SeverityError,
			Message:  "the order has no customer to resolve",
		}}, nil
	}

	normalized := NormalizeName(raw)

	// Tier 1: exact normalized match on display or company name.
	if matches := snap.customersByName[normalized]; len(matches) == 1 {
		o.Customer.Status = order.ResolutionResolved
		o.Customer.ResolvedID = matches[0].ExternalID
		return nil, nil
	} else if len(matches) > 1 {
		o.Customer.Status = order.ResolutionAmbiguous
		o.Customer.Candidates = customerCandidates(matches, 1.0, r.config.TopK)
		return []order.Issue{ambiguousCustomerIssue(raw)}, nil
	}

	// Tier 2: fuzzy top-K by normalized edit-distance similarity.
	type scoredCustomer struct {
		customer *Customer
		score    float64
	}
	var scored []scoredCustomer
	for _, cu := range snap.customers {
		best := similarity(normalized, NormalizeName(cu.DisplayName))
		if cu.CompanyName != "" {
			if s := similarity(normalized, NormalizeName(cu.CompanyName)); s > best {
				best = s
			}
		}
		scored = append(scored, scoredCustomer{customer: cu, score: best})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].customer.ExternalID < scored[j].customer.ExternalID
	})

	if len(scored) == 0 || scored[0].score < r.config.CustomerFuzzyLow {
		o.Customer.Status = order.ResolutionNotFound
		return []order.Issue{{
			Code:                order.CodeCustomerNotFound,
			Severity:            order.SeverityError,
			Message:             fmt.Sprintf("no catalog customer matches %q", raw),
			SuggestedUserAction: "pick the customer manually or correct the name",
		}}, nil
	}

	best := scored[0]
	margin := best.score
	if len(scored) > 1 {
		margin = best.score - scored[1].score
	}

	topK := make([]*Customer, 0, r.config.TopK)
	scores := make([]float64, 0, r.config.TopK)
	for i := 0; i < len(scored) && i < r.config.TopK; i++ {
		if scored[i].score < r.config.CustomerFuzzyLow {
			break
		}
		topK = append(topK, scored[i].customer)
		scores = append(scores, scored[i].score)
	}

	switch {
	case best.score >= r.config.CustomerFuzzyHigh && margin >= r.config.Margin:
		o.Customer.Status = order.ResolutionResolved
		o.Customer.ResolvedID = best.customer.ExternalID
		return nil, nil
	case best.score >= r.config.CustomerFuzzyHigh:
		o.Customer.Status = order.ResolutionAmbiguous
		o.Customer.Candidates = scoredCustomerCandidates(topK, scores)
		return []order.Issue{ambiguousCustomerIssue(raw)}, nil
	default:
		o.Customer.Status = order.ResolutionNeedsUser
		o.Customer.Candidates = scoredCustomerCandidates(topK, scores)
		return []order.Issue{{
			Code:                order.CodeAmbiguousCustomer,
			Severity:            order.SeverityWarning,
			Message:             fmt.Sprintf("%q loosely matches %d catalog customers", raw, len(topK)),
			SuggestedUserAction: "confirm which customer this order belongs to",
		}}, nil
	}
}

// ResolveItems resolves every line item in place, sets resolved prices from
// the catalog and returns issues plus the price-delta audit records.
// Tiers per line: exact SKU, exact GTIN, then feature-gated name fuzzy.
func (r *Resolver) ResolveItems(ctx context.Context, o *order.CanonicalOrder) ([]order.Issue, []PriceDelta, error) {
	if _, _, _, err := r.cache.Snapshot(ctx); err != nil {
		return nil, nil, err
	}
	snap := r.cache.lookup()

	var issues []order.Issue
	var deltas []PriceDelta

	for i := range o.LineItems {
		li := &o.LineItems[i]
		if li.Status == order.ResolutionResolved && li.ResolvedItemID != "" {
			// User already picked this line; keep the selection, refresh
			// the price.
			if it := findItemByID(snap, li.ResolvedItemID); it != nil {
				r.applyPrice(li, it, &deltas)
			}
			continue
		}

		item, status, candidates := r.matchItem(snap, li)
		li.Status = status
		li.Candidates = candidates

		switch status {
		case order.ResolutionResolved:
			li.ResolvedItemID = item.ExternalID
			r.applyPrice(li, item, &deltas)
		case order.ResolutionAmbiguous:
			issues = append(issues, order.Issue{
				Code:                order.CodeAmbiguousItem,
				Severity:            order.SeverityWarning,
				Message:             fmt.Sprintf("row %d matches several catalog items", li.RowIndex+1),
				SuggestedUserAction: "pick the correct catalog item",
			})
		case order.ResolutionNeedsUser:
			issues = append(issues, order.Issue{
				Code:                order.CodeAmbiguousItem,
				Severity:            order.SeverityWarning,
				Message:             fmt.Sprintf("row %d loosely matches catalog items", li.RowIndex+1),
				SuggestedUserAction: "pick the correct catalog item",
			})
		case order.ResolutionNotFound:
			issues = append(issues, order.Issue{
				Code:                order.CodeItemNotFound,
				Severity:            order.SeverityError,
				Message:             fmt.Sprintf("row %d: no catalog item matches", li.RowIndex+1),
				SuggestedUserAction: "correct the SKU or pick the item manually",
			})
		}
	}
	return issues, deltas, nil
}

// matchItem runs the item tiers against the snapshot indexes.
func (r *Resolver) matchItem(snap *snapshot, li *order.LineItem) (*Item, order.ResolutionStatus, []order.Candidate) {
	// Tier 1: SKU exact.
	if sku := NormalizeSKU(li.SKU); sku != "" {
		switch matches := snap.itemsBySKU[sku]; len(matches) {
		case 0:
		case 1:
			return matches[0], order.ResolutionResolved, nil
		default:
			return nil, order.ResolutionAmbiguous, itemCandidates(matches, 1.0, r.config.TopK)
		}
	}

	// Tier 2: GTIN exact.
	if gtin := NormalizeGTIN(li.GTIN); gtin != "" {
		switch matches := snap.itemsByGTIN[gtin]; len(matches) {
		case 0:
		case 1:
			return matches[0], order.ResolutionResolved, nil
		default:
			return nil, order.ResolutionAmbiguous, itemCandidates(matches, 1.0, r.config.TopK)
		}
	}

	// Tier 3: name fuzzy, feature-gated, default off.
	if r.config.ItemNameFuzzy && li.ProductName != "" {
		normalized := NormalizeName(li.ProductName)
		type scoredItem struct {
			item  *Item
			score float64
		}
		var scored []scoredItem
		for _, it := range snap.items {
			scored = append(scored, scoredItem{item: it, score: similarity(normalized, NormalizeName(it.Name))})
		}
		sort.Slice(scored, func(i, j int) bool {
			if scored[i].score != scored[j].score {
				return scored[i].score > scored[j].score
			}
			return scored[i].item.ExternalID < scored[j].item.ExternalID
		})

		if len(scored) > 0 && scored[0].score >= r.config.CustomerFuzzyLow {
			margin := scored[0].score
			if len(scored) > 1 {
				margin = scored[0].score - scored[1].score
			}
			var cands []order.Candidate
			for i := 0; i < len(scored) && i < r.config.TopK; i++ {
				if scored[i].score < r.config.CustomerFuzzyLow {
					break
				}
				cands = append(cands, order.Candidate{
					ExternalID: scored[i].item.ExternalID,
					Name:       scored[i].item.Name,
					Score:      scored[i].score,
				})
			}
			switch {
			case scored[0].score >= r.config.CustomerFuzzyHigh && margin >= r.config.Margin:
				return scored[0].item, order.ResolutionResolved, nil
			default:
				return nil, order.ResolutionNeedsUser, cands
			}
		}
	}

	return nil, order.ResolutionNotFound, nil
}

// applyPrice sets the resolved price from the catalog and records a delta
// audit entry when the spreadsheet disagrees. unit_price_source is never
// touched.
func (r *Resolver) applyPrice(li *order.LineItem, it *Item, deltas *[]PriceDelta) {
	rate := it.Rate
	li.UnitPriceResolved = &rate

	if li.UnitPriceSource != nil && *li.UnitPriceSource != rate {
		*deltas = append(*deltas, PriceDelta{
			RowIndex:    li.RowIndex,
			ItemID:      it.ExternalID,
			SourcePrice: *li.UnitPriceSource,
			CatalogRate: rate,
			Delta:       rate - *li.UnitPriceSource,
		})
	}
}

func findItemByID(snap *snapshot, id string) *Item {
	for _, it := range snap.items {
		if it.ExternalID == id {
			return it
		}
	}
	return nil
}

func ambiguousCustomerIssue(raw string) order.Issue {
	return order.Issue{
		Code:                order.CodeAmbiguousCustomer,
		Severity:            order.SeverityWarning,
		Message:             fmt.Sprintf("%q matches several catalog customers", raw),
		SuggestedUserAction: "confirm which customer this order belongs to",
	}
}

func customerCandidates(matches []*Customer, score float64, topK int) []order.Candidate {
	var cands []order.Candidate
	for i, cu := range matches {
		if i >= topK {
			break
		}
		cands = append(cands, order.Candidate{
			ExternalID: cu.ExternalID,
			Name:       cu.DisplayName,
			Score:      score,
		})
	}
	return cands
}

func scoredCustomerCandidates(customers []*Customer, scores []float64) []order.Candidate {
	var cands []order.Candidate
	for i, cu := range customers {
		cands = append(cands, order.Candidate{
			ExternalID: cu.ExternalID,
			Name:       cu.DisplayName,
			Score:      scores[i],
		})
	}
	return cands
}

func itemCandidates(matches []*Item, score float64, topK int) []order.Candidate {
	var cands []order.Candidate
	for i, it := range matches {
		if i >= topK {
			break
		}
		cands = append(cands, order.Candidate{
			ExternalID: it.ExternalID,
			Name:       it.Name,
			Score:      score,
		})
	}
	return cands
}
