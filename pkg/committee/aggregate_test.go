package committee

import (
	"math/rand"
	"testing"

	"orderdesk-hq/callisto/pkg/order"
)

func col(id string) *string { return &id }

func voteFor(provider string, weight float64, field string, column *string, confidence float64) Vote {
	return Vote{
		Provider: provider,
		Weight:   weight,
		Result: &ProviderResult{
			Mappings: []Mapping{{
				Field:            field,
				SelectedColumnID: column,
				Confidence:       confidence,
				Reasoning:        "test",
			}},
		},
	}
}

func TestAggregate_WeightedWinner(t *testing.T) {
	votes := []Vote{
		voteFor("a", 1.0, "sku", col("col_1"), 0.9),
		voteFor("b", 1.0, "sku", col("col_2"), 0.5),
		voteFor("c", 2.0, "sku", col("col_2"), 0.8),
	}

	result := Aggregate(votes, []order.Field{order.FieldSKU}, DefaultAggregateConfig())
	if len(result) != 1 {
		t.Fatalf("expected 1 field, got %d", len(result))
	}

	fc := result[0]
	// col_2: 0.5*1 + 0.8*2 = 2.1 beats col_1: 0.9*1 = 0.9
	if fc.SelectedColumnID != "col_2" {
		t.Errorf("winner %q, want col_2", fc.SelectedColumnID)
	}
	if fc.Score != 2.1 {
		t.Errorf("score %v, want 2.1", fc.Score)
	}
	if fc.Label != ConsensusMajority {
		t.Errorf("label %s, want majority", fc.Label)
	}
}

func TestAggregate_CommutativeInVoteOrder(t *testing.T) {
	votes := []Vote{
		voteFor("a", 1.0, "sku", col("col_1"), 0.9),
		voteFor("b", 1.2, "sku", col("col_2"), 0.5),
		voteFor("c", 0.8, "sku", nil, 0.7),
	}

	base := Aggregate(votes, []order.Field{order.FieldSKU}, DefaultAggregateConfig())

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 10; i++ {
		shuffled := make([]Vote, len(votes))
		copy(shuffled, votes)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := Aggregate(shuffled, []order.Field{order.FieldSKU}, DefaultAggregateConfig())
		if got[0].SelectedColumnID != base[0].SelectedColumnID ||
			got[0].Score != base[0].Score ||
			got[0].Label != base[0].Label ||
			got[0].RequiresHumanInput != base[0].RequiresHumanInput {
			t.Fatalf("aggregation depends on vote order: %+v vs %+v", got[0], base[0])
		}
	}
}

func TestAggregate_NullVotesRecordedButNotScored(t *testing.T) {
	votes := []Vote{
		voteFor("a", 1.0, "gtin", nil, 0.9),
		voteFor("b", 1.0, "gtin", nil, 0.9),
		voteFor("c", 1.0, "gtin", col("col_3"), 0.4),
	}

	result := Aggregate(votes, []order.Field{order.FieldGTIN}, DefaultAggregateConfig())
	fc := result[0]
	if fc.SelectedColumnID != "col_3" {
		t.Errorf("winner %q, want col_3", fc.SelectedColumnID)
	}
	// 0.4 of a weight sum of 3 is below the 0.5 floor
	if fc.Label != ConsensusNone {
		t.Errorf("label %s, want no_consensus", fc.Label)
	}
	if !fc.RequiresHumanInput {
		t.Error("no_consensus must require human input")
	}
}

func TestAggregate_AllNull(t *testing.T) {
	votes := []Vote{
		voteFor("a", 1.0, "tax", nil, 0.9),
		voteFor("b", 1.0, "tax", nil, 0.9),
	}

	result := Aggregate(votes, []order.Field{order.FieldTax}, DefaultAggregateConfig())
	fc := result[0]
	if fc.SelectedColumnID != "" {
		t.Errorf("expected no winner, got %q", fc.SelectedColumnID)
	}
	if !fc.RequiresHumanInput {
		t.Error("all-null field must require human input")
	}
}

func TestAggregate_AmbiguityMarginFlagsReview(t *testing.T) {
	// Two candidates 0.05 apart with weight sum 3: margin 0.05 < 0.1*3.
	votes := []Vote{
		voteFor("a", 1.0, "sku", col("col_1"), 0.80),
		voteFor("b", 1.0, "sku", col("col_2"), 0.75),
		voteFor("c", 1.0, "sku", nil, 0.5),
	}

	result := Aggregate(votes, []order.Field{order.FieldSKU}, DefaultAggregateConfig())
	if !result[0].RequiresHumanInput {
		t.Error("winner within the ambiguity margin must require human input")
	}
}

func TestAggregate_Unanimous(t *testing.T) {
	votes := []Vote{
		voteFor("a", 1.0, "sku", col("col_1"), 0.9),
		voteFor("b", 1.0, "sku", col("col_1"), 0.8),
		voteFor("c", 1.0, "sku", col("col_1"), 0.95),
	}

	result := Aggregate(votes, []order.Field{order.FieldSKU}, DefaultAggregateConfig())
	if result[0].Label != ConsensusUnanimous {
		t.Errorf("label %s, want unanimous", result[0].Label)
	}
	if result[0].RequiresHumanInput {
		t.Error("clean unanimous vote should not require human input")
	}
}

func TestNormalizeWeights_SumsToProviderCount(t *testing.T) {
	w := normalizeWeights(map[string]float64{"a": 2, "b": 1, "c": 1})
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum < 2.999 || sum > 3.001 {
		t.Errorf("normalized sum %v, want 3", sum)
	}
	if w["a"] <= w["b"] {
		t.Error("normalization must preserve relative order")
	}
}
