package committee

import (
	"sort"

	"orderdesk-hq/callisto/pkg/order"
)

// AggregateConfig tunes the weighted consensus.
type AggregateConfig struct {
	// AmbiguityMargin is the winner-vs-runner-up distance, as a fraction of
	// the total weight, below which a field needs human review.
	// Default: 0.1.
	AmbiguityMargin float64

	// ConsensusFloor is the fraction of the total weight a winner must
	// reach to avoid the no_consensus label. Default: 0.5.
	ConsensusFloor float64
}

// DefaultAggregateConfig returns the default aggregation tuning.
func DefaultAggregateConfig() AggregateConfig {
	return AggregateConfig{
		AmbiguityMargin: 0.1,
		ConsensusFloor:  0.5,
	}
}

// Aggregate merges valid votes into per-field consensus. For each field,
// every candidate column accumulates Σ(vote confidence × provider weight)
// over the votes that chose it; null votes are recorded but never score.
// Aggregation is commutative: vote order cannot change the outcome.
func Aggregate(votes []Vote, fields []order.Field, cfg AggregateConfig) []FieldConsensus {
	weightSum := 0.0
	for _, v := range votes {
		weightSum += v.Weight
	}

	var result []FieldConsensus
	for _, field := range fields {
		fc := aggregateField(votes, field, weightSum, cfg)
		result = append(result, fc)
	}
	return result
}

func aggregateField(votes []Vote, field order.Field, weightSum float64, cfg AggregateConfig) FieldConsensus {
	type tally struct {
		score float64
		count int
	}
	scores := map[string]*tally{}
	nonNullVotes := 0
	validVotes := 0

	for _, v := range votes {
		validVotes++
		m := findMapping(v.Result, string(field))
		if m == nil || m.SelectedColumnID == nil {
			continue
		}
		nonNullVotes++
		t := scores[*m.SelectedColumnID]
		if t == nil {
			t = &tally{}
			scores[*m.SelectedColumnID] = t
		}
		t.score += m.Confidence * v.Weight
		t.count++
	}

	fc := FieldConsensus{Field: field, Label: ConsensusNone}
	if len(scores) == 0 {
		// All votes were null: no column wins, and that is itself a
		// unanimous outcome worth surfacing for review.
		fc.RequiresHumanInput = true
		return fc
	}

	// Deterministic winner pick: score desc, then column id asc.
	type candidate struct {
		id    string
		score float64
		count int
	}
	var ordered []candidate
	for id, t := range scores {
		ordered = append(ordered, candidate{id: id, score: t.score, count: t.count})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].id < ordered[j].id
	})

	winner := ordered[0]
	fc.SelectedColumnID = winner.id
	fc.Score = winner.score

	switch {
	case winner.count == validVotes && winner.count == nonNullVotes && validVotes > 0:
		fc.Label = ConsensusUnanimous
	case winner.count*2 > validVotes:
		fc.Label = ConsensusMajority
	default:
		fc.Label = ConsensusSplit
	}
	if winner.score < cfg.ConsensusFloor*weightSum {
		fc.Label = ConsensusNone
	}

	// Ambiguity margin check applies regardless of label.
	if len(ordered) > 1 {
		if winner.score-ordered[1].score < cfg.AmbiguityMargin*weightSum {
			fc.RequiresHumanInput = true
		}
	}
	if fc.Label == ConsensusNone || fc.Label == ConsensusSplit {
		fc.RequiresHumanInput = true
	}
	return fc
}

func findMapping(r *ProviderResult, field string) *Mapping {
	if r == nil {
		return nil
	}
	for i := range r.Mappings {
		if r.Mappings[i].Field == field {
			return &r.Mappings[i]
		}
	}
	return nil
}
