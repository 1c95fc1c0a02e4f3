package committee

import (
	"math/rand"
	"sort"
)

// CommitteeSize is how many providers review each case.
const CommitteeSize = 3

// SelectProviders picks CommitteeSize providers from the pool, random within
// the diversity constraint that no two come from the same vendor family.
// Selection is fully reproducible from the seed, which the orchestrator
// stores in the case event log.
func SelectProviders(pool []Provider, seed int64) ([]Provider, error) {
	byFamily := map[string][]Provider{}
	for _, p := range pool {
		byFamily[p.Family()] = append(byFamily[p.Family()], p)
	}
	if len(byFamily) < CommitteeSize {
		return nil, &SelectionError{Need: CommitteeSize, Families: len(byFamily)}
	}

	// Deterministic iteration order before shuffling.
	families := make([]string, 0, len(byFamily))
	for f := range byFamily {
		families = append(families, f)
	}
	sort.Strings(families)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(families), func(i, j int) {
		families[i], families[j] = families[j], families[i]
	})

	selected := make([]Provider, 0, CommitteeSize)
	for _, f := range families[:CommitteeSize] {
		members := byFamily[f]
		sort.Slice(members, func(i, j int) bool { return members[i].Name() < members[j].Name() })
		selected = append(selected, members[rng.Intn(len(members))])
	}
	return selected, nil
}
