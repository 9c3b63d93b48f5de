// Package mycelium is the underground intelligence: symbiotic linking of
// related seeds, cross-pollination of completed ones, quorum sensing for
// theme clusters, and nutrient sharing along synergy-weighted links.
package mycelium

import (
	"context"
	"math"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// QuorumThreshold is the minimum number of living seeds sharing a theme
// before quorum fires.
const QuorumThreshold = 3

// SimilarityThreshold is the minimum synergy for a symbiotic link.
const SimilarityThreshold = 0.4

// Network connects all seeds underground.
type Network struct {
	store *store.Store
	bus   *hormones.Bus
	log   *logging.Logger
}

// NewNetwork creates the mycelial network.
func NewNetwork(st *store.Store, bus *hormones.Bus) *Network {
	return &Network{store: st, bus: bus, log: logging.Get(logging.CategoryMycelium)}
}

// CosineSimilarity compares two equal-length vectors; mismatched or empty
// vectors score zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// ThemeOverlap is the Jaccard similarity of two theme sets.
func ThemeOverlap(themesA, themesB []string) float64 {
	if len(themesA) == 0 || len(themesB) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(themesA))
	for _, t := range themesA {
		setA[t] = true
	}
	setB := make(map[string]bool, len(themesB))
	for _, t := range themesB {
		setB[t] = true
	}
	intersection := 0
	union := len(setA)
	for t := range setB {
		if setA[t] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func classifyRelationship(synergy, energyA, energyB float64) string {
	switch {
	case synergy > 0.6:
		return store.RelMutualism
	case math.Abs(energyA-energyB) > math.Max(energyA, energyB)*0.5:
		return store.RelCommensalism
	case synergy < 0.1:
		return store.RelParasitism
	}
	return store.RelMutualism
}

// Synergy combines embedding similarity and theme overlap.
func Synergy(a, b *store.Seed) float64 {
	return 0.6*CosineSimilarity(a.Embedding, b.Embedding) + 0.4*ThemeOverlap(a.Themes, b.Themes)
}

// ScanAndLink examines every living seed pair and links the ones whose
// synergy crosses the threshold.
func (n *Network) ScanAndLink(ctx context.Context) ([]*store.SymbioticLink, error) {
	seeds, err := n.store.ActiveSeeds(ctx)
	if err != nil {
		return nil, err
	}
	if len(seeds) < 2 {
		return nil, nil
	}

	existing, err := n.store.Links(ctx)
	if err != nil {
		return nil, err
	}
	linked := make(map[[2]string]bool, len(existing)*2)
	for _, l := range existing {
		linked[[2]string{l.SeedAID, l.SeedBID}] = true
		linked[[2]string{l.SeedBID, l.SeedAID}] = true
	}

	var created []*store.SymbioticLink
	for i := 0; i < len(seeds); i++ {
		for j := i + 1; j < len(seeds); j++ {
			a, b := seeds[i], seeds[j]
			if linked[[2]string{a.ID, b.ID}] {
				continue
			}
			synergy := Synergy(a, b)
			if synergy < SimilarityThreshold {
				continue
			}
			link := &store.SymbioticLink{
				SeedAID:          a.ID,
				SeedBID:          b.ID,
				RelationshipType: classifyRelationship(synergy, a.Energy, b.Energy),
				SynergyScore:     synergy,
			}
			if err := n.store.CreateLink(ctx, link); err != nil {
				return nil, err
			}
			created = append(created, link)
			linked[[2]string{a.ID, b.ID}] = true
			linked[[2]string{b.ID, a.ID}] = true
		}
	}

	if len(created) > 0 {
		n.log.Info("mycelium formed %d new symbiotic links", len(created))
	}
	return created, nil
}

// Pollinate broadcasts a completed seed's themes as pollen. Living seeds
// with partial theme overlap absorb a small energy boost.
func (n *Network) Pollinate(ctx context.Context, completed *store.Seed) (int, error) {
	if len(completed.Themes) == 0 {
		return 0, nil
	}
	completedSet := make(map[string]bool, len(completed.Themes))
	for _, t := range completed.Themes {
		completedSet[t] = true
	}

	seeds, err := n.store.ActiveSeeds(ctx)
	if err != nil {
		return 0, err
	}

	pollinated := 0
	for _, seed := range seeds {
		if seed.ID == completed.ID || seed.Status == store.SeedHarvested {
			continue
		}
		overlap := 0
		for _, t := range seed.Themes {
			if completedSet[t] {
				overlap++
			}
		}
		if overlap == 0 || overlap >= len(completed.Themes) {
			continue
		}
		seed.Energy += 0.5 * float64(overlap) / float64(len(completed.Themes))
		if err := n.store.UpdateSeed(ctx, seed); err != nil {
			return 0, err
		}
		pollinated++
	}

	if pollinated > 0 {
		n.bus.Signal(ctx, "pollination", map[string]any{
			"source_seed_id":   completed.ID,
			"pollinated_count": pollinated,
		}, "symbiosis")
		n.log.Info("pollinated %d seeds from completed seed %s", pollinated, completed.ID)
	}
	return pollinated, nil
}

// CheckQuorum detects theme clusters at critical mass and signals each.
func (n *Network) CheckQuorum(ctx context.Context) ([]string, error) {
	seeds, err := n.store.ActiveSeeds(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	var order []string
	for _, seed := range seeds {
		for _, theme := range seed.Themes {
			if counts[theme] == 0 {
				order = append(order, theme)
			}
			counts[theme]++
		}
	}

	var quorum []string
	for _, theme := range order {
		if counts[theme] < QuorumThreshold {
			continue
		}
		quorum = append(quorum, theme)
		n.bus.Signal(ctx, "quorum_reached", map[string]any{
			"theme": theme,
			"count": counts[theme],
		}, "symbiosis")
		n.log.Info("quorum reached for theme %q (%d seeds)", theme, counts[theme])
	}
	return quorum, nil
}

// ShareNutrients flows surplus energy along links weighted by synergy.
// Returns total energy transferred.
func (n *Network) ShareNutrients(ctx context.Context) (float64, error) {
	links, err := n.store.Links(ctx)
	if err != nil {
		return 0, err
	}
	if len(links) == 0 {
		return 0, nil
	}

	seeds, err := n.store.ActiveSeeds(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*store.Seed, len(seeds))
	for _, s := range seeds {
		byID[s.ID] = s
	}

	total := 0.0
	for _, link := range links {
		a, b := byID[link.SeedAID], byID[link.SeedBID]
		if a == nil || b == nil {
			continue
		}
		var transfer float64
		switch {
		case a.Energy > b.Energy*1.5:
			transfer = (a.Energy - b.Energy) * 0.1 * link.SynergyScore
			a.Energy -= transfer
			b.Energy += transfer
		case b.Energy > a.Energy*1.5:
			transfer = (b.Energy - a.Energy) * 0.1 * link.SynergyScore
			b.Energy -= transfer
			a.Energy += transfer
		default:
			continue
		}
		link.NutrientFlow += transfer
		total += transfer
		if err := n.store.UpdateLink(ctx, link); err != nil {
			return 0, err
		}
	}
	for _, s := range seeds {
		if err := n.store.UpdateSeed(ctx, s); err != nil {
			return 0, err
		}
	}

	if total > 0 {
		n.log.Debug("mycelium transferred %.2f total energy via nutrient sharing", total)
	}
	return total, nil
}
