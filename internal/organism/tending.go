package organism

import (
	"context"
	"fmt"
	"math"

	"w0rd/internal/gardener"
	"w0rd/internal/store"
)

// Plant runs the full planting sequence: distill the wish, grow the
// fractal tree, pass every sprout through the immune system, and
// record the gardener's touch.
func (o *Organism) Plant(ctx context.Context, wish, gardenerID string) (*store.Seed, []*store.Sprout, error) {
	state, err := o.store.GardenState(ctx)
	if err != nil {
		return nil, nil, err
	}
	g, err := o.Gardeners.GetOrCreate(ctx, gardenerID)
	if err != nil {
		return nil, nil, err
	}

	seed, err := o.Listener.Listen(ctx, wish, g.ID, gardener.PheromoneBias(g), state.Season)
	if err != nil {
		return nil, nil, err
	}
	sprouts, err := o.Grower.Grow(ctx, seed)
	if err != nil {
		return nil, nil, err
	}
	for _, sprout := range sprouts {
		if _, err := o.Immune.EvaluateAndAct(ctx, sprout); err != nil {
			return nil, nil, err
		}
	}
	if err := o.Gardeners.RecordInteraction(ctx, g, seed.Themes); err != nil {
		return nil, nil, err
	}
	return seed, sprouts, nil
}

// Water adds attention energy to a seed and runs distribution.
func (o *Organism) Water(ctx context.Context, seedID string, attentionSeconds float64) (*store.Seed, error) {
	seed, err := o.store.GetSeed(ctx, seedID)
	if err != nil {
		return nil, err
	}
	if _, err := o.Energy.Photosynthesize(ctx, seed, attentionSeconds); err != nil {
		return nil, err
	}
	if err := o.Energy.PhloemDistribute(ctx, seed); err != nil {
		return nil, err
	}
	if err := o.Energy.MycorrhizalRedistribute(ctx, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// Harvest marks a seed fulfilled and pollinates its kin. Harvesting a
// harvested seed is a no-op.
func (o *Organism) Harvest(ctx context.Context, seedID string) (*store.Seed, error) {
	seed, err := o.store.GetSeed(ctx, seedID)
	if err != nil {
		return nil, err
	}
	if seed.Status == store.SeedHarvested {
		return seed, nil
	}
	seed.Status = store.SeedHarvested
	if err := o.store.UpdateSeed(ctx, seed); err != nil {
		return nil, err
	}
	if _, err := o.Mycelium.Pollinate(ctx, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// Compost gracefully retires a seed, memory preserved in the soil.
// Composting a composted seed is a no-op.
func (o *Organism) Compost(ctx context.Context, seedID string) (*store.Seed, error) {
	seed, err := o.store.GetSeed(ctx, seedID)
	if err != nil {
		return nil, err
	}
	if seed.IsComposted {
		return seed, nil
	}
	seed.Status = store.SeedComposted
	seed.IsComposted = true
	if err := o.store.UpdateSeed(ctx, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// Resurrect un-composts a seed back into the living garden.
func (o *Organism) Resurrect(ctx context.Context, seedID string) (*store.Seed, error) {
	seed, err := o.store.GetSeed(ctx, seedID)
	if err != nil {
		return nil, err
	}
	if !seed.IsComposted {
		return nil, fmt.Errorf("seed %s is not composted", seedID)
	}
	seed.Status = store.SeedPlanted
	seed.IsComposted = false
	if err := o.store.UpdateSeed(ctx, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// SoilRichness measures how fertile the compost layer has become.
type SoilRichness struct {
	Richness       float64 `json:"richness"`
	TotalComposted int     `json:"total_composted"`
	ThemeDiversity int     `json:"theme_diversity"`
	GardenAgeDays  float64 `json:"garden_age_days"`
}

// MeasureSoil computes richness from composted mass, theme diversity,
// and the garden's age.
func (o *Organism) MeasureSoil(ctx context.Context) (*SoilRichness, error) {
	counts, err := o.store.CountSeeds(ctx)
	if err != nil {
		return nil, err
	}
	composted := counts[store.SeedComposted]

	seeds, err := o.store.AllSeeds(ctx)
	if err != nil {
		return nil, err
	}
	themes := map[string]bool{}
	for _, seed := range seeds {
		for _, theme := range seed.Themes {
			themes[theme] = true
		}
	}

	state, err := o.store.GardenState(ctx)
	if err != nil {
		return nil, err
	}
	anchor := state.LastPulse
	if anchor == 0 {
		anchor = store.Now()
	}
	ageDays := (store.Now() - anchor) / 86400

	return &SoilRichness{
		Richness:       math.Round((float64(composted)*0.5+float64(len(themes))*1.0+ageDays*0.1)*100) / 100,
		TotalComposted: composted,
		ThemeDiversity: len(themes),
		GardenAgeDays:  math.Round(ageDays*100) / 100,
	}, nil
}
