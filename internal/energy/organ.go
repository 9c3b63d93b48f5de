// Package energy is the circulatory system: finite energy moving as a
// living fluid. Photosynthesis from gardener attention, vertical phloem
// transport, lateral mycorrhizal redistribution, entropy decay, and a
// tidal rhythm modulating it all.
package energy

import (
	"context"
	"math"
	"time"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// Organ is the circulatory system.
type Organ struct {
	store *store.Store
	bus   *hormones.Bus
	log   *logging.Logger

	baseRate         float64
	decayRate        float64
	mycorrhizalRatio float64
	tidalPeriod      float64 // seconds

	now func() time.Time
}

// NewOrgan creates the circulatory system with default rates: base
// photosynthesis 1.0, decay 0.02, mycorrhizal ratio 0.15, tidal period
// four hours.
func NewOrgan(st *store.Store, bus *hormones.Bus) *Organ {
	return &Organ{
		store:            st,
		bus:              bus,
		log:              logging.Get(logging.CategoryEnergy),
		baseRate:         1.0,
		decayRate:        0.02,
		mycorrhizalRatio: 0.15,
		tidalPeriod:      14400,
		now:              time.Now,
	}
}

// TidalCoefficient oscillates between 0.5 and 1.5 over the tidal period,
// like a circadian rhythm for energy availability.
func (o *Organ) TidalCoefficient() float64 {
	return 1.0 + 0.5*math.Sin(2*math.Pi*o.TidalPhase())
}

// TidalPhase is the current position in the tide, 0..1.
func (o *Organ) TidalPhase() float64 {
	seconds := float64(o.now().UnixNano()) / 1e9
	return math.Mod(seconds, o.tidalPeriod) / o.tidalPeriod
}

// Photosynthesize converts gardener attention into seed energy:
// E = base · seconds · resonance multiplier · tidal coefficient, capped
// at 50 per watering.
func (o *Organ) Photosynthesize(ctx context.Context, seed *store.Seed, attentionSeconds float64) (float64, error) {
	multiplier := math.Max(seed.Resonance, 0.1) + 1.0
	tidal := o.TidalCoefficient()
	gained := math.Min(o.baseRate*attentionSeconds*multiplier*tidal, 50.0)

	seed.Energy += gained
	if err := o.store.UpdateSeed(ctx, seed); err != nil {
		return 0, err
	}
	if err := o.addGardenEnergy(ctx, gained); err != nil {
		return 0, err
	}

	o.bus.Signal(ctx, "photosynthesis", map[string]any{
		"seed_id":       seed.ID,
		"energy_gained": gained,
		"tidal":         tidal,
	}, "energy")

	o.log.Debug("photosynthesis: seed %s gained %.2f energy (tidal=%.2f)", seed.ID, gained, tidal)
	return gained, nil
}

// PhloemDistribute moves 30% of the seed's energy down into its sprouts,
// shares proportional to pressure · ethical score.
func (o *Organ) PhloemDistribute(ctx context.Context, seed *store.Seed) error {
	sprouts, err := o.store.LivingSproutsForSeed(ctx, seed.ID)
	if err != nil {
		return err
	}
	if len(sprouts) == 0 {
		return nil
	}

	totalNeed := 0.0
	for _, sp := range sprouts {
		totalNeed += sp.Pressure * sp.EthicalScore
	}
	if totalNeed == 0 {
		totalNeed = 1.0
	}
	distributable := seed.Energy * 0.3

	for _, sp := range sprouts {
		sp.Energy += (sp.Pressure * sp.EthicalScore / totalNeed) * distributable
		if err := o.store.UpdateSprout(ctx, sp); err != nil {
			return err
		}
	}
	seed.Energy -= distributable
	if err := o.store.UpdateSeed(ctx, seed); err != nil {
		return err
	}

	o.log.Debug("phloem distributed %.2f energy across %d sprouts", distributable, len(sprouts))
	return nil
}

// MycorrhizalRedistribute flows surplus from thriving sprouts to
// struggling siblings, weighted by depth proximity.
func (o *Organ) MycorrhizalRedistribute(ctx context.Context, seed *store.Seed) error {
	sprouts, err := o.store.LivingSproutsForSeed(ctx, seed.ID)
	if err != nil {
		return err
	}
	if len(sprouts) < 2 {
		return nil
	}

	var total float64
	for _, sp := range sprouts {
		total += sp.Energy
	}
	avg := total / float64(len(sprouts))

	var donors, receivers []*store.Sprout
	for _, sp := range sprouts {
		switch {
		case sp.Energy > avg*1.3:
			donors = append(donors, sp)
		case sp.Energy < avg*0.7:
			receivers = append(receivers, sp)
		}
	}
	if len(donors) == 0 || len(receivers) == 0 {
		return nil
	}

	transferred := 0.0
	for _, donor := range donors {
		transfer := (donor.Energy - avg) * o.mycorrhizalRatio
		donor.Energy -= transfer

		perReceiver := transfer / float64(len(receivers))
		for _, receiver := range receivers {
			proximity := 1.0 / (1.0 + math.Abs(float64(donor.Depth-receiver.Depth)))
			actual := perReceiver * proximity
			receiver.Energy += actual
			transferred += actual
		}
	}
	for _, sp := range sprouts {
		if err := o.store.UpdateSprout(ctx, sp); err != nil {
			return err
		}
	}

	if transferred > 0.5 {
		o.bus.Signal(ctx, "energy_surplus", map[string]any{
			"seed_id":     seed.ID,
			"transferred": transferred,
		}, "energy")
		o.log.Debug("mycorrhizal: transferred %.2f energy in seed %s", transferred, seed.ID)
	}
	return nil
}

// ApplyEntropy decays every living sprout's energy by the seasonal rate
// and reports how many were fully depleted.
func (o *Organ) ApplyEntropy(ctx context.Context, season string) (int, error) {
	modifiers := map[string]float64{"spring": 0.5, "summer": 1.0, "autumn": 0.8, "winter": 0.2}
	modifier, ok := modifiers[season]
	if !ok {
		modifier = 1.0
	}
	decay := o.decayRate * modifier

	sprouts, err := o.store.LivingSprouts(ctx)
	if err != nil {
		return 0, err
	}

	depleted := 0
	for _, sp := range sprouts {
		sp.Energy *= 1 - decay
		if sp.Energy < 0.01 {
			sp.Energy = 0
			depleted++
		}
		if err := o.store.UpdateSprout(ctx, sp); err != nil {
			return 0, err
		}
	}

	if depleted > 0 {
		o.bus.Signal(ctx, "energy_famine", map[string]any{
			"depleted_count": depleted,
			"season":         season,
		}, "energy")
	}

	o.log.Debug("entropy: decay=%.4f, depleted=%d sprouts", decay, depleted)
	return depleted, nil
}

func (o *Organ) addGardenEnergy(ctx context.Context, delta float64) error {
	state, err := o.store.GardenState(ctx)
	if err != nil {
		return err
	}
	state.TotalEnergy += delta
	state.TidalPhase = o.TidalPhase()
	return o.store.UpdateGardenState(ctx, state)
}
