// Package seasons is the organism's breath: four macro-seasons layered
// over the tidal micro-rhythm. Spring awakening, summer peak, autumn
// harvest, winter dormancy.
package seasons

import (
	"context"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// Order is the seasonal cycle.
var Order = []string{"spring", "summer", "autumn", "winter"}

// Behavior configures how the garden acts during a season.
type Behavior struct {
	GrowthBonus            float64 `json:"growth_bonus"`
	DecayModifier          float64 `json:"decay_modifier"`
	PhotosynthesisModifier float64 `json:"photosynthesis_modifier"`
	DreamingActive         bool    `json:"dreaming_active"`
	PollinationActive      bool    `json:"pollination_active"`
	Description            string  `json:"description"`
}

// Behaviors maps each season to its configuration.
var Behaviors = map[string]Behavior{
	"spring": {
		GrowthBonus:            1.3,
		DecayModifier:          0.5,
		PhotosynthesisModifier: 1.2,
		PollinationActive:      true,
		Description:            "Energy redistribution, dream-planting, new growth bonus",
	},
	"summer": {
		GrowthBonus:            1.0,
		DecayModifier:          1.0,
		PhotosynthesisModifier: 1.5,
		PollinationActive:      true,
		Description:            "Peak activity, maximum photosynthesis, pollination active",
	},
	"autumn": {
		GrowthBonus:            0.7,
		DecayModifier:          0.8,
		PhotosynthesisModifier: 0.8,
		Description:            "Declining branches flagged, energy reclamation, harvest bonus",
	},
	"winter": {
		GrowthBonus:            0.0,
		DecayModifier:          0.2,
		PhotosynthesisModifier: 0.3,
		DreamingActive:         true,
		Description:            "No new growth, dreaming active, memory consolidation",
	},
}

// BehaviorFor returns a season's behavior, defaulting to spring.
func BehaviorFor(season string) Behavior {
	if b, ok := Behaviors[season]; ok {
		return b
	}
	return Behaviors["spring"]
}

// Heartbeat turns the seasons.
type Heartbeat struct {
	store *store.Store
	bus   *hormones.Bus
	log   *logging.Logger
}

// NewHeartbeat creates the seasonal heartbeat and subscribes to
// emergency winter signals from the healing organ.
func NewHeartbeat(st *store.Store, bus *hormones.Bus) *Heartbeat {
	h := &Heartbeat{store: st, bus: bus, log: logging.Get(logging.CategorySeasons)}
	bus.Subscribe("emergency_winter", h.onEmergencyWinter)
	return h
}

// onEmergencyWinter acknowledges the healer's distress signal. The
// season itself keeps its natural rotation.
func (h *Heartbeat) onEmergencyWinter(ctx context.Context, hormone hormones.Hormone) error {
	reason, _ := hormone.Payload["reason"].(string)
	if reason == "" {
		reason = "unknown"
	}
	h.log.Warn("emergency winter triggered: %s", reason)
	return nil
}

// CurrentSeason reads the garden's season.
func (h *Heartbeat) CurrentSeason(ctx context.Context) (string, error) {
	state, err := h.store.GardenState(ctx)
	if err != nil {
		return "spring", err
	}
	return state.Season, nil
}

// TurnSeason advances to the next season, or forces one, applying the
// new season's effects and bumping the cycle count.
func (h *Heartbeat) TurnSeason(ctx context.Context, force string) (string, error) {
	state, err := h.store.GardenState(ctx)
	if err != nil {
		return "spring", err
	}
	old := state.Season

	next := ""
	if force != "" {
		for _, s := range Order {
			if s == force {
				next = force
				break
			}
		}
	}
	if next == "" {
		idx := 0
		for i, s := range Order {
			if s == old {
				idx = i
				break
			}
		}
		next = Order[(idx+1)%len(Order)]
	}

	state.Season = next
	state.CycleCount++
	if err := h.applySeasonEffects(ctx, state, next); err != nil {
		return old, err
	}
	if err := h.store.UpdateGardenState(ctx, state); err != nil {
		return old, err
	}

	h.bus.Signal(ctx, "season_change", map[string]any{
		"old_season": old,
		"new_season": next,
		"cycle":      state.CycleCount,
	}, "regeneration")

	h.log.Info("season turned: %s to %s (cycle %d)", old, next, state.CycleCount)
	return next, nil
}

func (h *Heartbeat) applySeasonEffects(ctx context.Context, state *store.GardenState, season string) error {
	switch season {
	case "spring":
		return h.springAwakening(ctx)
	case "autumn":
		return h.autumnHarvest(ctx)
	case "winter":
		state.Vitality = max(state.Vitality*0.9, 0.3)
		h.log.Info("winter dormancy: garden resting")
	}
	return nil
}

// springAwakening boosts every growing seed's energy and vitality.
func (h *Heartbeat) springAwakening(ctx context.Context) error {
	seeds, err := h.store.SeedsByStatus(ctx, store.SeedGrowing)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		seed.Energy *= 1.1
		seed.Vitality = min(seed.Vitality+0.1, 2.0)
		if err := h.store.UpdateSeed(ctx, seed); err != nil {
			return err
		}
	}
	h.log.Info("spring awakening: boosted %d growing seeds", len(seeds))
	return nil
}

// autumnHarvest flags starving budding sprouts as wilting.
func (h *Heartbeat) autumnHarvest(ctx context.Context) error {
	sprouts, err := h.store.LivingSprouts(ctx)
	if err != nil {
		return err
	}
	wilted := 0
	for _, sp := range sprouts {
		if sp.Status != store.SproutBudding || sp.Energy >= 0.5 {
			continue
		}
		sp.Status = store.SproutWilting
		if err := h.store.UpdateSprout(ctx, sp); err != nil {
			return err
		}
		wilted++
	}
	h.log.Info("autumn: flagged %d wilting sprouts", wilted)
	return nil
}
