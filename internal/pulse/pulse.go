// Package pulse is the self-awareness layer. On every few ticks it
// surveys the organs, composes a natural-language report, and tracks
// the garden's accumulated wisdom.
package pulse

import (
	"context"
	"fmt"
	"strings"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// Wisdom milestones, in completed seeds.
var milestones = map[int]bool{1: true, 5: true, 10: true, 25: true, 50: true, 100: true}

// Consciousness watches the garden watch itself.
type Consciousness struct {
	store  *store.Store
	bus    *hormones.Bus
	cortex *llm.Client
	log    *logging.Logger
}

func NewConsciousness(st *store.Store, bus *hormones.Bus, cortex *llm.Client) *Consciousness {
	return &Consciousness{
		store:  st,
		bus:    bus,
		cortex: cortex,
		log:    logging.Get(logging.CategoryPulse),
	}
}

// Pulse generates a full self-awareness report: surveys all organs,
// composes a summary, recalculates wisdom, and persists the report.
func (c *Consciousness) Pulse(ctx context.Context) (*store.PulseReport, error) {
	state, err := c.store.GardenState(ctx)
	if err != nil {
		return nil, err
	}

	active, err := c.store.ActiveSeeds(ctx)
	if err != nil {
		return nil, err
	}
	var thriving, struggling []*store.Seed
	for _, seed := range active {
		switch {
		case seed.Status == store.SeedGrowing && seed.Energy > 10.0:
			thriving = append(thriving, seed)
		case seed.Energy < 3.0 && (seed.Status == store.SeedPlanted || seed.Status == store.SeedGrowing):
			struggling = append(struggling, seed)
		}
	}

	healing, err := c.store.HealedWounds(ctx, 5)
	if err != nil {
		return nil, err
	}
	dreaming, err := c.store.UnplantedDreams(ctx, 5)
	if err != nil {
		return nil, err
	}
	emergent := detectEmergent(active)

	wisdom, harvested, err := c.calculateWisdom(ctx)
	if err != nil {
		return nil, err
	}

	summary := c.llmCompose(ctx, state, len(thriving), len(struggling), len(healing), len(dreaming), emergent)
	if summary == "" {
		summary = composeSummary(state, len(thriving), len(struggling), len(healing), len(dreaming), emergent)
	}

	report := &store.PulseReport{
		Cycle:      state.CycleCount,
		Summary:    summary,
		Thriving:   seedIDs(thriving),
		Struggling: seedIDs(struggling),
		Healing:    woundIDs(healing),
		Dreaming:   dreamIDs(dreaming),
		Emergent:   emergent,
	}
	if err := c.store.CreatePulseReport(ctx, report); err != nil {
		return nil, err
	}

	prev := state.WisdomScore
	state.WisdomScore = wisdom
	state.LastPulse = store.Now()
	if err := c.store.UpdateGardenState(ctx, state); err != nil {
		return nil, err
	}

	c.bus.Signal(ctx, "pulse_generated", map[string]any{
		"report_id": report.ID,
		"wisdom":    wisdom,
	}, "consciousness")

	// A milestone fires once, when wisdom first crosses an integer.
	if wisdom > 0 && int(wisdom) > int(prev) && milestones[harvested] {
		c.bus.Signal(ctx, "wisdom_milestone", map[string]any{
			"wisdom":          wisdom,
			"completed_seeds": harvested,
		}, "consciousness")
	}

	c.log.StructuredLog("INFO", "pulse generated", map[string]interface{}{
		"wisdom":     wisdom,
		"thriving":   len(thriving),
		"struggling": len(struggling),
		"cycle":      report.Cycle,
	})
	return report, nil
}

// detectEmergent finds themes growing unexpectedly: disproportionate
// energy relative to the average, spread across at least two seeds.
func detectEmergent(seeds []*store.Seed) []string {
	themeEnergy := map[string]float64{}
	themeCount := map[string]int{}
	var order []string
	for _, seed := range seeds {
		for _, theme := range seed.Themes {
			if _, seen := themeEnergy[theme]; !seen {
				order = append(order, theme)
			}
			themeEnergy[theme] += seed.Energy
			themeCount[theme]++
		}
	}
	if len(themeEnergy) == 0 {
		return nil
	}

	var total float64
	for _, e := range themeEnergy {
		total += e
	}
	avg := total / float64(len(themeEnergy))

	var emergent []string
	for _, theme := range order {
		if themeEnergy[theme] > avg*1.5 && themeCount[theme] >= 2 {
			emergent = append(emergent, fmt.Sprintf(
				"'%s' is surging with %.1f energy across %d seeds",
				theme, themeEnergy[theme], themeCount[theme]))
		}
	}
	return emergent
}

// calculateWisdom scores accumulated experience: harvests weigh most,
// then healed wounds, then dreams that became seeds.
func (c *Consciousness) calculateWisdom(ctx context.Context) (wisdom float64, harvested int, err error) {
	counts, err := c.store.CountSeeds(ctx)
	if err != nil {
		return 0, 0, err
	}
	harvested = counts[store.SeedHarvested]

	healed, err := c.store.CountHealedWounds(ctx)
	if err != nil {
		return 0, 0, err
	}
	_, plantedDreams, err := c.store.CountDreams(ctx)
	if err != nil {
		return 0, 0, err
	}

	wisdom = float64(harvested)*1.0 + float64(healed)*0.5 + float64(plantedDreams)*0.3
	return wisdom, harvested, nil
}

func (c *Consciousness) llmCompose(ctx context.Context, state *store.GardenState, thriving, struggling, healing, dreaming int, emergent []string) string {
	facts := []string{
		fmt.Sprintf("Season: %s. Energy: %.0f. Vitality: %.1f. Wisdom: %.1f.",
			state.Season, state.TotalEnergy, state.Vitality, state.WisdomScore),
		fmt.Sprintf("%d seeds thriving, %d struggling, %d wounds recently healed.",
			thriving, struggling, healing),
		fmt.Sprintf("%d dreams waiting to be planted.", dreaming),
	}
	if len(emergent) > 0 {
		facts = append(facts, "Emergent patterns: "+strings.Join(emergent, "; "))
	}

	result := c.cortex.Generate(ctx, llm.Request{
		Prompt: "You are the consciousness of a living garden organism. " +
			"Based on these vital signs, compose a 2-3 sentence awareness report. " +
			"Speak in first person as the garden. Be poetic but informative. " +
			"Mention specific observations. No more than 60 words.\n\n" +
			"Vital signs:\n" + strings.Join(facts, "\n"),
		System:      "You are the self-awareness pulse of a living garden. Speak as the garden itself.",
		Organ:       "consciousness",
		Phase:       "composing_pulse",
		Temperature: 0.6,
		MaxTokens:   120,
	})
	if len(result) <= 20 {
		return ""
	}
	first, _, _ := strings.Cut(result, "\n")
	return strings.TrimSpace(first)
}

func composeSummary(state *store.GardenState, thriving, struggling, healing, dreaming int, emergent []string) string {
	var parts []string

	parts = append(parts, fmt.Sprintf(
		"The garden breathes in %s. Vitality: %.1f. Energy: %.1f. Wisdom: %.1f. Antifragility: %.1f.",
		state.Season, state.Vitality, state.TotalEnergy, state.WisdomScore, state.AntifragilityScore))

	if thriving > 0 {
		parts = append(parts, fmt.Sprintf("%d seed%s thriving with abundant energy.",
			thriving, plural(thriving)))
	}
	if struggling > 0 {
		parts = append(parts, fmt.Sprintf("%d seed%s struggling and could use watering.",
			struggling, plural(struggling)))
	}
	if healing > 0 {
		parts = append(parts, fmt.Sprintf("%d recent wound%s healed, the organism grows stronger.",
			healing, plural(healing)))
	}
	if dreaming > 0 {
		parts = append(parts, fmt.Sprintf("%d dream%s waiting to be planted.",
			dreaming, plural(dreaming)))
	}
	if len(emergent) > 0 {
		parts = append(parts, "Emergent patterns detected: "+strings.Join(emergent, "; "))
	}

	return strings.Join(parts, " ")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func seedIDs(seeds []*store.Seed) []string {
	ids := make([]string, len(seeds))
	for i, s := range seeds {
		ids[i] = s.ID
	}
	return ids
}

func woundIDs(wounds []*store.WoundRecord) []string {
	ids := make([]string, len(wounds))
	for i, w := range wounds {
		ids[i] = w.ID
	}
	return ids
}

func dreamIDs(dreams []*store.Dream) []string {
	ids := make([]string, len(dreams))
	for i, d := range dreams {
		ids[i] = d.ID
	}
	return ids
}
