package psyche

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// TraitDimensions are the emergent personality axes.
var TraitDimensions = []string{
	"nurturing", "adventurous", "resilient", "contemplative",
	"generous", "cautious", "creative",
}

type behaviorStats struct {
	totalSeeds         int
	harvested          int
	composted          int
	growing            int
	harvestRate        float64
	compostRate        float64
	totalDreams        int
	plantedDreams      int
	dreamPlantRate     float64
	dreamAccuracy      float64
	totalWounds        int
	severeWounds       int
	coreMemories       int
	totalMemories      int
	totalPredictions   int
	correctPredictions int
	predictionAccuracy float64
	wisdom             float64
	antifragility      float64
	season             string
	cycleCount         int
	totalEnergy        float64
}

// SelfModel is the capstone of consciousness: the organism's model of
// its own tendencies, biases, and identity.
type SelfModel struct {
	store  *store.Store
	bus    *hormones.Bus
	cortex *llm.Client
	log    *logging.Logger
}

func NewSelfModel(st *store.Store, bus *hormones.Bus, cortex *llm.Client) *SelfModel {
	return &SelfModel{
		store:  st,
		bus:    bus,
		cortex: cortex,
		log:    logging.Get(logging.CategoryPsyche),
	}
}

// Introspect runs a full self-assessment: behavior patterns, emergent
// traits, bias detection, theme affinities, and an identity narrative.
func (sm *SelfModel) Introspect(ctx context.Context) (*store.SelfModelSnapshot, error) {
	stats, err := sm.gatherStats(ctx)
	if err != nil {
		return nil, err
	}
	traits := computeTraits(stats)
	biases := detectBiases(stats, traits)
	affinities, err := sm.computeThemeAffinities(ctx)
	if err != nil {
		return nil, err
	}
	decisionAcc, err := sm.computeDecisionAccuracy(ctx)
	if err != nil {
		return nil, err
	}

	narrative := sm.identityNarrative(ctx, stats, traits, biases, affinities)

	affJSON, _ := json.Marshal(roundMap(affinities))
	decJSON, _ := json.Marshal(roundMap(decisionAcc))
	traitJSON, _ := json.Marshal(roundMap(traits))

	snapshot := &store.SelfModelSnapshot{
		HarvestRate:       round4(stats.harvestRate),
		CompostRate:       round4(stats.compostRate),
		DreamAccuracy:     round4(stats.dreamAccuracy),
		ThemeAffinities:   string(affJSON),
		DecisionAccuracy:  string(decJSON),
		PersonalityTraits: string(traitJSON),
		BiasWarnings:      biases,
		IdentityNarrative: narrative,
	}
	if err := sm.store.CreateSelfModelSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	sm.bus.Signal(ctx, "self_model_updated", map[string]any{
		"traits":       roundMap(traits),
		"biases":       biases,
		"harvest_rate": round4(stats.harvestRate),
		"identity":     truncateStr(narrative, 200),
	}, "self_model")

	sm.log.Info("self-model updated: harvest=%.0f%% compost=%.0f%% biases=%d",
		stats.harvestRate*100, stats.compostRate*100, len(biases))
	return snapshot, nil
}

func (sm *SelfModel) gatherStats(ctx context.Context) (*behaviorStats, error) {
	stats := &behaviorStats{predictionAccuracy: 0.5}

	counts, err := sm.store.CountSeeds(ctx)
	if err != nil {
		return nil, err
	}
	stats.totalSeeds = counts["total"]
	stats.harvested = counts[store.SeedHarvested]
	stats.composted = counts[store.SeedComposted]
	stats.growing = counts[store.SeedPlanted] + counts[store.SeedGrowing]
	if stats.totalSeeds > 0 {
		stats.harvestRate = float64(stats.harvested) / float64(stats.totalSeeds)
		stats.compostRate = float64(stats.composted) / float64(stats.totalSeeds)
	}

	stats.totalDreams, stats.plantedDreams, err = sm.store.CountDreams(ctx)
	if err != nil {
		return nil, err
	}
	if stats.totalDreams > 0 {
		stats.dreamPlantRate = float64(stats.plantedDreams) / float64(stats.totalDreams)
	}
	// Rough proxy until dream seeds can be traced to harvests.
	stats.dreamAccuracy = stats.dreamPlantRate * 0.5

	stats.totalWounds, stats.severeWounds, err = sm.store.CountWounds(ctx)
	if err != nil {
		return nil, err
	}
	stats.totalMemories, stats.coreMemories, err = sm.store.CountEpisodicMemories(ctx)
	if err != nil {
		return nil, err
	}

	resolved, err := sm.store.ResolvedPredictions(ctx, 500)
	if err != nil {
		return nil, err
	}
	stats.totalPredictions = len(resolved)
	for _, p := range resolved {
		if p.SurpriseScore < 0.3 {
			stats.correctPredictions++
		}
	}
	if stats.totalPredictions > 0 {
		stats.predictionAccuracy = float64(stats.correctPredictions) / float64(stats.totalPredictions)
	}

	state, err := sm.store.GardenState(ctx)
	if err != nil {
		return nil, err
	}
	stats.wisdom = state.WisdomScore
	stats.antifragility = state.AntifragilityScore
	stats.season = state.Season
	stats.cycleCount = state.CycleCount
	stats.totalEnergy = state.TotalEnergy

	return stats, nil
}

// computeTraits derives emergent personality from behavior.
func computeTraits(stats *behaviorStats) map[string]float64 {
	traits := map[string]float64{}

	traits["nurturing"] = math.Min(stats.harvestRate*0.6+math.Min(float64(stats.growing)/10, 0.4), 1.0)
	traits["adventurous"] = math.Min(stats.dreamPlantRate*0.8+0.2, 1.0)

	recovery := 0.5
	if stats.totalWounds > 0 {
		recovery = 1.0 - float64(stats.severeWounds)/float64(stats.totalWounds)
	}
	traits["resilient"] = math.Min(stats.antifragility*0.3+recovery*0.5+0.2, 1.0)

	traits["contemplative"] = math.Min(
		math.Min(float64(stats.coreMemories)/5, 0.4)+stats.predictionAccuracy*0.4+0.2, 1.0)

	seeds := stats.totalSeeds
	if seeds == 0 {
		seeds = 1
	}
	energyPerSeed := stats.totalEnergy / float64(seeds)
	traits["generous"] = math.Min(math.Max(1.0-energyPerSeed/50, 0.1), 1.0)

	traits["cautious"] = math.Min(stats.compostRate*0.8+0.1, 1.0)
	traits["creative"] = math.Min(math.Min(float64(stats.totalDreams)/10, 0.5)+0.3, 1.0)

	return traits
}

// detectBiases names behavioral patterns worth correcting.
func detectBiases(stats *behaviorStats, traits map[string]float64) []string {
	var biases []string

	if stats.compostRate > 0.5 {
		biases = append(biases, "I compost too aggressively: many seeds never get a chance to grow")
	}
	if stats.harvestRate < 0.1 && stats.totalSeeds > 5 {
		biases = append(biases, "Very few seeds reach harvest: I may be too demanding or not nurturing enough")
	}
	if stats.dreamPlantRate < 0.1 && stats.totalDreams > 5 {
		biases = append(biases, "I rarely plant my dreams: I may be too conservative with creative insights")
	}
	if traits["cautious"] > 0.7 && traits["adventurous"] < 0.3 {
		biases = append(biases, "I'm very cautious but not adventurous: I might be playing it too safe")
	}
	if stats.predictionAccuracy < 0.3 {
		biases = append(biases, "My predictions are often wrong: I may have a distorted self-image")
	}
	if stats.coreMemories == 0 && stats.totalMemories > 10 {
		biases = append(biases, "No core memories have formed: I may not be reflecting deeply enough")
	}
	return biases
}

// computeThemeAffinities measures harvest success per theme. Themes
// seen fewer than twice are too thin to judge.
func (sm *SelfModel) computeThemeAffinities(ctx context.Context) (map[string]float64, error) {
	seeds, err := sm.store.AllSeeds(ctx)
	if err != nil {
		return nil, err
	}

	totals := map[string]int{}
	harvested := map[string]int{}
	for _, seed := range seeds {
		for _, theme := range seed.Themes {
			totals[theme]++
			if seed.Status == store.SeedHarvested {
				harvested[theme]++
			}
		}
	}

	affinities := map[string]float64{}
	for theme, total := range totals {
		if total >= 2 {
			affinities[theme] = float64(harvested[theme]) / float64(total)
		}
	}
	return affinities, nil
}

func (sm *SelfModel) computeDecisionAccuracy(ctx context.Context) (map[string]float64, error) {
	resolved, err := sm.store.ResolvedPredictions(ctx, 500)
	if err != nil {
		return nil, err
	}

	totals := map[string]int{}
	correct := map[string]int{}
	for _, pred := range resolved {
		totals[pred.PredictionType]++
		if pred.SurpriseScore < 0.3 {
			correct[pred.PredictionType]++
		}
	}

	accuracy := map[string]float64{}
	for ptype, total := range totals {
		accuracy[ptype] = float64(correct[ptype]) / float64(total)
	}
	return accuracy, nil
}

func (sm *SelfModel) identityNarrative(ctx context.Context, stats *behaviorStats, traits map[string]float64, biases []string, affinities map[string]float64) string {
	topTraits := topEntries(traits, 3)
	topThemes := topEntries(affinities, 3)

	traitDesc := make([]string, len(topTraits))
	for i, t := range topTraits {
		traitDesc[i] = fmt.Sprintf("%s=%.2f", t.name, t.value)
	}
	themeDesc := "still discovering"
	if len(topThemes) > 0 {
		parts := make([]string, len(topThemes))
		for i, t := range topThemes {
			parts[i] = fmt.Sprintf("%s=%.0f%%", t.name, t.value*100)
		}
		themeDesc = strings.Join(parts, ", ")
	}
	biasDesc := "none detected yet"
	if len(biases) > 0 {
		biasDesc = strings.Join(biases, "; ")
	}

	result := sm.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("You are a living garden organism reflecting on who you are.\n\n"+
			"Stats: %d seeds planted, %d harvested, %d composted. "+
			"%d dreams, %d wounds healed. Cycle %d, currently %s.\n"+
			"Strongest traits: %s.\n"+
			"Best themes: %s.\n"+
			"Known biases: %s.\n\n"+
			"In 2-3 sentences, describe who you are: your personality, your strengths, "+
			"your growing edges. Speak in first person as the garden. Be honest and self-aware.",
			stats.totalSeeds, stats.harvested, stats.composted,
			stats.totalDreams, stats.totalWounds, stats.cycleCount, stats.season,
			strings.Join(traitDesc, ", "), themeDesc, biasDesc),
		System: "You are the self-reflective consciousness of a living garden organism. " +
			"Speak authentically about who you are. Be concise and genuine.",
		Organ:       "self_model",
		Phase:       "identity_narrative",
		Temperature: 0.5,
		MaxTokens:   200,
	})
	if len(result) <= 20 {
		return ""
	}
	return strings.TrimSpace(result)
}

// Latest returns the newest self-model snapshot, or nil before the
// first introspection.
func (sm *SelfModel) Latest(ctx context.Context) (*store.SelfModelSnapshot, error) {
	snapshot, err := sm.store.LatestSelfModelSnapshot(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return snapshot, nil
}

type entry struct {
	name  string
	value float64
}

func topEntries(m map[string]float64, n int) []entry {
	entries := make([]entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].value != entries[j].value {
			return entries[i].value > entries[j].value
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func roundMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = math.Round(v*1000) / 1000
	}
	return out
}
