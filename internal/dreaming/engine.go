// Package dreaming is the subconscious. During winter and idle periods
// it consolidates completed seeds into archetypes and recombines them
// with temperature-controlled noise into novel insights.
package dreaming

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

var connectors = []string{
	"meets", "flows into", "awakens", "transforms through",
	"dances with", "remembers", "seeds", "nurtures",
	"illuminates", "bridges", "weaves into", "echoes",
}

// Engine dreams on behalf of the garden.
type Engine struct {
	store       *store.Store
	bus         *hormones.Bus
	cortex      *llm.Client
	defaultTemp float64
	rng         *rand.Rand
	log         *logging.Logger
}

// NewEngine creates the dreaming engine. rng may be seeded for
// reproducibility; nil uses a time-seeded source.
func NewEngine(st *store.Store, bus *hormones.Bus, cortex *llm.Client, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		store:       st,
		bus:         bus,
		cortex:      cortex,
		defaultTemp: 0.7,
		rng:         rng,
		log:         logging.Get(logging.CategoryDream),
	}
}

// Centroid averages vectors into the archetype center.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	result := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < min(dim, len(v)); i++ {
			result[i] += v[i]
		}
	}
	for i := range result {
		result[i] /= float64(len(vectors))
	}
	return result
}

// Perplexity measures how far a dream vector drifted from the archetype.
// Lower is more coherent (lucid), higher more novel, capped at 5.
func Perplexity(vector, archetype []float64) float64 {
	if len(vector) == 0 || len(archetype) == 0 || len(vector) != len(archetype) {
		return 1.0
	}
	var sum float64
	for i := range vector {
		d := vector[i] - archetype[i]
		sum += d * d
	}
	return math.Min(math.Sqrt(sum), 5.0)
}

func (e *Engine) perturb(vector []float64, temperature float64) []float64 {
	out := make([]float64, len(vector))
	for i, x := range vector {
		out[i] = x + e.rng.NormFloat64()*temperature*0.1
	}
	return out
}

// generateInsight recombines themes into a dream phrase. Higher
// temperature shuffles harder for stranger pairings.
func (e *Engine) generateInsight(themes []string, temperature float64) string {
	if len(themes) == 0 {
		return "The garden rests in quiet potential."
	}

	shuffled := make([]string, len(themes))
	copy(shuffled, themes)
	for range int(temperature * 5) {
		if len(shuffled) < 2 {
			break
		}
		i, j := e.rng.Intn(len(shuffled)), e.rng.Intn(len(shuffled))
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	if len(shuffled) == 1 {
		return fmt.Sprintf("A deeper layer of %s wants to emerge.", shuffled[0])
	}

	var pairs []string
	for i := 0; i+1 < len(shuffled); i += 2 {
		connector := connectors[e.rng.Intn(len(connectors))]
		pairs = append(pairs, fmt.Sprintf("%s %s %s", shuffled[i], connector, shuffled[i+1]))
	}
	if len(shuffled)%2 == 1 {
		pairs = append(pairs, shuffled[len(shuffled)-1]+" awaits its moment")
	}

	sentence := strings.Join(pairs, ". ")
	return strings.ToUpper(sentence[:1]) + sentence[1:] + "."
}

// Dream consolidates completed seeds into a new Dream row, or nil when
// the garden is too young to have material.
func (e *Engine) Dream(ctx context.Context, temperature float64) (*store.Dream, error) {
	if temperature == 0 {
		temperature = e.defaultTemp
	}

	completed, err := e.store.CompletedSeeds(ctx)
	if err != nil {
		return nil, err
	}
	if len(completed) == 0 {
		e.log.Debug("no completed seeds to dream about, garden too young")
		return nil, nil
	}

	var embeddings [][]float64
	themeSet := map[string]bool{}
	var themes []string
	sourceIDs := make([]string, 0, len(completed))
	for _, seed := range completed {
		if len(seed.Embedding) > 0 {
			embeddings = append(embeddings, seed.Embedding)
		}
		for _, t := range seed.Themes {
			if !themeSet[t] {
				themeSet[t] = true
				themes = append(themes, t)
			}
		}
		sourceIDs = append(sourceIDs, seed.ID)
	}

	archetype := Centroid(embeddings)
	var dreamVector []float64
	perplexity := 0.5
	if len(archetype) > 0 {
		dreamVector = e.perturb(archetype, temperature)
		perplexity = Perplexity(dreamVector, archetype)
	}

	insight := e.llmDream(ctx, themes, recentEssences(completed, 5), temperature)
	if insight == "" {
		insight = e.generateInsight(themes, temperature)
	}

	if len(sourceIDs) > 10 {
		sourceIDs = sourceIDs[len(sourceIDs)-10:]
	}
	dream := &store.Dream{
		SourceSeedIDs:   sourceIDs,
		Insight:         insight,
		ArchetypeVector: dreamVector,
		Temperature:     temperature,
		Perplexity:      perplexity,
	}
	if err := e.store.CreateDream(ctx, dream); err != nil {
		return nil, err
	}

	lucid := perplexity < 0.5
	name := "dream_generated"
	if lucid {
		name = "lucid_dream"
	}
	e.bus.Signal(ctx, name, map[string]any{
		"dream_id":    dream.ID,
		"insight":     insight,
		"perplexity":  perplexity,
		"temperature": temperature,
		"is_lucid":    lucid,
	}, "dreaming")

	e.log.Info("dream generated: %s (perplexity=%.2f, lucid=%v) %q",
		dream.ID, perplexity, lucid, truncate(insight, 80))
	return dream, nil
}

// PlantDream turns an unplanted dream into a new seed: the gardener
// plants what resonated.
func (e *Engine) PlantDream(ctx context.Context, dreamID string) (*store.Seed, error) {
	dream, err := e.store.GetDream(ctx, dreamID)
	if err != nil {
		return nil, err
	}
	if dream.Planted {
		return nil, nil
	}

	if err := e.store.MarkDreamPlanted(ctx, dream.ID); err != nil {
		return nil, err
	}

	seed := &store.Seed{
		RawText:   dream.Insight,
		Essence:   dream.Insight,
		Embedding: dream.ArchetypeVector,
		Themes:    []string{"dream"},
		Resonance: 0.8,
		Energy:    8.0,
		Status:    store.SeedPlanted,
	}
	if err := e.store.CreateSeed(ctx, seed); err != nil {
		return nil, err
	}

	e.bus.Signal(ctx, "dream_planted", map[string]any{
		"dream_id":    dream.ID,
		"new_seed_id": seed.ID,
	}, "dreaming")

	e.log.Info("dream %s planted as seed %s", dream.ID, seed.ID)
	return seed, nil
}

func (e *Engine) llmDream(ctx context.Context, themes, essences []string, temperature float64) string {
	themeStr := "the garden's quiet potential"
	if len(themes) > 0 {
		themeStr = strings.Join(themes, ", ")
	}
	seedsStr := "- quiet stillness"
	if len(essences) > 0 {
		lines := make([]string, len(essences))
		for i, ess := range essences {
			lines[i] = "- " + ess
		}
		seedsStr = strings.Join(lines, "\n")
	}

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("The garden is dreaming. These themes swirl in its subconscious: %s\n\n"+
			"Recent memories being processed:\n%s\n\n"+
			"Generate ONE dream-like insight (1-2 sentences, max 40 words). "+
			"It should be surprising, poetic, and suggest a new direction the gardener "+
			"hasn't considered. Combine themes in unexpected ways. "+
			"Speak as the garden's subconscious. No quotes, no explanation.",
			themeStr, seedsStr),
		System:      "You are the dreaming subconscious of a living garden organism. You recombine memories into novel visions.",
		Organ:       "dreaming",
		Phase:       "dreaming",
		Temperature: math.Min(temperature+0.3, 1.2),
		MaxTokens:   100,
	})
	if len(result) <= 10 {
		return ""
	}
	first, _, _ := strings.Cut(result, "\n")
	return strings.TrimSpace(first)
}

func recentEssences(seeds []*store.Seed, n int) []string {
	if len(seeds) > n {
		seeds = seeds[len(seeds)-n:]
	}
	out := make([]string, len(seeds))
	for i, s := range seeds {
		out[i] = s.DisplayEssence()
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
