// Package fractal is the vascular tissue: it grows a seed into a living
// tree of sprouts using golden-ratio weighted branching. Depth is bounded
// by available energy, never by fiat.
package fractal

import (
	"context"
	"fmt"
	"math"
	"strings"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// Phi is the golden ratio, 1.6180339887...
var Phi = (1 + math.Sqrt(5)) / 2

// DepthLabels name each level's role in the hierarchy:
// why, what, how, do.
var DepthLabels = []string{"intention", "goal", "task", "action"}

// decompositionPatterns hold theme-aware growth templates, 4 levels of 2
// descriptions each.
var decompositionPatterns = map[string][][]string{
	"creativity": {
		{"Envision the creative spark", "Gather inspiration and materials"},
		{"Define the medium and form", "Sketch the first draft"},
		{"Refine and iterate", "Share with others for feedback"},
		{"Polish the final piece", "Release into the world"},
	},
	"connection": {
		{"Understand the longing for connection", "Identify who to connect with"},
		{"Reach out with vulnerability", "Create shared experiences"},
		{"Deepen through honest conversation", "Build rituals of togetherness"},
		{"Sustain through consistent presence", "Celebrate the bond"},
	},
	"health": {
		{"Listen to the body's signals", "Acknowledge what needs healing"},
		{"Research gentle approaches", "Choose one small daily practice"},
		{"Build the habit with compassion", "Track progress without judgment"},
		{"Integrate into lifestyle", "Share what works with others"},
	},
	"growth": {
		{"Recognize the desire to evolve", "Name what growth looks like"},
		{"Find a teacher or resource", "Take the first uncomfortable step"},
		{"Practice consistently", "Reflect on what's changing"},
		{"Teach what you've learned", "Set the next horizon"},
	},
	"general": {
		{"Clarify the true desire", "Feel into what matters most"},
		{"Break it into reachable pieces", "Identify the first step"},
		{"Take action with presence", "Adjust based on feedback"},
		{"Complete and celebrate", "Plant the next seed"},
	},
}

// Grower turns seeds into sprout trees.
type Grower struct {
	store    *store.Store
	bus      *hormones.Bus
	cortex   *llm.Client
	maxDepth int
	log      *logging.Logger
}

// NewGrower creates the vascular tissue. maxDepth defaults to 3.
func NewGrower(st *store.Store, bus *hormones.Bus, cortex *llm.Client) *Grower {
	return &Grower{
		store:    st,
		bus:      bus,
		cortex:   cortex,
		maxDepth: 3,
		log:      logging.Get(logging.CategoryGrowth),
	}
}

// PhiWeight distributes energy among siblings: each child gets
// parentEnergy / phi^birthOrder, so the firstborn gets the most.
func PhiWeight(birthOrder int, parentEnergy float64) float64 {
	return math.Max(parentEnergy/math.Pow(Phi, float64(birthOrder)), 0.1)
}

// PressureScore is the growth gradient: deeper nodes and later siblings
// carry more unmet need, pulling energy toward them.
func PressureScore(depth, siblingIndex, totalSiblings int) float64 {
	depthPressure := 1.0 / (1.0 + float64(depth)*0.3)
	positionPressure := float64(siblingIndex+1) / math.Max(float64(totalSiblings), 1)
	return depthPressure * (1 - 0.3*positionPressure)
}

func patternFor(themes []string) [][]string {
	for _, theme := range themes {
		if p, ok := decompositionPatterns[theme]; ok {
			return p
		}
	}
	return decompositionPatterns["general"]
}

// Grow builds a full fractal tree from a seed and marks it growing.
func (g *Grower) Grow(ctx context.Context, seed *store.Seed) ([]*store.Sprout, error) {
	themes := seed.Themes
	if len(themes) == 0 {
		themes = []string{"general"}
	}

	pattern := g.llmDecompose(ctx, seed.DisplayEssence(), themes)
	if pattern == nil {
		pattern = patternFor(themes)
	}

	var all []*store.Sprout
	parents := []*store.Sprout{nil}
	parentEnergies := []float64{seed.Energy}

	levels := min(g.maxDepth+1, len(pattern))
	for depth := 0; depth < levels; depth++ {
		descriptions := pattern[depth]
		var nextParents []*store.Sprout
		var nextEnergies []float64

		for pi, parent := range parents {
			// Branching at depth d costs phi^d; starved parents stop here.
			if parentEnergies[pi] < math.Pow(Phi, float64(depth)) {
				continue
			}
			for si, desc := range descriptions {
				childEnergy := PhiWeight(si, parentEnergies[pi]/float64(len(descriptions)))

				label := "sprout"
				if depth < len(DepthLabels) {
					label = DepthLabels[depth]
				}
				sprout := &store.Sprout{
					SeedID:       seed.ID,
					Depth:        depth,
					Label:        fmt.Sprintf("%s_%d_%d", label, depth, si),
					Description:  desc,
					Energy:       childEnergy,
					EthicalScore: seed.EthicalScore,
					Pressure:     PressureScore(depth, si, len(descriptions)),
					Resonance:    seed.Resonance,
					Status:       store.SproutBudding,
				}
				if parent != nil {
					sprout.ParentID = parent.ID
				}
				if err := g.store.CreateSprout(ctx, sprout); err != nil {
					return nil, err
				}
				all = append(all, sprout)
				nextParents = append(nextParents, sprout)
				nextEnergies = append(nextEnergies, childEnergy)
			}
		}

		parents = nextParents
		parentEnergies = nextEnergies
		if len(parents) == 0 {
			break
		}
	}

	seed.Status = store.SeedGrowing
	if err := g.store.UpdateSeed(ctx, seed); err != nil {
		return nil, err
	}

	maxDepth := 0
	for _, sp := range all {
		if sp.Depth > maxDepth {
			maxDepth = sp.Depth
		}
	}
	g.bus.Signal(ctx, "tree_grown", map[string]any{
		"seed_id":           seed.ID,
		"sprout_count":      len(all),
		"max_depth_reached": maxDepth,
	}, "fractal")

	g.log.Info("grew %d sprouts for seed %s (max depth %d)", len(all), seed.ID, maxDepth)
	return all, nil
}

// TriggerApoptosis composts a sprout: programmed cell death.
func (g *Grower) TriggerApoptosis(ctx context.Context, sprout *store.Sprout, reason string) error {
	if reason == "" {
		reason = "energy_depleted"
	}
	now := store.Now()
	sprout.Status = store.SproutComposted
	sprout.IsComposted = true
	sprout.ApoptosisAt = &now
	if err := g.store.UpdateSprout(ctx, sprout); err != nil {
		return err
	}

	g.bus.Signal(ctx, "apoptosis", map[string]any{
		"sprout_id": sprout.ID,
		"seed_id":   sprout.SeedID,
		"reason":    reason,
	}, "fractal")

	g.log.Info("apoptosis: sprout %s (%s), %s", sprout.ID, sprout.Label, reason)
	return nil
}

func (g *Grower) llmDecompose(ctx context.Context, essence string, themes []string) [][]string {
	var levels [][]string
	ok := g.cortex.GenerateJSON(ctx, llm.Request{
		Prompt: fmt.Sprintf("A wish has been planted: %q\n"+
			"Themes: %s\n\n"+
			"Decompose this into a fractal growth tree. Return JSON as an array of 4 arrays:\n"+
			"- Level 0: 2 core intentions (WHY — the deep motivations)\n"+
			"- Level 1: 2 concrete goals (WHAT — measurable outcomes)\n"+
			"- Level 2: 2 practical tasks (HOW — specific steps)\n"+
			"- Level 3: 2 immediate actions (DO — things to start today)\n\n"+
			"Each item should be a vivid, specific sentence (8-15 words). "+
			"Make them deeply personal and actionable, not generic.\n"+
			"Return ONLY a JSON array of 4 arrays, no explanation.\n"+
			`Example: [["intention1", "intention2"], ["goal1", "goal2"], ["task1", "task2"], ["action1", "action2"]]`,
			essence, strings.Join(themes, ", ")),
		System:      "You are the vascular growth tissue of a living organism. You decompose dreams into living branches.",
		Organ:       "fractal",
		Phase:       "decomposing",
		Temperature: 0.5,
		MaxTokens:   512,
	}, &levels)
	if !ok || len(levels) < 2 {
		return nil
	}
	if len(levels) > 4 {
		levels = levels[:4]
	}
	for i, level := range levels {
		if len(level) == 0 {
			return nil
		}
		if len(level) > 4 {
			levels[i] = level[:4]
		}
	}
	return levels
}
