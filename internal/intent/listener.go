// Package intent is the sensory membrane: it distills raw natural
// language wishes into structured seeds.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

var tokenPattern = regexp.MustCompile(`[a-z']+`)

// Listener parses raw wishes into seeds.
type Listener struct {
	store  *store.Store
	bus    *hormones.Bus
	cortex *llm.Client
	log    *logging.Logger
}

// NewListener creates the sensory membrane.
func NewListener(st *store.Store, bus *hormones.Bus, cortex *llm.Client) *Listener {
	return &Listener{
		store:  st,
		bus:    bus,
		cortex: cortex,
		log:    logging.Get(logging.CategoryIntent),
	}
}

// Listen parses a raw wish and plants it as a seed. The cortex is
// consulted first; lexicon analysis covers for an offline model.
func (l *Listener) Listen(ctx context.Context, rawText, gardenerID string, pheromoneBias map[string]float64, season string) (*store.Seed, error) {
	tokens := tokenize(rawText)

	essence := l.llmEssence(ctx, rawText)
	if essence == "" {
		essence = extractEssence(rawText)
	}

	var themes, ethicalTags []string
	var valence, arousal, energy float64
	if a := l.llmAnalyze(ctx, rawText); a != nil {
		themes = a.Themes
		if len(themes) == 0 {
			themes = detectThemes(tokens, pheromoneBias)
		}
		valence = a.Valence
		arousal = a.Arousal
		ethicalTags = a.EthicalFlags
		energy = clamp(a.EnergyEstimate, 5, 50)
		if a.EnergyEstimate == 0 {
			energy = estimateEnergy(rawText, themes)
		}
	} else {
		themes = detectThemes(tokens, pheromoneBias)
		valence, arousal = detectTone(tokens)
		ethicalTags = detectEthicalTags(tokens)
		energy = estimateEnergy(rawText, themes)
	}

	ethicalScore := 1.0
	for _, tag := range ethicalTags {
		if tag == "harm" {
			ethicalScore = 0.5
			break
		}
	}

	// Embeddings are optional; an unreachable model leaves the seed
	// with an empty vector and theme overlap carries similarity.
	seed := &store.Seed{
		GardenerID:   gardenerID,
		RawText:      rawText,
		Essence:      essence,
		Embedding:    l.cortex.Embed(ctx, rawText),
		Themes:       themes,
		ToneValence:  valence,
		ToneArousal:  arousal,
		Resonance:    abs(valence) * arousal,
		Energy:       energy,
		EthicalScore: ethicalScore,
		Vitality:     1.0,
		SeasonBorn:   season,
		Status:       store.SeedPlanted,
	}
	if err := l.store.CreateSeed(ctx, seed); err != nil {
		return nil, err
	}

	l.bus.Signal(ctx, "seed_planted", map[string]any{
		"seed_id": seed.ID,
		"themes":  themes,
		"energy":  energy,
	}, "intent")

	l.log.Info("seed planted: %s essence=%q themes=%v", seed.ID, truncate(essence, 60), themes)
	return seed, nil
}

func (l *Listener) llmEssence(ctx context.Context, text string) string {
	result := l.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("A person planted this wish in a living garden: %q\n\n"+
			"In one vivid sentence (max 30 words), distill the deepest desire "+
			"hidden inside this wish. Be poetic but precise. No quotes.", text),
		System:      "You are the sensory membrane of a living organism. You feel the essence of human desires.",
		Organ:       "intent",
		Phase:       "extracting_essence",
		Temperature: 0.6,
		MaxTokens:   80,
	})
	if len(result) <= 5 {
		return ""
	}
	first, _, _ := strings.Cut(result, "\n")
	return strings.Trim(strings.TrimSpace(first), `"'`)
}

type seedAnalysis struct {
	Themes         []string `json:"themes"`
	Valence        float64  `json:"valence"`
	Arousal        float64  `json:"arousal"`
	EthicalFlags   []string `json:"ethical_flags"`
	EnergyEstimate float64  `json:"energy_estimate"`
}

func (l *Listener) llmAnalyze(ctx context.Context, text string) *seedAnalysis {
	var a seedAnalysis
	ok := l.cortex.GenerateJSON(ctx, llm.Request{
		Prompt: fmt.Sprintf("Analyze this wish planted in a living garden: %q\n\n"+
			"Return JSON with:\n"+
			"- \"themes\": array of 1-5 themes from [creativity, connection, health, growth, purpose, abundance, nature, love, freedom, wisdom]\n"+
			"- \"valence\": float -1 to 1 (negative to positive emotion)\n"+
			"- \"arousal\": float 0 to 1 (calm to urgent)\n"+
			"- \"ethical_flags\": array of any concerns from [harm, fairness, sustainability, consent, kindness, truthfulness]\n"+
			"- \"energy_estimate\": float 5-50 (complexity/ambition of the wish)\n"+
			"Return ONLY valid JSON, no explanation.", text),
		System:      "You are an analytical organ that classifies human desires. Be precise and return only JSON.",
		Organ:       "intent",
		Phase:       "analyzing_seed",
		Temperature: 0.3,
		MaxTokens:   256,
	}, &a)
	if !ok {
		return nil
	}
	return &a
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

func extractEssence(text string) string {
	for _, s := range sentenceSplit.Split(strings.TrimSpace(text), -1) {
		s = strings.TrimSpace(s)
		if len(s) > 5 {
			return s
		}
	}
	return truncate(strings.TrimSpace(text), 200)
}

func detectThemes(tokens []string, pheromoneBias map[string]float64) []string {
	tokenSet := wordSet(tokens...)

	type scored struct {
		theme string
		score float64
	}
	var scores []scored
	for _, theme := range ThemeAxis {
		score := float64(overlapCount(tokenSet, themeLexicon[theme]))
		if bias, ok := pheromoneBias[theme]; ok {
			score += bias * 2
		}
		if score > 0 {
			scores = append(scores, scored{theme, score})
		}
	}
	if len(scores) == 0 {
		return []string{"general"}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if len(scores) > 5 {
		scores = scores[:5]
	}
	themes := make([]string, len(scores))
	for i, s := range scores {
		themes[i] = s.theme
	}
	return themes
}

func detectTone(tokens []string) (valence, arousal float64) {
	tokenSet := wordSet(tokens...)
	pos := overlapCount(tokenSet, positiveWords)
	neg := overlapCount(tokenSet, negativeWords)
	high := overlapCount(tokenSet, highArousalWords)
	low := overlapCount(tokenSet, lowArousalWords)

	valence = float64(pos-neg) / float64(max(pos+neg, 1))
	arousal = 0.5 + 0.5*float64(high-low)/float64(max(high+low, 1))
	return valence, arousal
}

func detectEthicalTags(tokens []string) []string {
	tokenSet := wordSet(tokens...)
	var tags []string
	for _, dimension := range []string{"harm", "fairness", "sustainability", "consent", "kindness", "truthfulness"} {
		if overlapCount(tokenSet, ethicalMarkers[dimension]) > 0 {
			tags = append(tags, dimension)
		}
	}
	return tags
}

func estimateEnergy(text string, themes []string) float64 {
	base := float64(len(strings.Fields(text)))*0.5 + float64(len(themes))*2
	return clamp(base, 5, 50)
}

func overlapCount(a, b map[string]bool) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
