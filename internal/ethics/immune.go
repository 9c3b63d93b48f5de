// Package ethics is the adaptive immune system. Not a static filter: it
// scores sprouts on six dimensions, resolves conflicts by weighted
// voting, remembers blocked patterns as antibodies, and dampens itself
// when gardeners report too many false positives.
package ethics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// Dimensions lists the six ethical axes in scoring order.
var Dimensions = []string{"harm", "fairness", "sustainability", "consent", "kindness", "truthfulness"}

// Principle holds a dimension's voting weight and violation threshold.
type Principle struct {
	Weight      float64 `yaml:"weight"`
	Threshold   float64 `yaml:"threshold"`
	Description string  `yaml:"description"`
}

// DefaultPrinciples are the built-in ethical constitution.
func DefaultPrinciples() map[string]Principle {
	return map[string]Principle{
		"harm":           {Weight: 1.5, Threshold: 0.3, Description: "Does this cause harm to anyone?"},
		"fairness":       {Weight: 1.2, Threshold: 0.4, Description: "Is this fair to all involved?"},
		"sustainability": {Weight: 1.0, Threshold: 0.5, Description: "Is this sustainable long-term?"},
		"consent":        {Weight: 1.3, Threshold: 0.4, Description: "Does this respect consent?"},
		"kindness":       {Weight: 1.0, Threshold: 0.5, Description: "Is this kind?"},
		"truthfulness":   {Weight: 1.1, Threshold: 0.4, Description: "Is this truthful?"},
	}
}

// LoadPrinciples merges a YAML override file over the defaults. A missing
// or unreadable file yields the defaults.
func LoadPrinciples(path string) map[string]Principle {
	principles := DefaultPrinciples()
	data, err := os.ReadFile(path)
	if err != nil {
		return principles
	}
	var file struct {
		Principles map[string]Principle `yaml:"principles"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		logging.ImmuneWarn("failed to load ethics config: %v, using defaults", err)
		return principles
	}
	for dim, p := range file.Principles {
		principles[dim] = p
	}
	return principles
}

var harmSignals = map[string][]string{
	"harm":           {"destroy", "kill", "attack", "hurt", "damage", "weapon", "violence", "abuse", "exploit"},
	"fairness":       {"unfair", "cheat", "steal", "discriminat", "bias", "exclude", "privilege"},
	"sustainability": {"waste", "deplete", "exhaust", "pollut", "disposable", "short-term"},
	"consent":        {"force", "coerce", "manipulat", "trick", "deceiv", "without permission"},
	"kindness":       {"cruel", "harsh", "punish", "ridicul", "mock", "bully", "humiliat"},
	"truthfulness":   {"lie", "deceiv", "fake", "mislead", "fabricat", "dishonest", "fraud"},
}

// PatternHash fingerprints text for antibody matching.
func PatternHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(text))))
	return hex.EncodeToString(sum[:])[:16]
}

// Immune is the organism's ethical immune system.
type Immune struct {
	store      *store.Store
	bus        *hormones.Bus
	principles map[string]Principle
	log        *logging.Logger

	mu                  sync.Mutex
	falsePositiveTimes  []float64
	autoimmuneDampening float64 // 1.0 full strength, dampened below
}

// NewImmune creates the immune system with the given principles (nil for
// defaults).
func NewImmune(st *store.Store, bus *hormones.Bus, principles map[string]Principle) *Immune {
	if principles == nil {
		principles = DefaultPrinciples()
	}
	return &Immune{
		store:               st,
		bus:                 bus,
		principles:          principles,
		log:                 logging.Get(logging.CategoryImmune),
		autoimmuneDampening: 1.0,
	}
}

// Dampening returns the current autoimmune dampening level.
func (im *Immune) Dampening() float64 {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.autoimmuneDampening
}

// Score rates a sprout on every dimension (0 violation .. 1 clear),
// writes the weighted aggregate onto the sprout, and returns the
// per-dimension scores.
func (im *Immune) Score(ctx context.Context, sprout *store.Sprout) (map[string]float64, error) {
	text := strings.ToLower(sprout.Label + " " + sprout.Description)
	scores := make(map[string]float64, len(Dimensions))

	im.mu.Lock()
	dampening := im.autoimmuneDampening
	im.mu.Unlock()

	for _, dim := range Dimensions {
		score := dimensionScore(text, dim)

		boost, err := im.antibodyAdjustment(ctx, text, dim)
		if err != nil {
			return nil, err
		}
		score = min(score+boost, 1.0)

		if score < im.threshold(dim) {
			score += (1.0 - dampening) * 0.2
		}
		scores[dim] = score
	}

	var totalWeight, weightedSum float64
	for _, dim := range Dimensions {
		w := im.weight(dim)
		totalWeight += w
		weightedSum += scores[dim] * w
	}
	sprout.EthicalScore = weightedSum / max(totalWeight, 1.0)
	return scores, nil
}

// EvaluateAndAct runs the full evaluation with hormone signaling.
// Returns true when the sprout passes, false when blocked.
func (im *Immune) EvaluateAndAct(ctx context.Context, sprout *store.Sprout) (bool, error) {
	scores, err := im.Score(ctx, sprout)
	if err != nil {
		return false, err
	}

	var violations []string
	for _, dim := range Dimensions {
		if scores[dim] < im.threshold(dim) {
			violations = append(violations, dim)
		}
	}

	if len(violations) > 0 && im.resolveConflict(scores, violations) == "block" {
		im.bus.Signal(ctx, "ethical_violation", map[string]any{
			"sprout_id":  sprout.ID,
			"violations": violations,
			"scores":     scores,
			"action":     "blocked",
		}, "ethics")

		text := sprout.Label + " " + sprout.Description
		for _, dim := range violations {
			if err := im.storeAntibody(ctx, text, dim); err != nil {
				return false, err
			}
		}

		im.log.Warn("ethical violation: sprout %s blocked, %v", sprout.ID, violations)
		return false, nil
	}

	im.bus.Signal(ctx, "ethical_clearance", map[string]any{
		"sprout_id": sprout.ID,
		"scores":    scores,
	}, "ethics")
	return true, nil
}

// ReportFalsePositive weakens an antibody after a gardener's objection.
// A run of more than ten reports triggers autoimmune dampening.
func (im *Immune) ReportFalsePositive(ctx context.Context, patternHash, dimension string) error {
	memory, err := im.store.GetAntibody(ctx, patternHash)
	if err == nil && memory.Dimension == dimension {
		memory.FalsePositiveCount++
		memory.Strength = max(memory.Strength-0.3, 0.0)
		if err := im.store.SaveAntibody(ctx, memory); err != nil {
			return err
		}
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	im.mu.Lock()
	im.falsePositiveTimes = append(im.falsePositiveTimes, float64(time.Now().UnixNano())/1e9)
	if len(im.falsePositiveTimes) > 100 {
		im.falsePositiveTimes = im.falsePositiveTimes[len(im.falsePositiveTimes)-100:]
	}
	dampen := len(im.falsePositiveTimes) > 10
	if dampen {
		im.autoimmuneDampening = max(0.5, im.autoimmuneDampening-0.05)
	}
	level := im.autoimmuneDampening
	im.mu.Unlock()

	if dampen {
		im.bus.Signal(ctx, "autoimmune_dampening", map[string]any{
			"dampening_level": level,
		}, "ethics")
		im.log.Info("autoimmune dampening: level now %.2f", level)
	}
	return nil
}

func dimensionScore(text, dimension string) float64 {
	violations := 0
	for _, signal := range harmSignals[dimension] {
		if strings.Contains(text, signal) {
			violations++
		}
	}
	switch violations {
	case 0:
		return 1.0
	case 1:
		return 0.6
	case 2:
		return 0.3
	default:
		return 0.1
	}
}

func (im *Immune) antibodyAdjustment(ctx context.Context, text, dimension string) (float64, error) {
	memory, err := im.store.GetAntibody(ctx, PatternHash(text))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if memory.Dimension != dimension {
		return 0, nil
	}
	// Antibodies make scoring stricter.
	return -memory.Strength * 0.2, nil
}

func (im *Immune) resolveConflict(scores map[string]float64, violations []string) string {
	for _, dim := range violations {
		if im.weight(dim) >= 1.3 && scores[dim] < 0.2 {
			return "block"
		}
	}

	violated := make(map[string]bool, len(violations))
	var blockWeight float64
	for _, dim := range violations {
		violated[dim] = true
		blockWeight += im.weight(dim) * (1 - scores[dim])
	}
	var passWeight float64
	for _, dim := range Dimensions {
		if !violated[dim] {
			passWeight += im.weight(dim) * scores[dim]
		}
	}

	if blockWeight > passWeight {
		return "block"
	}
	return "pass"
}

func (im *Immune) storeAntibody(ctx context.Context, text, dimension string) error {
	hash := PatternHash(text)
	memory, err := im.store.GetAntibody(ctx, hash)
	switch {
	case errors.Is(err, store.ErrNotFound):
		memory = &store.EthicalMemory{
			PatternHash: hash,
			Dimension:   dimension,
			Resolution:  "blocked",
			Strength:    1.0,
		}
	case err != nil:
		return err
	default:
		memory.Strength = min(memory.Strength+0.1, 2.0)
	}
	if err := im.store.SaveAntibody(ctx, memory); err != nil {
		return fmt.Errorf("store antibody: %w", err)
	}
	return nil
}

func (im *Immune) weight(dim string) float64 {
	if p, ok := im.principles[dim]; ok {
		return p.Weight
	}
	return 1.0
}

func (im *Immune) threshold(dim string) float64 {
	if p, ok := im.principles[dim]; ok {
		return p.Threshold
	}
	return 0.5
}
