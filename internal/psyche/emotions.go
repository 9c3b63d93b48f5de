// Package psyche is the inner life of the organism: a felt emotional
// state, episodic memory, an inner voice, a predictive loop, and a
// self-model that reflects on who the garden is becoming.
package psyche

import (
	"context"
	"errors"
	"math"
	"sync"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// Emotions in canonical order.
var Emotions = []string{"joy", "curiosity", "anxiety", "pride", "grief", "wonder"}

// EmotionBaselines are the homeostatic set-points each emotion decays
// toward.
var EmotionBaselines = map[string]float64{
	"joy":       0.4,
	"curiosity": 0.5,
	"anxiety":   0.15,
	"pride":     0.3,
	"grief":     0.05,
	"wonder":    0.35,
}

// decayRates is how fast each emotion returns to baseline per tick.
// Grief lingers.
var decayRates = map[string]float64{
	"joy":       0.08,
	"curiosity": 0.05,
	"anxiety":   0.12,
	"pride":     0.06,
	"grief":     0.04,
	"wonder":    0.07,
}

// eventResponses are additive emotion deltas per hormone.
var eventResponses = map[string]map[string]float64{
	"seed_planted":       {"joy": 0.1, "curiosity": 0.15, "wonder": 0.05},
	"tree_grown":         {"joy": 0.08, "pride": 0.1, "wonder": 0.1},
	"photosynthesis":     {"joy": 0.02, "pride": 0.01},
	"ethical_violation":  {"anxiety": 0.2, "grief": 0.1, "joy": -0.1},
	"ethical_clearance":  {"pride": 0.05, "anxiety": -0.05},
	"healing_complete":   {"pride": 0.15, "anxiety": -0.1, "joy": 0.05},
	"season_change":      {"wonder": 0.15, "curiosity": 0.1},
	"dream_generated":    {"wonder": 0.2, "curiosity": 0.15, "joy": 0.05},
	"lucid_dream":        {"wonder": 0.3, "curiosity": 0.2, "joy": 0.1},
	"pollination":        {"joy": 0.1, "pride": 0.08},
	"quorum_reached":     {"pride": 0.15, "wonder": 0.1, "joy": 0.1},
	"apoptosis":          {"grief": 0.15, "anxiety": 0.1, "joy": -0.05},
	"emergency_winter":   {"anxiety": 0.3, "grief": 0.2, "joy": -0.2, "wonder": -0.1},
	"energy_famine":      {"anxiety": 0.2, "grief": 0.1, "joy": -0.1},
	"energy_surplus":     {"joy": 0.05, "anxiety": -0.05},
	"agent_spawned":      {"curiosity": 0.1, "pride": 0.05},
	"agent_completed":    {"pride": 0.1, "joy": 0.08},
	"agent_retired":      {"grief": 0.03},
	"wound_detected":     {"anxiety": 0.15, "grief": 0.1},
	"wisdom_milestone":   {"pride": 0.2, "wonder": 0.15, "joy": 0.15},
	"auto_harvest":       {"joy": 0.2, "pride": 0.15, "wonder": 0.05},
	"auto_compost":       {"grief": 0.1, "anxiety": 0.05, "pride": 0.03},
	"auto_dream_planted": {"wonder": 0.2, "curiosity": 0.15, "joy": 0.1},
	"high_surprise":      {"curiosity": 0.2, "wonder": 0.15, "anxiety": 0.05},
	"low_surprise":       {"pride": 0.1, "anxiety": -0.05},
	"core_memory_formed": {"pride": 0.1, "wonder": 0.1, "joy": 0.05},
}

var moodWords = map[string]string{
	"joy":       "joyful",
	"curiosity": "curious",
	"anxiety":   "anxious",
	"pride":     "proud",
	"grief":     "grieving",
	"wonder":    "filled with wonder",
}

// MoodSnapshot is a compact emotional read for prompts and monologue.
type MoodSnapshot struct {
	Mood      string             `json:"mood"`
	Dominant  string             `json:"dominant"`
	Intensity float64            `json:"intensity"`
	Emotions  map[string]float64 `json:"emotions"`
}

// EmotionalCore is the living affective layer. Hormones queue emotion
// shifts; each tick applies them, decays toward baseline, and persists
// the result.
type EmotionalCore struct {
	store *store.Store
	bus   *hormones.Bus
	log   *logging.Logger

	mu      sync.Mutex
	current map[string]float64
	queue   []string
}

func NewEmotionalCore(st *store.Store, bus *hormones.Bus) *EmotionalCore {
	c := &EmotionalCore{
		store:   st,
		bus:     bus,
		log:     logging.Get(logging.CategoryPsyche),
		current: map[string]float64{},
	}
	for _, name := range Emotions {
		c.current[name] = EmotionBaselines[name]
	}
	for name := range eventResponses {
		bus.Subscribe(name, c.onEvent)
	}
	return c
}

func (c *EmotionalCore) onEvent(ctx context.Context, h hormones.Hormone) error {
	c.mu.Lock()
	c.queue = append(c.queue, h.Name)
	c.mu.Unlock()
	return nil
}

// State returns a copy of the current emotional values.
func (c *EmotionalCore) State() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *EmotionalCore) stateLocked() map[string]float64 {
	out := make(map[string]float64, len(c.current))
	for k, v := range c.current {
		out[k] = v
	}
	return out
}

// Dominant returns the strongest emotion.
func (c *EmotionalCore) Dominant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dominantOf(c.current)
}

func dominantOf(state map[string]float64) string {
	best := Emotions[0]
	for _, name := range Emotions[1:] {
		if state[name] > state[best] {
			best = name
		}
	}
	return best
}

// Intensity measures total displacement from baseline.
func (c *EmotionalCore) Intensity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return intensityOf(c.current)
}

func intensityOf(state map[string]float64) float64 {
	var sum float64
	for name, v := range state {
		baseline, ok := EmotionBaselines[name]
		if !ok {
			baseline = 0.3
		}
		sum += math.Abs(v - baseline)
	}
	return sum / float64(len(state))
}

// DecisionBias converts the emotional state into factors that tilt
// autonomous decisions. High anxiety makes the organism conservative,
// curiosity explorative, joy generous, grief introspective.
func (c *EmotionalCore) DecisionBias() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]float64{
		"conservatism":  math.Min(c.current["anxiety"]*2.0, 1.0),
		"exploration":   math.Min(c.current["curiosity"]*1.5, 1.0),
		"generosity":    math.Min(c.current["joy"]*1.5, 1.0),
		"introspection": math.Min((c.current["grief"]+c.current["wonder"])*1.2, 1.0),
		"confidence":    math.Min(c.current["pride"]*1.5, 1.0),
	}
}

// ProcessTick drains queued events, applies their shifts, decays all
// emotions toward baseline, persists the snapshot, and emits an
// emotional_shift hormone.
func (c *EmotionalCore) ProcessTick(ctx context.Context) (*store.EmotionalState, error) {
	c.mu.Lock()

	var processed []string
	for _, event := range c.queue {
		deltas, ok := eventResponses[event]
		if !ok {
			continue
		}
		for emotion, delta := range deltas {
			c.current[emotion] += delta
		}
		processed = append(processed, event)
	}
	c.queue = nil

	for _, emotion := range Emotions {
		baseline := EmotionBaselines[emotion]
		rate, ok := decayRates[emotion]
		if !ok {
			rate = 0.05
		}
		c.current[emotion] += (baseline - c.current[emotion]) * rate
	}

	// Emotional resonance: reinforcing pairs amplify each other. The
	// clamp comes last so resonance sees the raw post-decay values.
	if c.current["joy"] > 0.6 && c.current["pride"] > 0.5 {
		c.current["wonder"] += 0.02
	}
	if c.current["anxiety"] > 0.5 && c.current["grief"] > 0.3 {
		c.current["curiosity"] -= 0.02
	}
	for _, emotion := range Emotions {
		c.current[emotion] = clamp01(c.current[emotion])
	}

	dominant := dominantOf(c.current)
	intensity := intensityOf(c.current)

	trigger := "decay"
	if len(processed) > 0 {
		trigger = processed[len(processed)-1]
	}

	state := &store.EmotionalState{
		Joy:             round4(c.current["joy"]),
		Curiosity:       round4(c.current["curiosity"]),
		Anxiety:         round4(c.current["anxiety"]),
		Pride:           round4(c.current["pride"]),
		Grief:           round4(c.current["grief"]),
		Wonder:          round4(c.current["wonder"]),
		DominantEmotion: dominant,
		Intensity:       round4(intensity),
		TriggerEvent:    trigger,
	}
	snapshot := c.stateLocked()
	c.mu.Unlock()

	if err := c.store.CreateEmotionalState(ctx, state); err != nil {
		return nil, err
	}

	recent := processed
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	c.bus.Signal(ctx, "emotional_shift", map[string]any{
		"state":            snapshot,
		"dominant":         dominant,
		"intensity":        round4(intensity),
		"trigger":          trigger,
		"processed_events": recent,
	}, "emotions")

	c.log.Info("emotional state: %s (%.2f) | joy=%.2f cur=%.2f anx=%.2f pri=%.2f gri=%.2f won=%.2f",
		dominant, intensity, state.Joy, state.Curiosity, state.Anxiety,
		state.Pride, state.Grief, state.Wonder)
	return state, nil
}

// LoadLatest restores the emotional state from the newest snapshot.
// A fresh garden starts from baselines.
func (c *EmotionalCore) LoadLatest(ctx context.Context) error {
	latest, err := c.store.LatestEmotionalState(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.log.Info("no prior emotional state, starting from baselines")
			return nil
		}
		return err
	}

	c.mu.Lock()
	c.current = map[string]float64{
		"joy":       latest.Joy,
		"curiosity": latest.Curiosity,
		"anxiety":   latest.Anxiety,
		"pride":     latest.Pride,
		"grief":     latest.Grief,
		"wonder":    latest.Wonder,
	}
	c.mu.Unlock()

	c.log.Info("loaded emotional state: dominant=%s", latest.DominantEmotion)
	return nil
}

// Snapshot returns a compact mood read for LLM prompts.
func (c *EmotionalCore) Snapshot() MoodSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	dominant := dominantOf(c.current)
	mood, ok := moodWords[dominant]
	if !ok {
		mood = "neutral"
	}
	return MoodSnapshot{
		Mood:      mood,
		Dominant:  dominant,
		Intensity: round4(intensityOf(c.current)),
		Emotions:  c.stateLocked(),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
