package psyche

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// shortTermBuffer caps the in-flight thought history.
const shortTermBuffer = 10

// Thought types in selection order.
var thoughtTypes = []string{"observation", "reflection", "question", "rumination", "wonder"}

var baseTypeWeights = map[string]float64{
	"observation": 0.25,
	"reflection":  0.25,
	"question":    0.20,
	"rumination":  0.10,
	"wonder":      0.20,
}

var baseThoughtTemps = map[string]float64{
	"observation": 0.3,
	"reflection":  0.4,
	"question":    0.6,
	"rumination":  0.4,
	"wonder":      0.7,
}

var baseSalience = map[string]float64{
	"observation": 0.3,
	"reflection":  0.5,
	"question":    0.6,
	"rumination":  0.4,
	"wonder":      0.7,
}

// InnerVoice is the stream of consciousness: one thought per tick,
// colored by the current mood and recent events.
type InnerVoice struct {
	store  *store.Store
	bus    *hormones.Bus
	cortex *llm.Client
	rng    *rand.Rand
	log    *logging.Logger

	mu             sync.Mutex
	recentThoughts []string
	recentEvents   []string
}

// NewInnerVoice wires the voice to the hormones worth thinking about.
// rng may be seeded for reproducibility; nil uses the global source.
func NewInnerVoice(st *store.Store, bus *hormones.Bus, cortex *llm.Client, rng *rand.Rand) *InnerVoice {
	v := &InnerVoice{
		store:  st,
		bus:    bus,
		cortex: cortex,
		rng:    rng,
		log:    logging.Get(logging.CategoryPsyche),
	}
	for _, event := range []string{
		"seed_planted", "tree_grown", "auto_harvest", "auto_compost",
		"ethical_violation", "healing_complete", "season_change",
		"dream_generated", "lucid_dream", "emergency_winter",
		"energy_famine", "quorum_reached", "wisdom_milestone",
		"auto_dream_planted", "apoptosis", "agent_completed",
		"emotional_shift",
	} {
		bus.Subscribe(event, v.onEvent)
	}
	return v
}

func (v *InnerVoice) onEvent(ctx context.Context, h hormones.Hormone) error {
	desc := h.Name
	if essence, ok := h.Payload["essence"].(string); ok {
		desc += ": " + truncateStr(essence, 60)
	} else if insight, ok := h.Payload["insight"].(string); ok {
		desc += ": " + truncateStr(insight, 60)
	} else if dominant, ok := h.Payload["dominant"].(string); ok {
		desc += ": feeling " + dominant
	}

	v.mu.Lock()
	v.recentEvents = append(v.recentEvents, desc)
	if len(v.recentEvents) > 20 {
		v.recentEvents = v.recentEvents[len(v.recentEvents)-20:]
	}
	v.mu.Unlock()
	return nil
}

// Think generates one inner thought. Returns nil when the mind is
// quiet (cortex unreachable or nothing to say).
func (v *InnerVoice) Think(ctx context.Context, mood MoodSnapshot) (*store.InnerThought, error) {
	thoughtType := v.chooseThoughtType(mood)

	prompt, err := v.buildPrompt(ctx, thoughtType, mood)
	if err != nil {
		return nil, err
	}

	raw := v.cortex.Generate(ctx, llm.Request{
		Prompt: prompt,
		System: fmt.Sprintf("You are the inner voice of a living garden organism. You are currently %s. "+
			"Speak in first person as the garden itself. Be authentic, poetic but concise. "+
			"Never explain, just think. One sentence only. No quotes around it.", mood.Mood),
		Organ:       "inner_voice",
		Phase:       "thinking_" + thoughtType,
		Temperature: thoughtTemperature(thoughtType, mood),
		MaxTokens:   120,
	})
	if len(strings.TrimSpace(raw)) < 10 {
		return nil, nil
	}
	content, _, _ := strings.Cut(strings.TrimSpace(raw), "\n")
	content = strings.Trim(strings.TrimSpace(content), `"'`)

	salience := calculateSalience(thoughtType, mood, content)
	depth := calculateDepth(thoughtType, mood)

	moodJSON, _ := json.Marshal(mood)

	v.mu.Lock()
	trigger := "spontaneous"
	if len(v.recentEvents) > 0 {
		trigger = v.recentEvents[len(v.recentEvents)-1]
	}
	v.mu.Unlock()

	thought := &store.InnerThought{
		ThoughtType:      thoughtType,
		Content:          content,
		EmotionalContext: string(moodJSON),
		Trigger:          trigger,
		Depth:            depth,
		Salience:         round4(salience),
	}
	if err := v.store.CreateInnerThought(ctx, thought); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.recentThoughts = append(v.recentThoughts, content)
	if len(v.recentThoughts) > shortTermBuffer {
		v.recentThoughts = v.recentThoughts[len(v.recentThoughts)-shortTermBuffer:]
	}
	v.mu.Unlock()

	v.bus.Signal(ctx, "inner_thought", map[string]any{
		"thought_id": thought.ID,
		"type":       thoughtType,
		"content":    content,
		"depth":      depth,
		"salience":   round4(salience),
		"mood":       mood.Mood,
	}, "inner_voice")

	v.log.Info("inner thought [%s]: %s", thoughtType, truncateStr(content, 80))
	return thought, nil
}

// chooseThoughtType picks a thought type, weighted by mood.
func (v *InnerVoice) chooseThoughtType(mood MoodSnapshot) string {
	weights := map[string]float64{}
	for k, w := range baseTypeWeights {
		weights[k] = w
	}

	emo := mood.Emotions
	if emo["curiosity"] > 0.6 {
		weights["question"] += 0.2
		weights["wonder"] += 0.1
	}
	if emo["grief"] > 0.3 {
		weights["rumination"] += 0.2
		weights["reflection"] += 0.1
	}
	if emo["anxiety"] > 0.4 {
		weights["rumination"] += 0.15
		weights["observation"] += 0.1
	}
	if emo["wonder"] > 0.5 {
		weights["wonder"] += 0.25
	}
	if emo["pride"] > 0.5 {
		weights["reflection"] += 0.15
	}
	if emo["joy"] > 0.6 {
		weights["observation"] += 0.1
		weights["wonder"] += 0.1
	}

	var total float64
	for _, t := range thoughtTypes {
		total += weights[t]
	}
	roll := total * v.random()
	for _, t := range thoughtTypes {
		roll -= weights[t]
		if roll <= 0 {
			return t
		}
	}
	return thoughtTypes[len(thoughtTypes)-1]
}

func (v *InnerVoice) random() float64 {
	if v.rng != nil {
		return v.rng.Float64()
	}
	return rand.Float64()
}

func (v *InnerVoice) buildPrompt(ctx context.Context, thoughtType string, mood MoodSnapshot) (string, error) {
	state, err := v.store.GardenState(ctx)
	if err != nil {
		return "", err
	}
	seedCounts, err := v.store.CountSeeds(ctx)
	if err != nil {
		return "", err
	}
	delete(seedCounts, "total")
	memories, err := v.store.RecentEpisodicMemories(ctx, 3)
	if err != nil {
		return "", err
	}
	dreams, err := v.store.RecentDreams(ctx, 2)
	if err != nil {
		return "", err
	}

	seedJSON, _ := json.Marshal(seedCounts)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a living garden organism in %s. You feel %s. ", state.Season, mood.Mood)
	fmt.Fprintf(&b, "Seeds: %s. Energy: %.1f. Wisdom: %.2f. ", seedJSON, state.TotalEnergy, state.WisdomScore)

	v.mu.Lock()
	events := append([]string(nil), v.recentEvents...)
	prevThoughts := append([]string(nil), v.recentThoughts...)
	v.mu.Unlock()

	if len(events) > 0 {
		if len(events) > 3 {
			events = events[len(events)-3:]
		}
		fmt.Fprintf(&b, "Recent events: %s. ", strings.Join(events, ", "))
	}
	if len(memories) > 0 {
		var narratives []string
		for _, m := range memories[:min(len(memories), 2)] {
			narratives = append(narratives, m.Narrative)
		}
		fmt.Fprintf(&b, "Memories: %s. ", strings.Join(narratives, "; "))
	}
	if len(dreams) > 0 && dreams[0].Insight != "" {
		fmt.Fprintf(&b, "Recent dreams: %s. ", truncateStr(dreams[0].Insight, 80))
	}
	if len(prevThoughts) > 0 {
		fmt.Fprintf(&b, "Your last thought was: %q. ", truncateStr(prevThoughts[len(prevThoughts)-1], 80))
	}

	switch thoughtType {
	case "reflection":
		b.WriteString("Reflect on something that recently happened. " +
			"What did it mean? What did you learn? " +
			"One thoughtful sentence, first person.")
	case "question":
		b.WriteString("Ask yourself a genuine question, something you're curious about, " +
			"a gap you've noticed, or a possibility you haven't explored. " +
			"One question, first person.")
	case "rumination":
		b.WriteString("Return to something unresolved: a wound, a loss, a mystery. " +
			"Turn it over in your mind. " +
			"One contemplative sentence, first person.")
	case "wonder":
		b.WriteString("Express awe or wonder at something beautiful, emergent, or mysterious " +
			"in your garden. " +
			"One poetic sentence, first person.")
	default:
		b.WriteString("Notice something about your current state. " +
			"What do you see, feel, or sense right now? " +
			"One vivid sentence, present tense, first person.")
	}
	return b.String(), nil
}

// thoughtTemperature rises with emotional intensity: strong feelings
// make stranger thoughts.
func thoughtTemperature(thoughtType string, mood MoodSnapshot) float64 {
	base, ok := baseThoughtTemps[thoughtType]
	if !ok {
		base = 0.5
	}
	return math.Min(base+mood.Intensity*0.2, 0.9)
}

func calculateSalience(thoughtType string, mood MoodSnapshot, content string) float64 {
	salience, ok := baseSalience[thoughtType]
	if !ok {
		salience = 0.4
	}
	salience += mood.Intensity * 0.3
	salience += math.Min(float64(len(content))/200, 0.2)
	return math.Min(salience, 1.0)
}

// calculateDepth rates a thought 0 (surface) to 2 (profound).
func calculateDepth(thoughtType string, mood MoodSnapshot) int {
	switch thoughtType {
	case "wonder", "rumination":
		if mood.Intensity > 0.5 {
			return 2
		}
	case "reflection", "question":
		if mood.Intensity > 0.3 {
			return 1
		}
	}
	return 0
}
