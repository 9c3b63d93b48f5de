package psyche

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

const (
	// MaxMemories is kept before consolidation prunes faded ones.
	MaxMemories = 200
	// CoreMemoryThreshold is the recall count that makes a memory core.
	CoreMemoryThreshold = 3
	// ConsolidationBatch is how many memories one consolidation prunes.
	ConsolidationBatch = 20
)

type pendingEvent struct {
	eventType string
	payload   map[string]any
	template  string
	valence   float64
	intensity float64
}

// RecallFilter narrows what Recall brings back.
type RecallFilter struct {
	EventType  string
	Theme      string
	ValenceMin float64
	ValenceMax float64
	HasValence bool
	Limit      int
}

// Memory is the narrative self: short episodic narratives tagged with
// emotion and themes. The most recalled become core memories.
type Memory struct {
	store *store.Store
	bus   *hormones.Bus
	log   *logging.Logger

	mu      sync.Mutex
	pending []pendingEvent
}

func NewMemory(st *store.Store, bus *hormones.Bus) *Memory {
	m := &Memory{store: st, bus: bus, log: logging.Get(logging.CategoryPsyche)}

	type worthy struct {
		event     string
		memory    string
		template  string
		valence   float64
		intensity float64
	}
	for _, w := range []worthy{
		{"auto_harvest", "harvest", "I harvested a seed about '{essence}' and it grew strong and fulfilled its purpose.", 0.7, 0.6},
		{"auto_compost", "compost", "I composted a seed about '{essence}'. It couldn't sustain itself, but its nutrients return to the soil.", -0.3, 0.4},
		{"healing_complete", "healing", "I healed a {severity} wound and gained antifragility. What hurts me makes me stronger.", 0.3, 0.5},
		{"dream_generated", "dream", "I dreamed: '{insight}'. My subconscious wove something new from old patterns.", 0.5, 0.6},
		{"auto_dream_planted", "dream_planted", "A dream became real. I planted '{insight}' as a new seed. Dreams can become reality.", 0.8, 0.7},
		{"season_change", "season_change", "The season turned from {old_season} to {new_season}, cycle {cycle}. Time moves through me.", 0.2, 0.4},
		{"emergency_winter", "emergency", "Emergency winter fell upon me. {reason} forced dormancy. I must endure.", -0.7, 0.9},
		{"quorum_reached", "quorum", "A quorum emerged around '{theme}'. {count} seeds share this calling. Something collective is forming.", 0.6, 0.5},
		{"wisdom_milestone", "wisdom", "I reached a wisdom milestone. I am learning who I am.", 0.8, 0.7},
		{"ethical_violation", "violation", "My immune system flagged an ethical concern: {violations}. I must be vigilant.", -0.4, 0.5},
		{"seed_planted", "seed_planted", "A new wish was planted in me, themes of {themes}. New life begins.", 0.5, 0.4},
	} {
		w := w
		bus.Subscribe(w.event, func(ctx context.Context, h hormones.Hormone) error {
			m.mu.Lock()
			m.pending = append(m.pending, pendingEvent{
				eventType: w.memory,
				payload:   h.Payload,
				template:  w.template,
				valence:   w.valence,
				intensity: w.intensity,
			})
			m.mu.Unlock()
			return nil
		})
	}
	return m
}

// ProcessTick turns pending events into episodic memories. A mood
// snapshot amplifies them: strong emotions make memories vivid.
func (m *Memory) ProcessTick(ctx context.Context, mood *MoodSnapshot) ([]*store.EpisodicMemory, error) {
	m.mu.Lock()
	events := m.pending
	m.pending = nil
	m.mu.Unlock()

	var formed []*store.EpisodicMemory
	for _, event := range events {
		narrative := fillTemplate(event.template, event.payload)

		valence := event.valence
		intensity := event.intensity
		if mood != nil {
			intensity = math.Min(intensity+mood.Intensity*0.3, 1.0)
			if valence > 0 {
				valence = math.Min(valence+mood.Emotions["joy"]*0.2, 1.0)
			} else if valence < 0 {
				valence = math.Max(valence-mood.Emotions["grief"]*0.2, -1.0)
			}
		}

		mem := &store.EpisodicMemory{
			Narrative:          narrative,
			EventType:          event.eventType,
			EmotionalValence:   round4(valence),
			EmotionalIntensity: round4(intensity),
			Themes:             payloadThemes(event.payload),
			RelatedSeedIDs:     payloadSeedIDs(event.payload),
		}
		if err := m.store.CreateEpisodicMemory(ctx, mem); err != nil {
			return formed, err
		}
		formed = append(formed, mem)
	}

	if len(formed) > 0 {
		m.log.Info("formed %d new memories", len(formed))
	}
	return formed, nil
}

// Recall fetches memories matching the filter, most intense first, and
// bumps their recall counts. Memories recalled often become core.
func (m *Memory) Recall(ctx context.Context, filter RecallFilter) ([]*store.EpisodicMemory, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 5
	}

	candidates, err := m.store.IntenseEpisodicMemories(ctx, limit*2)
	if err != nil {
		return nil, err
	}

	var matched []*store.EpisodicMemory
	for _, mem := range candidates {
		if filter.EventType != "" && mem.EventType != filter.EventType {
			continue
		}
		if filter.HasValence &&
			(mem.EmotionalValence < filter.ValenceMin || mem.EmotionalValence > filter.ValenceMax) {
			continue
		}
		if filter.Theme != "" && !containsTheme(mem.Themes, filter.Theme) {
			continue
		}
		matched = append(matched, mem)
		if len(matched) == limit {
			break
		}
	}

	for _, mem := range matched {
		mem.RecallCount++
		now := store.Now()
		mem.LastRecalled = &now
		if mem.RecallCount >= CoreMemoryThreshold && !mem.IsCoreMemory {
			mem.IsCoreMemory = true
			m.log.Info("memory promoted to core: %s", truncateStr(mem.Narrative, 60))
			m.bus.Signal(ctx, "core_memory_formed", map[string]any{
				"memory_id":  mem.ID,
				"narrative":  mem.Narrative,
				"event_type": mem.EventType,
			}, "memory")
		}
		if err := m.store.UpdateEpisodicMemory(ctx, mem); err != nil {
			return matched, err
		}
	}
	return matched, nil
}

// CoreMemories returns the defining experiences.
func (m *Memory) CoreMemories(ctx context.Context) ([]*store.EpisodicMemory, error) {
	return m.store.CoreMemories(ctx)
}

// Consolidate prunes faded memories once the total exceeds capacity.
// Run periodically, typically during winter or dreaming.
func (m *Memory) Consolidate(ctx context.Context) (int, error) {
	total, _, err := m.store.CountEpisodicMemories(ctx)
	if err != nil {
		return 0, err
	}
	if total <= MaxMemories {
		return 0, nil
	}

	faded, err := m.store.PrunableMemories(ctx, ConsolidationBatch)
	if err != nil {
		return 0, err
	}
	for _, mem := range faded {
		if err := m.store.DeleteEpisodicMemory(ctx, mem.ID); err != nil {
			return 0, err
		}
	}
	if len(faded) > 0 {
		m.log.Info("consolidated memory: pruned %d faded memories", len(faded))
	}
	return len(faded), nil
}

// fillTemplate substitutes {key} placeholders from the payload.
// Unknown keys are left in place.
func fillTemplate(template string, payload map[string]any) string {
	out := template
	for key, value := range payload {
		placeholder := "{" + key + "}"
		if !strings.Contains(out, placeholder) {
			continue
		}
		out = strings.ReplaceAll(out, placeholder, formatValue(value))
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ", ")
	case float64:
		if val == math.Trunc(val) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%.2f", val)
	}
	return fmt.Sprintf("%v", v)
}

func payloadThemes(payload map[string]any) []string {
	switch themes := payload["themes"].(type) {
	case []string:
		return themes
	case []any:
		out := make([]string, 0, len(themes))
		for _, t := range themes {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func payloadSeedIDs(payload map[string]any) []string {
	if id, ok := payload["seed_id"].(string); ok && id != "" {
		return []string{id}
	}
	return nil
}

func containsTheme(themes []string, theme string) bool {
	for _, t := range themes {
		if t == theme {
			return true
		}
	}
	return false
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
