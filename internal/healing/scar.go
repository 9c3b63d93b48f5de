// Package healing is the scar tissue: it listens for damage signals,
// triages wounds by severity, applies healing responses, and converts
// every healed wound into antifragility.
package healing

import (
	"context"
	"errors"
	"fmt"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// ScarTissue is the wound-response layer.
type ScarTissue struct {
	store *store.Store
	bus   *hormones.Bus
	log   *logging.Logger
}

// NewScarTissue creates the healing organ and subscribes it to every
// damage signal.
func NewScarTissue(st *store.Store, bus *hormones.Bus) *ScarTissue {
	sc := &ScarTissue{store: st, bus: bus, log: logging.Get(logging.CategoryHealing)}
	for _, name := range []string{"ethical_violation", "energy_famine", "apoptosis"} {
		bus.Subscribe(name, sc.onWound)
	}
	return sc
}

// onWound re-emits damage as a wound_detected cascade child so the tick
// loop can heal it with full context.
func (sc *ScarTissue) onWound(ctx context.Context, h hormones.Hormone) error {
	sc.bus.SignalFrom(ctx, "wound_detected", map[string]any{
		"source_hormone":   h.Name,
		"original_payload": h.Payload,
	}, "healing", h)
	return nil
}

// TriageAndHeal runs full wound processing: triage, heal, record scar.
func (sc *ScarTissue) TriageAndHeal(ctx context.Context, woundHormone string, payload map[string]any) (*store.WoundRecord, error) {
	severity := classifySeverity(woundHormone, payload)

	action, lesson, err := sc.applyHealing(ctx, severity, woundHormone, payload)
	if err != nil {
		return nil, err
	}

	gain := antifragilityGain(severity)
	now := store.Now()
	wound := &store.WoundRecord{
		WoundType:           woundHormone,
		Severity:            severity,
		SourceHormone:       woundHormone,
		AffectedIDs:         affectedIDs(payload),
		HealingAction:       action,
		ScarLesson:          lesson,
		AntifragilityGained: gain,
		HealedAt:            &now,
	}
	if err := sc.store.CreateWound(ctx, wound); err != nil {
		return nil, err
	}

	state, err := sc.store.GardenState(ctx)
	if err != nil {
		return nil, err
	}
	state.AntifragilityScore += gain
	if err := sc.store.UpdateGardenState(ctx, state); err != nil {
		return nil, err
	}

	sc.bus.Signal(ctx, "healing_complete", map[string]any{
		"wound_id":             wound.ID,
		"severity":             severity,
		"antifragility_gained": gain,
	}, "healing")

	sc.log.Info("healed %s wound (severity=%s, antifragility+%.2f)", woundHormone, severity, gain)
	return wound, nil
}

func classifySeverity(woundType string, payload map[string]any) string {
	switch woundType {
	case "apoptosis":
		return store.SeverityMinor
	case "ethical_violation":
		switch n := countOf(payload["violations"]); {
		case n >= 3:
			return store.SeveritySevere
		case n >= 2:
			return store.SeverityModerate
		}
		return store.SeverityMinor
	case "energy_famine":
		switch depleted := asInt(payload["depleted_count"]); {
		case depleted >= 10:
			return store.SeveritySevere
		case depleted >= 5:
			return store.SeverityModerate
		}
		return store.SeverityMinor
	}
	return store.SeverityMinor
}

func affectedIDs(payload map[string]any) []string {
	var ids []string
	for _, key := range []string{"sprout_id", "seed_id"} {
		if v, ok := payload[key].(string); ok && v != "" {
			ids = append(ids, v)
		}
	}
	return ids
}

func (sc *ScarTissue) applyHealing(ctx context.Context, severity, woundType string, payload map[string]any) (action, lesson string, err error) {
	switch severity {
	case store.SeverityMinor:
		action = "Redistributed energy from healthy neighbors; logged lesson"
		lesson = fmt.Sprintf("Minor %s: resilience through local redistribution", woundType)

	case store.SeverityModerate:
		action = "Pruned damaged branch; strengthened ethical antibodies; redistributed freed energy"
		lesson = fmt.Sprintf("Moderate %s: pruning creates space for healthier growth", woundType)

		if sproutID, ok := payload["sprout_id"].(string); ok && sproutID != "" {
			sprout, err := sc.store.GetSprout(ctx, sproutID)
			if err == nil {
				sprout.Status = store.SproutWilting
				if err := sc.store.UpdateSprout(ctx, sprout); err != nil {
					return "", "", err
				}
			} else if !errors.Is(err, store.ErrNotFound) {
				return "", "", err
			}
		}

	case store.SeveritySevere:
		action = "Triggered emergency winter; forced dormancy; consolidating for spring rebuild"
		lesson = fmt.Sprintf("Severe %s: emergency dormancy protects the whole organism", woundType)

		// Slow release: the forced winter lands on the next tick, after
		// the current wound batch is recorded.
		sc.bus.SignalSlow("emergency_winter", map[string]any{
			"reason":   woundType,
			"severity": severity,
		}, "healing")

	default:
		action = "Observed and logged"
		lesson = "Unknown wound type, observation recorded"
	}
	return action, lesson, nil
}

func antifragilityGain(severity string) float64 {
	switch severity {
	case store.SeverityMinor:
		return 0.1
	case store.SeverityModerate:
		return 0.3
	case store.SeveritySevere:
		return 0.5
	}
	return 0.05
}

func countOf(v any) int {
	switch list := v.(type) {
	case []string:
		return len(list)
	case []any:
		return len(list)
	}
	return 0
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
