package healing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
	"w0rd/internal/store"
)

func newScarTissue(t *testing.T) (*ScarTissue, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	return NewScarTissue(s, bus), s, bus
}

func TestClassifySeverity(t *testing.T) {
	assert.Equal(t, store.SeverityMinor, classifySeverity("apoptosis", nil))

	assert.Equal(t, store.SeverityMinor,
		classifySeverity("ethical_violation", map[string]any{"violations": []string{"harm"}}))
	assert.Equal(t, store.SeverityModerate,
		classifySeverity("ethical_violation", map[string]any{"violations": []string{"harm", "consent"}}))
	assert.Equal(t, store.SeveritySevere,
		classifySeverity("ethical_violation", map[string]any{"violations": []string{"harm", "consent", "kindness"}}))

	assert.Equal(t, store.SeverityMinor,
		classifySeverity("energy_famine", map[string]any{"depleted_count": 2}))
	assert.Equal(t, store.SeverityModerate,
		classifySeverity("energy_famine", map[string]any{"depleted_count": 5}))
	assert.Equal(t, store.SeveritySevere,
		classifySeverity("energy_famine", map[string]any{"depleted_count": 10}))

	assert.Equal(t, store.SeverityMinor, classifySeverity("meteor_strike", nil))
}

func TestOnWound_EmitsCascadeChild(t *testing.T) {
	_, _, bus := newScarTissue(t)
	ctx := context.Background()

	var detected []hormones.Hormone
	bus.Subscribe("wound_detected", func(ctx context.Context, h hormones.Hormone) error {
		detected = append(detected, h)
		return nil
	})

	bus.Signal(ctx, "apoptosis", map[string]any{"sprout_id": "sp1"}, "fractal")

	require.Len(t, detected, 1)
	assert.Equal(t, "apoptosis", detected[0].Payload["source_hormone"])
	assert.Equal(t, 1, detected[0].CascadeDepth)
}

func TestTriageAndHeal_MinorWound(t *testing.T) {
	sc, s, bus := newScarTissue(t)
	ctx := context.Background()

	var completions []hormones.Hormone
	bus.Subscribe("healing_complete", func(ctx context.Context, h hormones.Hormone) error {
		completions = append(completions, h)
		return nil
	})

	wound, err := sc.TriageAndHeal(ctx, "apoptosis", map[string]any{"sprout_id": "sp1", "seed_id": "sd1"})
	require.NoError(t, err)
	assert.Equal(t, store.SeverityMinor, wound.Severity)
	assert.Equal(t, []string{"sp1", "sd1"}, wound.AffectedIDs)
	assert.Equal(t, 0.1, wound.AntifragilityGained)
	require.NotNil(t, wound.HealedAt)

	state, err := s.GardenState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, state.AntifragilityScore, 1e-9)
	require.Len(t, completions, 1)
}

func TestTriageAndHeal_ModerateWiltsSprout(t *testing.T) {
	sc, s, _ := newScarTissue(t)
	ctx := context.Background()

	seed := &store.Seed{RawText: "x", Energy: 5}
	require.NoError(t, s.CreateSeed(ctx, seed))
	sprout := &store.Sprout{SeedID: seed.ID, Status: store.SproutBudding}
	require.NoError(t, s.CreateSprout(ctx, sprout))

	wound, err := sc.TriageAndHeal(ctx, "ethical_violation", map[string]any{
		"sprout_id":  sprout.ID,
		"violations": []string{"harm", "consent"},
	})
	require.NoError(t, err)
	assert.Equal(t, store.SeverityModerate, wound.Severity)
	assert.Equal(t, 0.3, wound.AntifragilityGained)

	got, err := s.GetSprout(ctx, sprout.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SproutWilting, got.Status)
}

func TestTriageAndHeal_SevereQueuesEmergencyWinter(t *testing.T) {
	sc, _, bus := newScarTissue(t)
	ctx := context.Background()

	var winters []hormones.Hormone
	bus.Subscribe("emergency_winter", func(ctx context.Context, h hormones.Hormone) error {
		winters = append(winters, h)
		return nil
	})

	wound, err := sc.TriageAndHeal(ctx, "energy_famine", map[string]any{"depleted_count": 12})
	require.NoError(t, err)
	assert.Equal(t, store.SeveritySevere, wound.Severity)
	assert.Equal(t, 0.5, wound.AntifragilityGained)

	// Slow release: nothing until the queue is flushed.
	assert.Empty(t, winters)
	bus.FlushSlowRelease(ctx)
	require.Len(t, winters, 1)
	assert.Equal(t, "energy_famine", winters[0].Payload["reason"])
}
