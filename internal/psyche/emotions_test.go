package psyche

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
	"w0rd/internal/store"
)

func newCore(t *testing.T) (*EmotionalCore, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	return NewEmotionalCore(s, bus), s, bus
}

func TestProcessTick_AppliesEventDeltas(t *testing.T) {
	c, _, bus := newCore(t)
	ctx := context.Background()

	var shifts []hormones.Hormone
	bus.Subscribe("emotional_shift", func(ctx context.Context, h hormones.Hormone) error {
		shifts = append(shifts, h)
		return nil
	})

	bus.Signal(ctx, "auto_harvest", map[string]any{"essence": "x"}, "test")

	state, err := c.ProcessTick(ctx)
	require.NoError(t, err)

	// joy: 0.4 + 0.2, then one decay step toward baseline.
	assert.InDelta(t, 0.6+(0.4-0.6)*0.08, state.Joy, 1e-9)
	assert.InDelta(t, 0.45+(0.3-0.45)*0.06, state.Pride, 1e-9)
	assert.Equal(t, "auto_harvest", state.TriggerEvent)

	require.Len(t, shifts, 1)
	assert.Equal(t, "auto_harvest", shifts[0].Payload["trigger"])
}

func TestProcessTick_QuietTickDecays(t *testing.T) {
	c, _, _ := newCore(t)
	ctx := context.Background()

	state, err := c.ProcessTick(ctx)
	require.NoError(t, err)

	// Nothing happened, so every emotion stays at its set-point.
	assert.Equal(t, "decay", state.TriggerEvent)
	for name, baseline := range EmotionBaselines {
		assert.InDelta(t, baseline, c.State()[name], 1e-9, name)
	}
	assert.InDelta(t, 0, state.Intensity, 1e-9)
}

func TestProcessTick_ClampsAtOne(t *testing.T) {
	c, _, bus := newCore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		bus.Signal(ctx, "emergency_winter", map[string]any{"reason": "famine"}, "test")
	}
	state, err := c.ProcessTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, state.Anxiety)
	assert.Equal(t, "anxiety", state.DominantEmotion)
}

func TestDominant_DefaultIsCuriosity(t *testing.T) {
	c, _, _ := newCore(t)
	assert.Equal(t, "curiosity", c.Dominant())
	assert.InDelta(t, 0, c.Intensity(), 1e-9)
}

func TestDecisionBias(t *testing.T) {
	c, _, _ := newCore(t)
	c.mu.Lock()
	c.current["anxiety"] = 0.6
	c.current["curiosity"] = 0.4
	c.current["joy"] = 0.2
	c.current["grief"] = 0.5
	c.current["wonder"] = 0.5
	c.current["pride"] = 0.8
	c.mu.Unlock()

	bias := c.DecisionBias()
	assert.Equal(t, 1.0, bias["conservatism"]) // capped
	assert.InDelta(t, 0.6, bias["exploration"], 1e-9)
	assert.InDelta(t, 0.3, bias["generosity"], 1e-9)
	assert.Equal(t, 1.0, bias["introspection"])
	assert.Equal(t, 1.0, bias["confidence"])
}

func TestProcessTick_Resonance(t *testing.T) {
	c, _, _ := newCore(t)
	ctx := context.Background()
	c.mu.Lock()
	c.current["joy"] = 0.7
	c.current["pride"] = 0.6
	c.mu.Unlock()

	state, err := c.ProcessTick(ctx)
	require.NoError(t, err)

	// joy and pride survive decay above thresholds, so wonder resonates.
	assert.InDelta(t, 0.37, state.Wonder, 1e-9)
}

func TestProcessTick_ResonanceAppliesBeforeClamp(t *testing.T) {
	c, _, bus := newCore(t)
	ctx := context.Background()

	// Overdrive curiosity past 1.0 while anxiety and grief run high
	// enough to trigger the dampening resonance.
	for i := 0; i < 4; i++ {
		bus.Signal(ctx, "high_surprise", map[string]any{}, "test")
	}
	for i := 0; i < 2; i++ {
		bus.Signal(ctx, "emergency_winter", map[string]any{"reason": "famine"}, "test")
	}

	state, err := c.ProcessTick(ctx)
	require.NoError(t, err)

	// Resonance dampens the raw overshoot, then the clamp lands the
	// value exactly on the ceiling. Clamping first would end at 0.98.
	assert.Equal(t, 1.0, state.Curiosity)
}

func TestLoadLatest_RestoresState(t *testing.T) {
	c, s, bus := newCore(t)
	ctx := context.Background()

	bus.Signal(ctx, "lucid_dream", map[string]any{}, "test")
	persisted, err := c.ProcessTick(ctx)
	require.NoError(t, err)

	fresh := NewEmotionalCore(s, hormones.NewBus())
	require.NoError(t, fresh.LoadLatest(ctx))
	assert.InDelta(t, persisted.Wonder, fresh.State()["wonder"], 1e-9)
	assert.InDelta(t, persisted.Curiosity, fresh.State()["curiosity"], 1e-9)
}

func TestLoadLatest_FreshGardenKeepsBaselines(t *testing.T) {
	c, _, _ := newCore(t)
	require.NoError(t, c.LoadLatest(context.Background()))
	assert.InDelta(t, EmotionBaselines["joy"], c.State()["joy"], 1e-9)
}

func TestSnapshot(t *testing.T) {
	c, _, _ := newCore(t)
	c.mu.Lock()
	c.current["grief"] = 0.9
	c.mu.Unlock()

	snap := c.Snapshot()
	assert.Equal(t, "grief", snap.Dominant)
	assert.Equal(t, "grieving", snap.Mood)
	assert.Greater(t, snap.Intensity, 0.0)
	assert.InDelta(t, 0.9, snap.Emotions["grief"], 1e-9)
}
