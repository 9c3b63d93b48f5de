package fractal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/store"
)

func newGrower(t *testing.T) (*Grower, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	cortex := llm.NewClient("http://127.0.0.1:1", "qwen3:8b", time.Second)
	return NewGrower(s, bus, cortex), s, bus
}

func TestPhiWeight(t *testing.T) {
	assert.InDelta(t, 10.0, PhiWeight(0, 10), 1e-9)
	assert.InDelta(t, 10/Phi, PhiWeight(1, 10), 1e-9)
	assert.InDelta(t, 10/(Phi*Phi), PhiWeight(2, 10), 1e-9)
	assert.Equal(t, 0.1, PhiWeight(10, 0.001), "floor at 0.1")
}

func TestPressureScore(t *testing.T) {
	// Shallow firstborn of two siblings.
	assert.InDelta(t, 1.0*(1-0.3*0.5), PressureScore(0, 0, 2), 1e-9)
	// Deeper nodes feel less depth pressure.
	assert.Greater(t, PressureScore(0, 0, 2), PressureScore(3, 0, 2))
	// Later siblings carry lower scores at the same depth.
	assert.Greater(t, PressureScore(1, 0, 2), PressureScore(1, 1, 2))
}

func TestPatternFor(t *testing.T) {
	assert.Equal(t, decompositionPatterns["health"], patternFor([]string{"health", "growth"}))
	assert.Equal(t, decompositionPatterns["general"], patternFor([]string{"unknown"}))
	assert.Equal(t, decompositionPatterns["general"], patternFor(nil))
}

func TestGrow_BuildsEnergeticTree(t *testing.T) {
	g, s, bus := newGrower(t)
	ctx := context.Background()

	var grown []hormones.Hormone
	bus.Subscribe("tree_grown", func(ctx context.Context, h hormones.Hormone) error {
		grown = append(grown, h)
		return nil
	})

	seed := &store.Seed{
		RawText:      "learn to paint",
		Essence:      "learn to paint",
		Themes:       []string{"creativity"},
		Energy:       40,
		EthicalScore: 1.0,
		Resonance:    0.5,
	}
	require.NoError(t, s.CreateSeed(ctx, seed))

	sprouts, err := g.Grow(ctx, seed)
	require.NoError(t, err)
	require.NotEmpty(t, sprouts)
	assert.Equal(t, store.SeedGrowing, seed.Status)

	// Root level has two intentions with no parent.
	var roots int
	for _, sp := range sprouts {
		if sp.Depth == 0 {
			roots++
			assert.Empty(t, sp.ParentID)
			assert.Contains(t, sp.Label, "intention")
		}
		assert.Equal(t, store.SproutBudding, sp.Status)
		assert.Equal(t, seed.EthicalScore, sp.EthicalScore)
	}
	assert.Equal(t, 2, roots)

	require.Len(t, grown, 1)
	assert.Equal(t, len(sprouts), grown[0].Payload["sprout_count"])
}

func TestGrow_LowEnergyStaysShallow(t *testing.T) {
	g, s, _ := newGrower(t)
	ctx := context.Background()

	seed := &store.Seed{RawText: "tiny wish", Energy: 2, EthicalScore: 1}
	require.NoError(t, s.CreateSeed(ctx, seed))

	sprouts, err := g.Grow(ctx, seed)
	require.NoError(t, err)

	maxDepth := 0
	for _, sp := range sprouts {
		maxDepth = max(maxDepth, sp.Depth)
	}
	assert.Less(t, maxDepth, 3, "a 2-energy seed cannot afford deep branches")
}

func TestGrow_FirstbornGetsMostEnergy(t *testing.T) {
	g, s, _ := newGrower(t)
	ctx := context.Background()

	seed := &store.Seed{RawText: "grow", Themes: []string{"growth"}, Energy: 30, EthicalScore: 1}
	require.NoError(t, s.CreateSeed(ctx, seed))

	sprouts, err := g.Grow(ctx, seed)
	require.NoError(t, err)

	var level0 []*store.Sprout
	for _, sp := range sprouts {
		if sp.Depth == 0 {
			level0 = append(level0, sp)
		}
	}
	require.Len(t, level0, 2)
	assert.Greater(t, level0[0].Energy, level0[1].Energy)
	assert.InDelta(t, level0[0].Energy/Phi, level0[1].Energy, 1e-9)
}

func TestTriggerApoptosis(t *testing.T) {
	g, s, bus := newGrower(t)
	ctx := context.Background()

	var deaths []hormones.Hormone
	bus.Subscribe("apoptosis", func(ctx context.Context, h hormones.Hormone) error {
		deaths = append(deaths, h)
		return nil
	})

	seed := &store.Seed{RawText: "x", Energy: 10, EthicalScore: 1}
	require.NoError(t, s.CreateSeed(ctx, seed))
	sprout := &store.Sprout{SeedID: seed.ID, Label: "goal_1_0", Energy: 0.01}
	require.NoError(t, s.CreateSprout(ctx, sprout))

	require.NoError(t, g.TriggerApoptosis(ctx, sprout, ""))

	got, err := s.GetSprout(ctx, sprout.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SproutComposted, got.Status)
	assert.True(t, got.IsComposted)
	require.NotNil(t, got.ApoptosisAt)
	assert.InDelta(t, store.Now(), *got.ApoptosisAt, 5)

	require.Len(t, deaths, 1)
	assert.Equal(t, "energy_depleted", deaths[0].Payload["reason"])
}

func TestPhiValue(t *testing.T) {
	assert.InDelta(t, 1.6180339887, Phi, 1e-9)
	assert.InDelta(t, Phi*Phi, Phi+1, 1e-9, "phi squared equals phi plus one")
}
