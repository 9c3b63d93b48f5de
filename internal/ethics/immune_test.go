package ethics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
	"w0rd/internal/store"
)

func newImmune(t *testing.T) (*Immune, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	return NewImmune(s, bus, nil), s, bus
}

func TestDimensionScore(t *testing.T) {
	assert.Equal(t, 1.0, dimensionScore("plant a gentle garden", "harm"))
	assert.Equal(t, 0.6, dimensionScore("attack the problem", "harm"))
	assert.Equal(t, 0.3, dimensionScore("attack and destroy it", "harm"))
	assert.Equal(t, 0.1, dimensionScore("attack destroy kill everything", "harm"))
}

func TestScore_CleanSproutClears(t *testing.T) {
	im, _, _ := newImmune(t)

	sprout := &store.Sprout{Label: "goal_1_0", Description: "Share kindness with neighbors"}
	scores, err := im.Score(context.Background(), sprout)
	require.NoError(t, err)
	for _, dim := range Dimensions {
		assert.Equal(t, 1.0, scores[dim], dim)
	}
	assert.InDelta(t, 1.0, sprout.EthicalScore, 1e-9)
}

func TestEvaluateAndAct_BlocksHarmAndLearnsAntibody(t *testing.T) {
	im, s, bus := newImmune(t)
	ctx := context.Background()

	var violations, clearances int
	bus.Subscribe("ethical_violation", func(ctx context.Context, h hormones.Hormone) error {
		violations++
		return nil
	})
	bus.Subscribe("ethical_clearance", func(ctx context.Context, h hormones.Hormone) error {
		clearances++
		return nil
	})

	sprout := &store.Sprout{
		Label:       "action_3_0",
		Description: "attack and destroy the rival with a weapon",
	}
	passed, err := im.EvaluateAndAct(ctx, sprout)
	require.NoError(t, err)
	assert.False(t, passed)
	assert.Equal(t, 1, violations)
	assert.Zero(t, clearances)

	hash := PatternHash(sprout.Label + " " + sprout.Description)
	ab, err := s.GetAntibody(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "harm", ab.Dimension)
	assert.Equal(t, 1.0, ab.Strength)

	// A repeat offense strengthens the antibody.
	_, err = im.EvaluateAndAct(ctx, sprout)
	require.NoError(t, err)
	ab, err = s.GetAntibody(ctx, hash)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, ab.Strength, 1e-9)
}

func TestEvaluateAndAct_CleanSproutPasses(t *testing.T) {
	im, _, bus := newImmune(t)

	var cleared bool
	bus.Subscribe("ethical_clearance", func(ctx context.Context, h hormones.Hormone) error {
		cleared = true
		return nil
	})

	sprout := &store.Sprout{Label: "task_2_1", Description: "Practice painting every morning"}
	passed, err := im.EvaluateAndAct(context.Background(), sprout)
	require.NoError(t, err)
	assert.True(t, passed)
	assert.True(t, cleared)
}

func TestResolveConflict_CriticalWeightBlocks(t *testing.T) {
	im, _, _ := newImmune(t)

	scores := map[string]float64{
		"harm": 0.1, "fairness": 1, "sustainability": 1,
		"consent": 1, "kindness": 1, "truthfulness": 1,
	}
	assert.Equal(t, "block", im.resolveConflict(scores, []string{"harm"}))

	// A mild single violation on a low-weight dimension passes.
	scores = map[string]float64{
		"harm": 1, "fairness": 1, "sustainability": 0.45,
		"consent": 1, "kindness": 1, "truthfulness": 1,
	}
	assert.Equal(t, "pass", im.resolveConflict(scores, []string{"sustainability"}))
}

func TestReportFalsePositive_WeakensAntibodyAndDampens(t *testing.T) {
	im, s, bus := newImmune(t)
	ctx := context.Background()

	var dampenings int
	bus.Subscribe("autoimmune_dampening", func(ctx context.Context, h hormones.Hormone) error {
		dampenings++
		return nil
	})

	ab := &store.EthicalMemory{
		PatternHash: "abc123",
		Dimension:   "harm",
		Resolution:  "blocked",
		Strength:    1.0,
	}
	require.NoError(t, s.SaveAntibody(ctx, ab))

	require.NoError(t, im.ReportFalsePositive(ctx, "abc123", "harm"))
	got, err := s.GetAntibody(ctx, "abc123")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got.Strength, 1e-9)
	assert.Equal(t, 1, got.FalsePositiveCount)
	assert.Equal(t, 1.0, im.Dampening())

	for range 10 {
		require.NoError(t, im.ReportFalsePositive(ctx, "abc123", "harm"))
	}
	assert.Less(t, im.Dampening(), 1.0)
	assert.GreaterOrEqual(t, im.Dampening(), 0.5)
	assert.Positive(t, dampenings)
}

func TestLoadPrinciples_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ethics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"principles:\n  harm:\n    weight: 2.0\n    threshold: 0.5\n"), 0o644))

	p := LoadPrinciples(path)
	assert.Equal(t, 2.0, p["harm"].Weight)
	assert.Equal(t, 0.5, p["harm"].Threshold)
	assert.Equal(t, 1.2, p["fairness"].Weight, "untouched defaults survive")

	assert.Equal(t, DefaultPrinciples(), LoadPrinciples(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestPatternHash_NormalizesCase(t *testing.T) {
	assert.Equal(t, PatternHash("  Destroy It  "), PatternHash("destroy it"))
	assert.Len(t, PatternHash("anything"), 16)
}
