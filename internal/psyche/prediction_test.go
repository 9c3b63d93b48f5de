package psyche

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
	"w0rd/internal/store"
)

func newPredictionEngine(t *testing.T) (*PredictionEngine, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	return NewPredictionEngine(s, bus), s, bus
}

func predictionsByType(preds []*store.Prediction, ptype string) []*store.Prediction {
	var out []*store.Prediction
	for _, p := range preds {
		if p.PredictionType == ptype {
			out = append(out, p)
		}
	}
	return out
}

func TestMakePredictions_SeedHeuristics(t *testing.T) {
	p, s, _ := newPredictionEngine(t)
	ctx := context.Background()
	// Seeds planted now look 250s old to the engine.
	p.now = func() time.Time { return time.Now().Add(250 * time.Second) }

	strong := &store.Seed{RawText: "w", Status: store.SeedGrowing, Energy: 20}
	require.NoError(t, s.CreateSeed(ctx, strong))
	weak := &store.Seed{RawText: "w", Status: store.SeedGrowing, Energy: 1}
	require.NoError(t, s.CreateSeed(ctx, weak))

	preds, err := p.MakePredictions(ctx)
	require.NoError(t, err)

	seedPreds := predictionsByType(preds, "seed_outcome")
	require.Len(t, seedPreds, 2)
	byID := map[string]*store.Prediction{}
	for _, sp := range seedPreds {
		byID[sp.SubjectID] = sp
	}
	assert.Equal(t, "harvest", byID[strong.ID].PredictedOutcome)
	assert.InDelta(t, 0.9, byID[strong.ID].Confidence, 1e-9)
	assert.Equal(t, "compost", byID[weak.ID].PredictedOutcome)
	assert.InDelta(t, 0.5, byID[weak.ID].Confidence, 1e-9)

	// Two living seeds in spring is not enough for growth, so stable.
	trends := predictionsByType(preds, "energy_trend")
	require.Len(t, trends, 1)
	assert.Equal(t, "stable|100.0", trends[0].PredictedOutcome)
	assert.InDelta(t, 0.4, trends[0].Confidence, 1e-9)
}

func TestMakePredictions_FreshlyPlantedGrows(t *testing.T) {
	p, s, _ := newPredictionEngine(t)
	ctx := context.Background()

	seed := &store.Seed{RawText: "w", Status: store.SeedPlanted, Energy: 5}
	require.NoError(t, s.CreateSeed(ctx, seed))

	preds, err := p.MakePredictions(ctx)
	require.NoError(t, err)
	seedPreds := predictionsByType(preds, "seed_outcome")
	require.Len(t, seedPreds, 1)
	assert.Equal(t, "growing", seedPreds[0].PredictedOutcome)
	assert.InDelta(t, 0.7, seedPreds[0].Confidence, 1e-9)
}

func TestMakePredictions_DedupAndCap(t *testing.T) {
	p, s, _ := newPredictionEngine(t)
	ctx := context.Background()

	var seeds []*store.Seed
	for i := 0; i < 5; i++ {
		seed := &store.Seed{RawText: fmt.Sprintf("w%d", i), Status: store.SeedGrowing, Energy: 5}
		require.NoError(t, s.CreateSeed(ctx, seed))
		seeds = append(seeds, seed)
	}

	first, err := p.MakePredictions(ctx)
	require.NoError(t, err)
	// At most three seed predictions per pass, plus the energy trend.
	assert.Len(t, predictionsByType(first, "seed_outcome"), 3)
	assert.Len(t, predictionsByType(first, "energy_trend"), 1)

	second, err := p.MakePredictions(ctx)
	require.NoError(t, err)
	// Covered seeds are skipped, the remaining two get predictions.
	assert.Len(t, predictionsByType(second, "seed_outcome"), 2)
	assert.Empty(t, predictionsByType(second, "energy_trend"))
}

func TestMakePredictions_StopsAtActiveCap(t *testing.T) {
	p, s, _ := newPredictionEngine(t)
	ctx := context.Background()

	for i := 0; i < MaxActivePredictions; i++ {
		require.NoError(t, s.CreatePrediction(ctx, &store.Prediction{
			PredictionType:   "seed_outcome",
			SubjectID:        fmt.Sprintf("seed_%d", i),
			PredictedOutcome: "continue",
			Confidence:       0.5,
		}))
	}
	preds, err := p.MakePredictions(ctx)
	require.NoError(t, err)
	assert.Nil(t, preds)
}

func TestResolvePredictions_WaitsOneTick(t *testing.T) {
	p, s, _ := newPredictionEngine(t)
	ctx := context.Background()

	seed := &store.Seed{RawText: "w", Status: store.SeedGrowing, Energy: 5}
	require.NoError(t, s.CreateSeed(ctx, seed))
	require.NoError(t, s.CreatePrediction(ctx, &store.Prediction{
		PredictionType: "seed_outcome", SubjectID: seed.ID,
		PredictedOutcome: "growing", Confidence: 0.7,
	}))

	resolved, err := p.ResolvePredictions(ctx)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestResolvePredictions_CorrectSeedOutcome(t *testing.T) {
	p, s, _ := newPredictionEngine(t)
	ctx := context.Background()
	p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	seed := &store.Seed{RawText: "w", Status: store.SeedGrowing, Energy: 5}
	require.NoError(t, s.CreateSeed(ctx, seed))
	require.NoError(t, s.CreatePrediction(ctx, &store.Prediction{
		PredictionType: "seed_outcome", SubjectID: seed.ID,
		PredictedOutcome: store.SeedGrowing, Confidence: 0.7,
	}))

	resolved, err := p.ResolvePredictions(ctx)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.True(t, resolved[0].Correct)
	assert.InDelta(t, 0.06, resolved[0].Surprise, 1e-9)
	assert.Equal(t, 1.0, p.Accuracy())

	remaining, err := s.UnresolvedPredictions(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestResolvePredictions_WrongOutcomeEmitsHighSurprise(t *testing.T) {
	p, s, bus := newPredictionEngine(t)
	ctx := context.Background()
	p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	var signals []hormones.Hormone
	bus.Subscribe("high_surprise", func(ctx context.Context, h hormones.Hormone) error {
		signals = append(signals, h)
		return nil
	})

	seed := &store.Seed{RawText: "w", Status: store.SeedGrowing, Energy: 5}
	require.NoError(t, s.CreateSeed(ctx, seed))
	require.NoError(t, s.CreatePrediction(ctx, &store.Prediction{
		PredictionType: "seed_outcome", SubjectID: seed.ID,
		PredictedOutcome: "harvest", Confidence: 0.9,
	}))

	resolved, err := p.ResolvePredictions(ctx)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.False(t, resolved[0].Correct)
	assert.InDelta(t, 0.92, resolved[0].Surprise, 1e-9)
	assert.Equal(t, 0.0, p.Accuracy())
	require.Len(t, signals, 1)
}

func TestResolvePredictions_DisappearedSeed(t *testing.T) {
	p, s, _ := newPredictionEngine(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePrediction(ctx, &store.Prediction{
		PredictionType: "seed_outcome", SubjectID: "seed_gone",
		PredictedOutcome: "harvest", Confidence: 0.8,
	}))

	resolved, err := p.ResolvePredictions(ctx)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "disappeared", resolved[0].Actual)
	assert.InDelta(t, 0.8, resolved[0].Surprise, 1e-9)
	assert.False(t, resolved[0].Correct)
}

func TestResolvePredictions_EnergyTrend(t *testing.T) {
	p, s, _ := newPredictionEngine(t)
	ctx := context.Background()
	p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	state, err := s.GardenState(ctx)
	require.NoError(t, err)
	state.TotalEnergy = 120
	require.NoError(t, s.UpdateGardenState(ctx, state))

	require.NoError(t, s.CreatePrediction(ctx, &store.Prediction{
		PredictionType: "energy_trend", SubjectID: "garden",
		PredictedOutcome: "increase|100.0", Confidence: 0.6,
	}))
	require.NoError(t, s.CreatePrediction(ctx, &store.Prediction{
		PredictionType: "energy_trend", SubjectID: "garden",
		PredictedOutcome: "decrease|100.0", Confidence: 0.6,
	}))

	resolved, err := p.ResolvePredictions(ctx)
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	byPredicted := map[string]ResolvedPrediction{}
	for _, r := range resolved {
		byPredicted[r.Predicted] = r
	}
	increase := byPredicted["increase|100.0"]
	assert.True(t, increase.Correct)
	assert.Equal(t, "increase|120.0", increase.Actual)
	assert.InDelta(t, 0.06, increase.Surprise, 1e-9)

	decrease := byPredicted["decrease|100.0"]
	assert.False(t, decrease.Correct)
	assert.InDelta(t, 0.72, decrease.Surprise, 1e-9)
}

func TestStats_Defaults(t *testing.T) {
	p, _, _ := newPredictionEngine(t)
	assert.Equal(t, 0.5, p.Accuracy())
	assert.Equal(t, 0.5, p.AverageSurprise())

	stats := p.Stats()
	assert.Equal(t, 0, stats["total_predictions"])
	assert.Equal(t, 0.5, stats["accuracy"])
}
