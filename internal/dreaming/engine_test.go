package dreaming

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/store"
)

func newEngine(t *testing.T) (*Engine, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	cortex := llm.NewClient("http://127.0.0.1:1", "qwen3:8b", time.Second)
	return NewEngine(s, bus, cortex, rand.New(rand.NewSource(42))), s, bus
}

func compostSeed(t *testing.T, s *store.Store, themes []string, embedding []float64) *store.Seed {
	t.Helper()
	seed := &store.Seed{
		RawText:     "old wish about " + strings.Join(themes, " "),
		Themes:      themes,
		Embedding:   embedding,
		Status:      store.SeedComposted,
		IsComposted: true,
	}
	require.NoError(t, s.CreateSeed(context.Background(), seed))
	return seed
}

func TestCentroid(t *testing.T) {
	got := Centroid([][]float64{{1, 0, 3}, {3, 2, 1}})
	assert.Equal(t, []float64{2, 1, 2}, got)
	assert.Nil(t, Centroid(nil))
}

func TestPerplexity(t *testing.T) {
	assert.Equal(t, 0.0, Perplexity([]float64{1, 1}, []float64{1, 1}))
	assert.InDelta(t, 5.0, Perplexity([]float64{10, 10}, []float64{0, 0}), 1e-9, "capped at 5")
	assert.Equal(t, 1.0, Perplexity(nil, []float64{1}))
	assert.Equal(t, 1.0, Perplexity([]float64{1, 2}, []float64{1}))
}

func TestGenerateInsight(t *testing.T) {
	e, _, _ := newEngine(t)

	assert.Equal(t, "The garden rests in quiet potential.", e.generateInsight(nil, 0.7))
	assert.Equal(t, "A deeper layer of wisdom wants to emerge.",
		e.generateInsight([]string{"wisdom"}, 0.7))

	insight := e.generateInsight([]string{"nature", "growth", "love"}, 0.7)
	assert.True(t, strings.HasSuffix(insight, "."))
	assert.Contains(t, insight, "awaits its moment", "odd theme out is acknowledged")
}

func TestDream_TooYoungGardenReturnsNil(t *testing.T) {
	e, _, _ := newEngine(t)

	dream, err := e.Dream(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, dream)
}

func TestDream_FromCompostedSeeds(t *testing.T) {
	e, s, bus := newEngine(t)
	ctx := context.Background()

	var signals []hormones.Hormone
	for _, name := range []string{"dream_generated", "lucid_dream"} {
		bus.Subscribe(name, func(ctx context.Context, h hormones.Hormone) error {
			signals = append(signals, h)
			return nil
		})
	}

	compostSeed(t, s, []string{"nature"}, []float64{1, 0})
	compostSeed(t, s, []string{"growth"}, []float64{0, 1})

	dream, err := e.Dream(ctx, 0.7)
	require.NoError(t, err)
	require.NotNil(t, dream)
	assert.NotEmpty(t, dream.Insight)
	assert.Len(t, dream.SourceSeedIDs, 2)
	assert.Len(t, dream.ArchetypeVector, 2)
	assert.Equal(t, 0.7, dream.Temperature)
	assert.False(t, dream.Planted)
	require.Len(t, signals, 1)
	assert.Equal(t, dream.ID, signals[0].Payload["dream_id"])

	total, _, err := s.CountDreams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestDream_KeepsLastTenSources(t *testing.T) {
	e, s, _ := newEngine(t)

	for range 13 {
		compostSeed(t, s, []string{"growth"}, []float64{1})
	}
	dream, err := e.Dream(context.Background(), 0.5)
	require.NoError(t, err)
	require.NotNil(t, dream)
	assert.Len(t, dream.SourceSeedIDs, 10)
}

func TestPlantDream(t *testing.T) {
	e, s, bus := newEngine(t)
	ctx := context.Background()

	var planted []hormones.Hormone
	bus.Subscribe("dream_planted", func(ctx context.Context, h hormones.Hormone) error {
		planted = append(planted, h)
		return nil
	})

	compostSeed(t, s, []string{"love"}, []float64{1, 1})
	dream, err := e.Dream(ctx, 0.7)
	require.NoError(t, err)
	require.NotNil(t, dream)

	seed, err := e.PlantDream(ctx, dream.ID)
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.Equal(t, dream.Insight, seed.Essence)
	assert.Equal(t, []string{"dream"}, seed.Themes)
	assert.Equal(t, 0.8, seed.Resonance)
	assert.Equal(t, 8.0, seed.Energy)
	require.Len(t, planted, 1)

	// Planting twice yields nothing new.
	again, err := e.PlantDream(ctx, dream.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}
