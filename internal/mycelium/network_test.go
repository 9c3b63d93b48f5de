package mycelium

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
	"w0rd/internal/intent"
	"w0rd/internal/store"
)

func newNetwork(t *testing.T) (*Network, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	return NewNetwork(s, bus), s, bus
}

func plantSeed(t *testing.T, s *store.Store, themes []string, energy float64) *store.Seed {
	t.Helper()
	seed := &store.Seed{
		RawText:   "wish",
		Themes:    themes,
		Embedding: intent.ThemeVector(themes),
		Energy:    energy,
	}
	require.NoError(t, s.CreateSeed(context.Background(), seed))
	return seed
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity(nil, []float64{1}))
	assert.Zero(t, CosineSimilarity([]float64{1, 2}, []float64{1}))
	assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
}

func TestThemeOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, ThemeOverlap([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 1.0/3, ThemeOverlap([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Zero(t, ThemeOverlap([]string{"a"}, nil))
	assert.Zero(t, ThemeOverlap([]string{"a"}, []string{"b"}))
}

func TestClassifyRelationship(t *testing.T) {
	assert.Equal(t, store.RelMutualism, classifyRelationship(0.8, 10, 10))
	assert.Equal(t, store.RelCommensalism, classifyRelationship(0.4, 10, 2))
	assert.Equal(t, store.RelParasitism, classifyRelationship(0.05, 10, 10))
	assert.Equal(t, store.RelMutualism, classifyRelationship(0.3, 10, 9))
}

func TestScanAndLink(t *testing.T) {
	n, s, _ := newNetwork(t)
	ctx := context.Background()

	twin1 := plantSeed(t, s, []string{"nature", "growth"}, 10)
	twin2 := plantSeed(t, s, []string{"nature", "growth"}, 11)
	stranger := plantSeed(t, s, []string{"abundance"}, 10)

	links, err := n.ScanAndLink(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.InDelta(t, 1.0, links[0].SynergyScore, 1e-9)
	assert.Equal(t, store.RelMutualism, links[0].RelationshipType)

	ids := map[string]bool{links[0].SeedAID: true, links[0].SeedBID: true}
	assert.True(t, ids[twin1.ID] && ids[twin2.ID])
	assert.False(t, ids[stranger.ID])
	assert.Less(t, links[0].SeedAID, links[0].SeedBID, "endpoints are lexicographically ordered")

	// A second scan does not duplicate links.
	links, err = n.ScanAndLink(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestPollinate(t *testing.T) {
	n, s, bus := newNetwork(t)
	ctx := context.Background()

	var pollinations []hormones.Hormone
	bus.Subscribe("pollination", func(ctx context.Context, h hormones.Hormone) error {
		pollinations = append(pollinations, h)
		return nil
	})

	completed := plantSeed(t, s, []string{"health", "growth"}, 20)
	partial := plantSeed(t, s, []string{"health", "wisdom"}, 10)
	full := plantSeed(t, s, []string{"health", "growth"}, 10)
	unrelated := plantSeed(t, s, []string{"abundance"}, 10)

	count, err := n.Pollinate(ctx, completed)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only partial overlap absorbs pollen")

	got, err := s.GetSeed(ctx, partial.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.25, got.Energy, 1e-9)

	for _, untouched := range []*store.Seed{full, unrelated} {
		got, err := s.GetSeed(ctx, untouched.ID)
		require.NoError(t, err)
		assert.Equal(t, 10.0, got.Energy)
	}
	require.Len(t, pollinations, 1)
}

func TestCheckQuorum(t *testing.T) {
	n, s, bus := newNetwork(t)
	ctx := context.Background()

	var reached []hormones.Hormone
	bus.Subscribe("quorum_reached", func(ctx context.Context, h hormones.Hormone) error {
		reached = append(reached, h)
		return nil
	})

	for range 3 {
		plantSeed(t, s, []string{"nature"}, 10)
	}
	plantSeed(t, s, []string{"wisdom"}, 10)

	themes, err := n.CheckQuorum(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"nature"}, themes)
	require.Len(t, reached, 1)
	assert.Equal(t, 3, reached[0].Payload["count"])
}

func TestShareNutrients(t *testing.T) {
	n, s, _ := newNetwork(t)
	ctx := context.Background()

	rich := plantSeed(t, s, []string{"nature"}, 30)
	poor := plantSeed(t, s, []string{"nature"}, 10)
	link := &store.SymbioticLink{
		SeedAID:      rich.ID,
		SeedBID:      poor.ID,
		SynergyScore: 0.5,
	}
	require.NoError(t, s.CreateLink(ctx, link))

	total, err := n.ShareNutrients(ctx)
	require.NoError(t, err)
	// (30-10) * 0.1 * 0.5 = 1
	assert.InDelta(t, 1.0, total, 1e-9)

	gotRich, err := s.GetSeed(ctx, rich.ID)
	require.NoError(t, err)
	gotPoor, err := s.GetSeed(ctx, poor.ID)
	require.NoError(t, err)
	assert.InDelta(t, 29.0, gotRich.Energy, 1e-9)
	assert.InDelta(t, 11.0, gotPoor.Energy, 1e-9)

	updatedLink, err := s.LinkBetween(ctx, rich.ID, poor.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, updatedLink.NutrientFlow, 1e-9)
}

func TestShareNutrients_BalancedPairUntouched(t *testing.T) {
	n, s, _ := newNetwork(t)
	ctx := context.Background()

	a := plantSeed(t, s, []string{"nature"}, 10)
	b := plantSeed(t, s, []string{"nature"}, 9)
	require.NoError(t, s.CreateLink(ctx, &store.SymbioticLink{
		SeedAID: a.ID, SeedBID: b.ID, SynergyScore: 1.0,
	}))

	total, err := n.ShareNutrients(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}
