package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Len(t, stats, 15)
	for table, n := range stats {
		assert.Equal(t, 0, n, "table %s should start empty", table)
	}
}

func TestSeed_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := &Seed{
		RawText:      "a garden that tends itself",
		Essence:      "self-tending garden",
		Embedding:    []float64{0.2, 0, 0.8, 0, 0, 0.1, 0, 0, 0, 0},
		Themes:       []string{"growth", "autonomy"},
		ToneValence:  0.6,
		Resonance:    0.4,
		Energy:       10,
		EthicalScore: 0.9,
		Vitality:     1.0,
		SeasonBorn:   "spring",
	}
	require.NoError(t, s.CreateSeed(ctx, seed))
	assert.Len(t, seed.ID, 16)
	assert.Equal(t, SeedPlanted, seed.Status)
	assert.Equal(t, 1, seed.Version)

	got, err := s.GetSeed(ctx, seed.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(seed, got); diff != "" {
		t.Fatalf("seed mismatch (-want +got):\n%s", diff)
	}

	seed.Status = SeedComposted
	seed.IsComposted = true
	require.NoError(t, s.UpdateSeed(ctx, seed))

	living, err := s.LivingSeeds(ctx)
	require.NoError(t, err)
	assert.Empty(t, living)

	composted, err := s.CompostedSeeds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, composted, 1)
	assert.Equal(t, seed.ID, composted[0].ID)

	counts, err := s.CountSeeds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["total"])
	assert.Equal(t, 1, counts[SeedComposted])
}

func TestGetSeed_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSeed(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGardenState_Singleton(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	gs, err := s.GardenState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, gs.TotalEnergy)
	assert.Equal(t, "spring", gs.Season)

	gs.Season = "summer"
	gs.CycleCount = 7
	require.NoError(t, s.UpdateGardenState(ctx, gs))

	again, err := s.GardenState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "summer", again.Season)
	assert.Equal(t, 7, again.CycleCount)
}

func TestCreateLink_CanonicalisesEndpoints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := &Seed{RawText: "first"}
	b := &Seed{RawText: "second"}
	require.NoError(t, s.CreateSeed(ctx, a))
	require.NoError(t, s.CreateSeed(ctx, b))

	lo, hi := a.ID, b.ID
	if lo > hi {
		lo, hi = hi, lo
	}

	// Written with the endpoints reversed; read back in canonical order.
	link := &SymbioticLink{SeedAID: hi, SeedBID: lo, SynergyScore: 0.7}
	require.NoError(t, s.CreateLink(ctx, link))
	assert.Equal(t, lo, link.SeedAID)
	assert.Equal(t, hi, link.SeedBID)

	links, err := s.Links(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Less(t, links[0].SeedAID, links[0].SeedBID)

	got, err := s.LinkBetween(ctx, hi, lo)
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
}

func TestAntibody_UpsertByPatternHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ab := &EthicalMemory{
		PatternHash: "deadbeefdeadbeef",
		Dimension:   "harm_prevention",
		Resolution:  "quarantined",
		Strength:    1.0,
	}
	require.NoError(t, s.SaveAntibody(ctx, ab))

	ab.Strength = 1.5
	ab.FalsePositiveCount = 1
	require.NoError(t, s.SaveAntibody(ctx, ab))

	got, err := s.GetAntibody(ctx, "deadbeefdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.Strength)
	assert.Equal(t, 1, got.FalsePositiveCount)

	all, err := s.Antibodies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDream_PlantedLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := &Dream{
		SourceSeedIDs:   []string{"a", "b", "c"},
		Insight:         "What if growth and rest were the same gesture?",
		ArchetypeVector: []float64{0.1, 0.2},
		Temperature:     1.2,
		Perplexity:      0.7,
	}
	require.NoError(t, s.CreateDream(ctx, d))

	unplanted, err := s.UnplantedDreams(ctx, 5)
	require.NoError(t, err)
	require.Len(t, unplanted, 1)

	require.NoError(t, s.MarkDreamPlanted(ctx, d.ID))
	assert.ErrorIs(t, s.MarkDreamPlanted(ctx, "missing"), ErrNotFound)

	total, planted, err := s.CountDreams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, planted)
}

func TestPrediction_Resolution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &Prediction{
		PredictionType:   "seed_harvest",
		SubjectID:        "seed-1",
		PredictedOutcome: "harvested within 10 cycles",
		Confidence:       0.7,
	}
	require.NoError(t, s.CreatePrediction(ctx, p))

	open, err := s.UnresolvedPredictions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	exists, err := s.UnresolvedPredictionFor(ctx, "seed_harvest", "seed-1")
	require.NoError(t, err)
	assert.True(t, exists)

	now := Now()
	p.Resolved = true
	p.ActualOutcome = "composted"
	p.SurpriseScore = 0.9
	p.ResolvedAt = &now
	require.NoError(t, s.UpdatePrediction(ctx, p))

	n, err := s.CountUnresolvedPredictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	resolved, err := s.ResolvedPredictions(ctx, 5)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, 0.9, resolved[0].SurpriseScore)
}

func TestEpisodicMemory_PruneQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	faint := &EpisodicMemory{
		Narrative:          "a quiet tick passed",
		EventType:          "tick",
		EmotionalIntensity: 0.1,
	}
	core := &EpisodicMemory{
		Narrative:          "the first seed bloomed",
		EventType:          "harvest",
		EmotionalIntensity: 0.95,
		IsCoreMemory:       true,
	}
	recalled := &EpisodicMemory{
		Narrative:          "a wound healed into wisdom",
		EventType:          "healing",
		EmotionalIntensity: 0.3,
		RecallCount:        5,
	}
	for _, m := range []*EpisodicMemory{faint, core, recalled} {
		require.NoError(t, s.CreateEpisodicMemory(ctx, m))
	}

	prunable, err := s.PrunableMemories(ctx, 20)
	require.NoError(t, err)
	require.Len(t, prunable, 1)
	assert.Equal(t, faint.ID, prunable[0].ID)

	require.NoError(t, s.DeleteEpisodicMemory(ctx, faint.ID))
	total, coreCount, err := s.CountEpisodicMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, coreCount)
}

func TestCountAgentsByType(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, s.CreateAgent(ctx, &AgentNode{
			Name:      "researcher",
			AgentType: "researcher",
		}))
	}
	retired := &AgentNode{Name: "researcher", AgentType: "researcher", Status: AgentRetired}
	require.NoError(t, s.CreateAgent(ctx, retired))

	n, err := s.CountAgentsByType(ctx, "researcher")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "retired agents still count toward naming")

	active, err := s.CountActiveAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, active)
}

func TestRecordHormone_FromBus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bus := hormones.NewBus()
	bus.SetRecorder(s)
	bus.Signal(ctx, "seed.planted", map[string]any{"seed_id": "abc123"}, "soil")

	logs, err := s.RecentHormoneLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "seed.planted", logs[0].HormoneName)
	assert.Equal(t, "soil", logs[0].EmitterOrgan)
	assert.Equal(t, 0, logs[0].CascadeDepth)
	assert.True(t, logs[0].Processed)
	assert.Contains(t, logs[0].Payload, "abc123")
}
