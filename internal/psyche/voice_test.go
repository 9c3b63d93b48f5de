package psyche

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/store"
)

func newVoice(t *testing.T, rng *rand.Rand) (*InnerVoice, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	cortex := llm.NewClient("http://127.0.0.1:1", "qwen3:8b", time.Second)
	return NewInnerVoice(s, bus, cortex, rng), s, bus
}

func neutralMood() MoodSnapshot {
	return MoodSnapshot{
		Mood:     "curious",
		Dominant: "curiosity",
		Emotions: map[string]float64{
			"joy": 0.4, "curiosity": 0.5, "anxiety": 0.15,
			"pride": 0.3, "grief": 0.05, "wonder": 0.35,
		},
	}
}

func TestThink_QuietWhenCortexUnreachable(t *testing.T) {
	v, s, _ := newVoice(t, nil)
	ctx := context.Background()

	thought, err := v.Think(ctx, neutralMood())
	require.NoError(t, err)
	assert.Nil(t, thought)

	stored, err := s.RecentInnerThoughts(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestChooseThoughtType_Deterministic(t *testing.T) {
	// Seed 1 yields 0.6046... on the first roll, landing on "question"
	// with neutral weights.
	v, _, _ := newVoice(t, rand.New(rand.NewSource(1)))
	assert.Equal(t, "question", v.chooseThoughtType(neutralMood()))
}

func TestChooseThoughtType_AlwaysValid(t *testing.T) {
	v, _, _ := newVoice(t, rand.New(rand.NewSource(42)))
	mood := neutralMood()
	mood.Emotions["wonder"] = 0.9
	mood.Emotions["grief"] = 0.8
	for i := 0; i < 50; i++ {
		assert.Contains(t, thoughtTypes, v.chooseThoughtType(mood))
	}
}

func TestOnEvent_BuffersRecentEvents(t *testing.T) {
	v, _, bus := newVoice(t, nil)
	ctx := context.Background()

	bus.Signal(ctx, "seed_planted", map[string]any{"essence": "a quiet wish"}, "test")
	bus.Signal(ctx, "emotional_shift", map[string]any{"dominant": "wonder"}, "test")
	for i := 0; i < 25; i++ {
		bus.Signal(ctx, "apoptosis", map[string]any{}, "test")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Len(t, v.recentEvents, 20)
	assert.Equal(t, "apoptosis", v.recentEvents[len(v.recentEvents)-1])
}

func TestOnEvent_DescribesPayload(t *testing.T) {
	v, _, bus := newVoice(t, nil)
	ctx := context.Background()

	bus.Signal(ctx, "dream_generated", map[string]any{"insight": "roots remember rain"}, "test")
	bus.Signal(ctx, "emotional_shift", map[string]any{"dominant": "joy"}, "test")

	v.mu.Lock()
	defer v.mu.Unlock()
	require.Len(t, v.recentEvents, 2)
	assert.Equal(t, "dream_generated: roots remember rain", v.recentEvents[0])
	assert.Equal(t, "emotional_shift: feeling joy", v.recentEvents[1])
}

func TestThoughtTemperature(t *testing.T) {
	mood := neutralMood()
	mood.Intensity = 0.5
	assert.InDelta(t, 0.8, thoughtTemperature("wonder", mood), 1e-9)
	assert.InDelta(t, 0.4, thoughtTemperature("observation", mood), 1e-9)

	mood.Intensity = 2.0
	assert.InDelta(t, 0.9, thoughtTemperature("wonder", mood), 1e-9)

	mood.Intensity = 0
	assert.InDelta(t, 0.5, thoughtTemperature("unknown", mood), 1e-9)
}

func TestCalculateSalience(t *testing.T) {
	mood := neutralMood()
	assert.InDelta(t, 0.4, calculateSalience("observation", mood, "short sweet words"), 0.11)

	mood.Intensity = 1.0
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	assert.InDelta(t, 1.0, calculateSalience("wonder", mood, string(long)), 1e-9)
}

func TestCalculateDepth(t *testing.T) {
	calm := neutralMood()
	stirred := neutralMood()
	stirred.Intensity = 0.6

	assert.Equal(t, 0, calculateDepth("wonder", calm))
	assert.Equal(t, 2, calculateDepth("wonder", stirred))
	assert.Equal(t, 2, calculateDepth("rumination", stirred))
	assert.Equal(t, 1, calculateDepth("reflection", stirred))
	assert.Equal(t, 1, calculateDepth("question", stirred))
	assert.Equal(t, 0, calculateDepth("observation", stirred))
}

func TestBuildPrompt_IncludesGardenContext(t *testing.T) {
	v, s, _ := newVoice(t, nil)
	ctx := context.Background()

	require.NoError(t, s.CreateSeed(ctx, &store.Seed{
		RawText: "w", Status: store.SeedGrowing, Themes: []string{"nature"},
	}))

	prompt, err := v.buildPrompt(ctx, "observation", neutralMood())
	require.NoError(t, err)
	assert.Contains(t, prompt, "spring")
	assert.Contains(t, prompt, "curious")
	assert.Contains(t, prompt, "growing")
	assert.Contains(t, prompt, "Notice something")
}
