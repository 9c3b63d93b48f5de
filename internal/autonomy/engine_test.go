package autonomy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/llm"
	"w0rd/internal/store"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cortex := llm.NewClient("http://127.0.0.1:1", "qwen3:8b", time.Second)
	e := NewEngine(cortex)
	// Seeds created "now" appear 10 minutes old.
	e.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	return e
}

func growingSeed(energy float64) *store.Seed {
	return &store.Seed{
		ID:        "seed01",
		RawText:   "build a birdhouse",
		Status:    store.SeedGrowing,
		Energy:    energy,
		CreatedAt: store.Now(),
	}
}

func sprouts(n int, energy float64) []*store.Sprout {
	out := make([]*store.Sprout, n)
	for i := range out {
		out[i] = &store.Sprout{Description: "step", Depth: 1, Energy: energy}
	}
	return out
}

func TestShouldHarvest(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Mature, energized, deep tree: heuristic yes, no LLM needed.
	assert.True(t, e.ShouldHarvest(ctx, growingSeed(20), sprouts(3, 2)))

	// Too few sprouts is a clear no.
	assert.False(t, e.ShouldHarvest(ctx, growingSeed(20), sprouts(1, 2)))

	// Not growing yet.
	seed := growingSeed(20)
	seed.Status = store.SeedPlanted
	assert.False(t, e.ShouldHarvest(ctx, seed, sprouts(3, 2)))

	// Too young.
	young := growingSeed(20)
	young.CreatedAt = float64(e.now().UnixNano()) / 1e9
	assert.False(t, e.ShouldHarvest(ctx, young, sprouts(3, 2)))

	// Borderline with an unreachable cortex stays unharvested.
	assert.False(t, e.ShouldHarvest(ctx, growingSeed(5), sprouts(2, 1)))
}

func TestShouldCompost(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Old, starving, dead tree: heuristic yes.
	assert.True(t, e.ShouldCompost(ctx, growingSeed(0.5), sprouts(2, 0.1)))

	// Young seeds are never composted.
	young := growingSeed(0.5)
	young.CreatedAt = float64(e.now().UnixNano()) / 1e9
	assert.False(t, e.ShouldCompost(ctx, young, nil))

	// Healthy old seed with offline cortex survives.
	assert.False(t, e.ShouldCompost(ctx, growingSeed(10), sprouts(2, 3)))

	harvested := growingSeed(0.5)
	harvested.Status = store.SeedHarvested
	assert.False(t, e.ShouldCompost(ctx, harvested, nil))
}

func TestShouldPlantDream(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	assert.True(t, e.ShouldPlantDream(ctx, &store.Dream{Perplexity: 0.3}), "lucid")
	assert.True(t, e.ShouldPlantDream(ctx, &store.Dream{Perplexity: 0.6}), "moderate confidence")
	assert.False(t, e.ShouldPlantDream(ctx, &store.Dream{Perplexity: 2.0}), "strange dream, offline cortex")
	assert.False(t, e.ShouldPlantDream(ctx, &store.Dream{Perplexity: 0.1, Planted: true}))
}

func TestShouldPromote(t *testing.T) {
	e := newEngine(t)

	assert.True(t, e.ShouldPromote(growingSeedWithStatus(store.SeedPlanted, 5)))
	assert.False(t, e.ShouldPromote(growingSeedWithStatus(store.SeedPlanted, 1)), "too little energy")
	assert.False(t, e.ShouldPromote(growingSeedWithStatus(store.SeedGrowing, 5)), "already growing")
}

func growingSeedWithStatus(status string, energy float64) *store.Seed {
	return &store.Seed{Status: status, Energy: energy, CreatedAt: store.Now()}
}

func TestTickBudget(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Each borderline harvest check burns one LLM call.
	for i := 0; i < MaxLLMEvalsPerTick; i++ {
		e.ShouldHarvest(ctx, growingSeed(5), sprouts(2, 1))
	}
	assert.False(t, e.budgetAvailable())

	e.ResetTickBudget()
	assert.True(t, e.budgetAvailable())
}

func TestPlanMission_HeuristicFallback(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	tasks := e.PlanMission(ctx, growingSeed(10), nil)
	require.Len(t, tasks, 2)
	assert.Equal(t, "decompose", tasks[0].AgentType)
	assert.Equal(t, "high", tasks[0].Priority)
	assert.Equal(t, "analyze", tasks[1].AgentType)
}

func TestPlanMission_SkipConditions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Non-growing seed never gets a plan.
	seed := growingSeed(10)
	seed.Status = store.SeedHarvested
	assert.Nil(t, e.PlanMission(ctx, seed, nil))

	// Enough active agents already working.
	var busy []*store.AgentNode
	for i := 0; i < 4; i++ {
		busy = append(busy, &store.AgentNode{Status: store.AgentWorking})
	}
	assert.Nil(t, e.PlanMission(ctx, growingSeed(10), busy))

	// Enough completed work: let evaluation take over.
	var done []*store.AgentNode
	for i := 0; i < 3; i++ {
		done = append(done, &store.AgentNode{Status: store.AgentCompleted, Result: "ok"})
	}
	assert.Nil(t, e.PlanMission(ctx, growingSeed(10), done))
}

func TestPlanMission_Followup(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	decomposed := []*store.AgentNode{
		{Name: "decompose_01", AgentType: "decompose", Status: store.AgentCompleted, Result: "subtasks listed"},
	}
	tasks := e.PlanMission(ctx, growingSeed(10), decomposed)
	require.Len(t, tasks, 1)
	assert.Equal(t, "analyze", tasks[0].AgentType)

	analyzed := []*store.AgentNode{
		{Name: "analyze_01", AgentType: "analyze", Status: store.AgentCompleted, Result: "findings"},
	}
	tasks = e.PlanMission(ctx, growingSeed(10), analyzed)
	require.Len(t, tasks, 1)
	assert.Equal(t, "summarize", tasks[0].AgentType)
}

func TestEvaluateMission(t *testing.T) {
	assert.Equal(t, VerdictContinue, EvaluateMission(nil))

	assert.Equal(t, VerdictContinue, EvaluateMission([]*store.AgentNode{
		{Status: store.AgentWorking},
		{Status: store.AgentCompleted, Result: "ok"},
	}))

	assert.Equal(t, VerdictCompost, EvaluateMission([]*store.AgentNode{
		{Status: store.AgentCompleted, Error: "boom"},
		{Status: store.AgentCompleted, Error: "bust"},
	}))

	assert.Equal(t, VerdictHarvest, EvaluateMission([]*store.AgentNode{
		{Status: store.AgentCompleted, Result: "first"},
		{Status: store.AgentCompleted, Result: "second"},
	}))

	assert.Equal(t, VerdictContinue, EvaluateMission([]*store.AgentNode{
		{Status: store.AgentCompleted, Result: "only one"},
	}))
}

func TestSanitizeTasks(t *testing.T) {
	tasks := sanitizeTasks([]AgentTask{
		{AgentType: "analyze", Task: "good"},
		{AgentType: "teleport", Task: "bad type"},
		{AgentType: "summarize", Task: ""},
		{AgentType: "planner", Task: "also good", Priority: "high"},
		{AgentType: "analyze", Task: "over the limit"},
	}, 2)
	require.Len(t, tasks, 2)
	assert.Equal(t, "medium", tasks[0].Priority)
	assert.Equal(t, "high", tasks[1].Priority)
}
