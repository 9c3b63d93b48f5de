package agents

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

func newRegistry(t *testing.T) (*Registry, *store.Store, *hormones.Bus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "garden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	bus := hormones.NewBus()
	return NewRegistry(s, bus), s, bus
}

func offlineExecutor(t *testing.T) *Executor {
	t.Helper()
	cortex := llm.NewClient("http://127.0.0.1:1", "qwen3:8b", time.Second)
	return NewExecutor(cortex, t.TempDir())
}

func TestSpawn_NamesSequentially(t *testing.T) {
	r, _, bus := newRegistry(t)
	ctx := context.Background()

	var spawned []hormones.Hormone
	bus.Subscribe("agent_spawned", func(ctx context.Context, h hormones.Hormone) error {
		spawned = append(spawned, h)
		return nil
	})

	first, err := r.Spawn(ctx, "analyze", "look at the data", "", "", nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "analyze_01", first.Name)
	assert.Equal(t, store.AgentIdle, first.Status)

	second, err := r.Spawn(ctx, "analyze", "look again", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "analyze_02", second.Name)

	require.Len(t, spawned, 2)
	assert.Equal(t, "analyze_01", spawned[0].Payload["name"])
}

func TestSpawn_UnknownTypeReturnsNil(t *testing.T) {
	r, _, _ := newRegistry(t)

	agent, err := r.Spawn(context.Background(), "teleport", "go somewhere", "", "", nil)
	require.NoError(t, err)
	assert.Nil(t, agent)
}

func TestSpawn_GatedTypeAwaitsApproval(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	agent, err := r.Spawn(ctx, "code_exec", "run the script", "", "", map[string]any{"code": "print(1)"})
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, store.AgentAwaitingApproval, agent.Status)

	waiting, err := r.AwaitingApproval(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
}

func TestSpawn_CapacityCap(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	for i := 0; i < MaxConcurrentAgents; i++ {
		agent, err := r.Spawn(ctx, "analyze", "work", "", "", nil)
		require.NoError(t, err)
		require.NotNil(t, agent)
	}

	overflow, err := r.Spawn(ctx, "analyze", "one too many", "", "", nil)
	require.NoError(t, err)
	assert.Nil(t, overflow)
}

func TestAgentLifecycle(t *testing.T) {
	r, s, bus := newRegistry(t)
	ctx := context.Background()

	var completed []hormones.Hormone
	bus.Subscribe("agent_completed", func(ctx context.Context, h hormones.Hormone) error {
		completed = append(completed, h)
		return nil
	})

	agent, err := r.Spawn(ctx, "summarize", "condense the report", "seed01", "", nil)
	require.NoError(t, err)

	working, err := r.StartWork(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, store.AgentWorking, working.Status)
	require.NotNil(t, working.StartedAt)

	// Working agents cannot start again.
	again, err := r.StartWork(ctx, agent.ID)
	require.NoError(t, err)
	assert.Nil(t, again)

	done, err := r.Complete(ctx, agent.ID, "three key points", map[string]any{"points": 3})
	require.NoError(t, err)
	assert.Equal(t, store.AgentCompleted, done.Status)
	assert.Equal(t, "three key points", done.Result)
	require.NotNil(t, done.CompletedAt)
	assert.Contains(t, done.Context, `"points":3`)

	require.Len(t, completed, 1)
	assert.Equal(t, "seed01", completed[0].Payload["seed_id"])

	retired, err := r.Retire(ctx, agent.ID, "done")
	require.NoError(t, err)
	assert.Equal(t, store.AgentRetired, retired.Status)

	got, err := s.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, store.AgentRetired, got.Status)
	require.NotNil(t, got.RetiredAt)
}

func TestFail(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	agent, err := r.Spawn(ctx, "analyze", "doomed work", "", "", nil)
	require.NoError(t, err)

	failed, err := r.Fail(ctx, agent.ID, "out of patience")
	require.NoError(t, err)
	assert.Equal(t, store.AgentCompleted, failed.Status)
	assert.Equal(t, "out of patience", failed.Error)
}

func TestApprove(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	granted, err := r.Spawn(ctx, "file_write", "save notes", "", "", nil)
	require.NoError(t, err)
	agent, err := r.Approve(ctx, granted.ID, true)
	require.NoError(t, err)
	assert.Equal(t, store.AgentIdle, agent.Status)

	denied, err := r.Spawn(ctx, "code_exec", "run wild", "", "", nil)
	require.NoError(t, err)
	agent, err = r.Approve(ctx, denied.ID, false)
	require.NoError(t, err)
	assert.Equal(t, store.AgentRetired, agent.Status)
	assert.Equal(t, "Denied by user", agent.Error)

	// Approving a non-gated agent is a no-op.
	idle, err := r.Spawn(ctx, "analyze", "already free", "", "", nil)
	require.NoError(t, err)
	agent, err = r.Approve(ctx, idle.ID, true)
	require.NoError(t, err)
	assert.Nil(t, agent)
}

func TestFileWriteAndRead(t *testing.T) {
	e := offlineExecutor(t)

	write := e.Execute(context.Background(), "file_write", map[string]any{
		"path":    "notes/today.txt",
		"content": "water the nature seeds",
	})
	require.True(t, write.Success, write.Error)
	assert.Equal(t, "Written 22 chars to notes/today.txt", write.Result)

	read := e.Execute(context.Background(), "file_read", map[string]any{
		"path": "notes/today.txt",
	})
	require.True(t, read.Success, read.Error)
	assert.Equal(t, "water the nature seeds", read.Result)
}

func TestFileRead_Confinement(t *testing.T) {
	e := offlineExecutor(t)

	escape := e.Execute(context.Background(), "file_read", map[string]any{
		"path": "../../etc/passwd",
	})
	assert.False(t, escape.Success)
	assert.Equal(t, "path outside workspace", escape.Error)

	missing := e.Execute(context.Background(), "file_read", map[string]any{
		"path": "nosuch.txt",
	})
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Error, "File not found")
}

func TestCapability_InputValidation(t *testing.T) {
	e := offlineExecutor(t)
	ctx := context.Background()

	assert.Equal(t, "No text provided", e.Execute(ctx, "summarize", nil).Error)
	assert.Equal(t, "No task provided", e.Execute(ctx, "decompose", nil).Error)
	assert.Equal(t, "No query provided", e.Execute(ctx, "web_search", nil).Error)
	assert.Equal(t, "No code provided", e.Execute(ctx, "code_exec", nil).Error)
	assert.Equal(t, "No path provided", e.Execute(ctx, "file_read", nil).Error)
	assert.Contains(t, e.Execute(ctx, "levitate", nil).Error, "Unknown capability")
}

func TestAnalyze_OfflineFallback(t *testing.T) {
	e := offlineExecutor(t)

	res := e.Execute(context.Background(), "analyze", map[string]any{"task": "study the garden"})
	assert.False(t, res.Success)
	assert.Equal(t, "Analysis failed, LLM unavailable", res.Result)
	assert.NotEmpty(t, res.Error)
}

func TestExecute_OfflineCortexReportsError(t *testing.T) {
	e := offlineExecutor(t)
	ctx := context.Background()

	// Every LLM-backed capability must carry a non-empty error when the
	// cortex is unreachable; an empty error would read as success.
	for _, agentType := range []string{"analyze", "summarize", "decompose", "code_gen", "planner", "web_search"} {
		res := e.Execute(ctx, agentType, map[string]any{
			"task": "t", "text": "t", "mission": "m", "query": "q",
		})
		assert.False(t, res.Success, agentType)
		assert.NotEmpty(t, res.Error, agentType)
	}
}
