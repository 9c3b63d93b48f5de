// Package agents is the spawning ground: it manages the lifecycle of
// dynamic worker agents (spawn, work, complete, retire) and executes
// their capabilities.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"w0rd/internal/hormones"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// AgentTypes maps each agent type to what it does.
var AgentTypes = map[string]string{
	"analyze":    "Reason about data, evaluate options, draw conclusions",
	"code_gen":   "Generate code snippets based on requirements",
	"code_exec":  "Execute Python code in a sandboxed subprocess",
	"web_search": "Search the web for information",
	"file_read":  "Read files from the workspace",
	"file_write": "Write files to the workspace",
	"summarize":  "Condense large text into key points",
	"decompose":  "Break a complex task into subtasks",
	"planner":    "Create execution plans for missions",
}

// GatedCapabilities require user approval before execution.
var GatedCapabilities = map[string]bool{
	"code_exec":  true,
	"file_write": true,
}

// MaxConcurrentAgents caps how many agents may occupy capacity at once.
const MaxConcurrentAgents = 8

// Registry is the organism's agent spawning and management system.
type Registry struct {
	store *store.Store
	bus   *hormones.Bus
	log   *logging.Logger
}

func NewRegistry(st *store.Store, bus *hormones.Bus) *Registry {
	return &Registry{store: st, bus: bus, log: logging.Get(logging.CategoryAgents)}
}

// Spawn creates a new agent node. Returns nil when the type is unknown
// or the pool is at capacity.
func (r *Registry) Spawn(ctx context.Context, agentType, task, seedID, parentID string, capabilityConfig map[string]any) (*store.AgentNode, error) {
	if _, ok := AgentTypes[agentType]; !ok {
		r.log.Warn("unknown agent type: %s", agentType)
		return nil, nil
	}

	busy, err := r.store.CountBusyAgents(ctx)
	if err != nil {
		return nil, err
	}
	if busy >= MaxConcurrentAgents {
		r.log.Debug("agent capacity reached (%d/%d), skipping %s",
			busy, MaxConcurrentAgents, agentType)
		return nil, nil
	}

	count, err := r.store.CountAgentsByType(ctx, agentType)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s_%02d", agentType, count+1)

	status := store.AgentIdle
	if GatedCapabilities[agentType] {
		status = store.AgentAwaitingApproval
	}

	config := "{}"
	if len(capabilityConfig) > 0 {
		data, err := json.Marshal(capabilityConfig)
		if err != nil {
			return nil, fmt.Errorf("encode capability config: %w", err)
		}
		config = string(data)
	}

	agent := &store.AgentNode{
		Name:            name,
		AgentType:       agentType,
		Status:          status,
		SeedID:          seedID,
		ParentID:        parentID,
		TaskDescription: task,
		Capability:      config,
	}
	if err := r.store.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	r.bus.Signal(ctx, "agent_spawned", map[string]any{
		"agent_id":   agent.ID,
		"name":       agent.Name,
		"agent_type": agentType,
		"seed_id":    seedID,
		"task":       task,
		"status":     status,
	}, "agents")

	r.log.Info("spawned agent %s (%s) for seed %s: %s",
		name, agentType, seedID, truncate(task, 80))
	return agent, nil
}

// StartWork transitions an agent from idle to working. Returns nil if
// the agent is missing or not ready.
func (r *Registry) StartWork(ctx context.Context, agentID string) (*store.AgentNode, error) {
	agent, err := r.getAgent(ctx, agentID)
	if err != nil || agent == nil {
		return nil, err
	}
	if agent.Status != store.AgentIdle && agent.Status != store.AgentSpawning {
		return nil, nil
	}

	agent.Status = store.AgentWorking
	now := store.Now()
	agent.StartedAt = &now
	if err := r.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	r.bus.Signal(ctx, "agent_working", map[string]any{
		"agent_id":   agent.ID,
		"name":       agent.Name,
		"agent_type": agent.AgentType,
	}, "agents")
	return agent, nil
}

// Complete marks an agent as done with its result, optionally merging
// into its working context.
func (r *Registry) Complete(ctx context.Context, agentID, result string, contextUpdate map[string]any) (*store.AgentNode, error) {
	agent, err := r.getAgent(ctx, agentID)
	if err != nil || agent == nil {
		return nil, err
	}

	agent.Status = store.AgentCompleted
	agent.Result = result
	now := store.Now()
	agent.CompletedAt = &now

	if len(contextUpdate) > 0 {
		working := map[string]any{}
		if agent.Context != "" {
			_ = json.Unmarshal([]byte(agent.Context), &working)
		}
		for k, v := range contextUpdate {
			working[k] = v
		}
		data, err := json.Marshal(working)
		if err != nil {
			return nil, fmt.Errorf("encode agent context: %w", err)
		}
		agent.Context = string(data)
	}

	if err := r.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	r.bus.Signal(ctx, "agent_completed", map[string]any{
		"agent_id":       agent.ID,
		"name":           agent.Name,
		"agent_type":     agent.AgentType,
		"seed_id":        agent.SeedID,
		"result_preview": truncate(result, 200),
	}, "agents")

	r.log.Info("agent %s completed: %s", agent.Name, truncate(result, 100))
	return agent, nil
}

// Fail marks an agent as completed with an error.
func (r *Registry) Fail(ctx context.Context, agentID, errMsg string) (*store.AgentNode, error) {
	agent, err := r.getAgent(ctx, agentID)
	if err != nil || agent == nil {
		return nil, err
	}

	agent.Status = store.AgentCompleted
	agent.Error = errMsg
	now := store.Now()
	agent.CompletedAt = &now
	if err := r.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	r.log.Warn("agent %s failed: %s", agent.Name, truncate(errMsg, 100))
	return agent, nil
}

// Retire removes an agent from the active pool.
func (r *Registry) Retire(ctx context.Context, agentID, reason string) (*store.AgentNode, error) {
	agent, err := r.getAgent(ctx, agentID)
	if err != nil || agent == nil || agent.Status == store.AgentRetired {
		return nil, err
	}

	agent.Status = store.AgentRetired
	now := store.Now()
	agent.RetiredAt = &now
	if err := r.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	r.bus.Signal(ctx, "agent_retired", map[string]any{
		"agent_id": agent.ID,
		"name":     agent.Name,
		"reason":   reason,
	}, "agents")

	if reason == "" {
		reason = "mission complete"
	}
	r.log.Info("retired agent %s: %s", agent.Name, reason)
	return agent, nil
}

// Approve resolves a gated agent awaiting user approval. Denial
// retires the agent.
func (r *Registry) Approve(ctx context.Context, agentID string, approved bool) (*store.AgentNode, error) {
	agent, err := r.getAgent(ctx, agentID)
	if err != nil || agent == nil {
		return nil, err
	}
	if agent.Status != store.AgentAwaitingApproval {
		return nil, nil
	}

	if approved {
		agent.Status = store.AgentIdle
		r.log.Info("agent %s approved by user", agent.Name)
	} else {
		agent.Status = store.AgentRetired
		now := store.Now()
		agent.RetiredAt = &now
		agent.Error = "Denied by user"
		r.log.Info("agent %s denied by user", agent.Name)
	}

	if err := r.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// IdleAgents returns agents ready to work.
func (r *Registry) IdleAgents(ctx context.Context) ([]*store.AgentNode, error) {
	return r.store.AgentsByStatus(ctx, store.AgentIdle)
}

// CompletedAgents returns agents that finished but are not yet retired.
func (r *Registry) CompletedAgents(ctx context.Context) ([]*store.AgentNode, error) {
	return r.store.AgentsByStatus(ctx, store.AgentCompleted)
}

// AwaitingApproval returns gated agents waiting on the user.
func (r *Registry) AwaitingApproval(ctx context.Context) ([]*store.AgentNode, error) {
	return r.store.AgentsByStatus(ctx, store.AgentAwaitingApproval)
}

func (r *Registry) getAgent(ctx context.Context, id string) (*store.AgentNode, error) {
	agent, err := r.store.GetAgent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return agent, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
