// Package autonomy is the self-tending intelligence: heuristic plus
// LLM-assisted decisions about harvesting, composting, dream planting,
// and the cortex planner that turns seeds into agent missions.
package autonomy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/store"
)

// MaxLLMEvalsPerTick caps borderline LLM decision calls per lifecycle
// tick so the cortex is never flooded.
const MaxLLMEvalsPerTick = 4

// Mission verdicts from EvaluateMission.
const (
	VerdictContinue = "continue"
	VerdictHarvest  = "harvest"
	VerdictCompost  = "compost"
)

// AgentTask is one planned unit of agent work.
type AgentTask struct {
	AgentType string `json:"agent_type"`
	Task      string `json:"task"`
	Priority  string `json:"priority"`
}

var validAgentTypes = map[string]bool{
	"analyze": true, "code_gen": true, "code_exec": true,
	"web_search": true, "file_read": true, "file_write": true,
	"summarize": true, "decompose": true, "planner": true,
}

// Engine makes lifecycle decisions. Heuristics run first; the LLM is
// consulted only for borderline cases within the per-tick budget.
type Engine struct {
	cortex   *llm.Client
	log      *logging.Logger
	now      func() time.Time
	llmCalls int
}

func NewEngine(cortex *llm.Client) *Engine {
	return &Engine{
		cortex: cortex,
		log:    logging.Get(logging.CategoryAgents),
		now:    time.Now,
	}
}

// ResetTickBudget starts a fresh LLM budget. Call at the top of each
// lifecycle tick.
func (e *Engine) ResetTickBudget() {
	e.llmCalls = 0
}

func (e *Engine) budgetAvailable() bool {
	return e.llmCalls < MaxLLMEvalsPerTick
}

func (e *Engine) useBudget() {
	e.llmCalls++
}

// ShouldHarvest decides whether a seed is fulfilled and ready to be
// harvested.
func (e *Engine) ShouldHarvest(ctx context.Context, seed *store.Seed, sprouts []*store.Sprout) bool {
	if seed.Status != store.SeedGrowing || len(sprouts) == 0 {
		return false
	}

	age := seed.Age(float64(e.now().UnixNano()) / 1e9)
	hasEnergy := seed.Energy >= 15.0
	hasDepth := len(sprouts) >= 3
	isMature := age > 120

	if !isMature || len(sprouts) < 2 {
		return false
	}

	if hasEnergy && hasDepth {
		e.log.Info("heuristic harvest: seed %s (energy=%.1f, sprouts=%d)",
			seed.ID, seed.Energy, len(sprouts))
		return true
	}

	if !e.budgetAvailable() {
		return false
	}
	e.useBudget()

	var lines []string
	for _, s := range sprouts[:min(len(sprouts), 8)] {
		lines = append(lines, fmt.Sprintf("  - [depth %d] %s (energy: %.1f)",
			s.Depth, s.Description, s.Energy))
	}
	result := e.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("A seed in the garden has this essence: %q\n"+
			"Status: %s, Energy: %.1f, Sprouts: %d\n"+
			"Fractal tree:\n%s\n\n"+
			"Has this seed been sufficiently decomposed and energized to be considered fulfilled? "+
			"Answer ONLY 'yes' or 'no', nothing else.",
			seed.DisplayEssence(), seed.Status, seed.Energy, len(sprouts), strings.Join(lines, "\n")),
		System:      "You are the decision cortex of a living garden organism. You evaluate seed maturity.",
		Organ:       "autonomy",
		Phase:       "harvest_eval",
		Temperature: 0.2,
		MaxTokens:   10,
	})
	if strings.Contains(strings.ToLower(strings.TrimSpace(result)), "yes") {
		e.log.Info("cortex says harvest seed %s", seed.ID)
		return true
	}
	return false
}

// ShouldCompost decides whether a stagnant seed should be gracefully
// retired to enrich the soil.
func (e *Engine) ShouldCompost(ctx context.Context, seed *store.Seed, sprouts []*store.Sprout) bool {
	if seed.Status != store.SeedPlanted && seed.Status != store.SeedGrowing {
		return false
	}

	age := seed.Age(float64(e.now().UnixNano()) / 1e9)
	if age <= 300 {
		return false
	}

	var sproutEnergy float64
	for _, s := range sprouts {
		sproutEnergy += s.Energy
	}
	if seed.Energy < 1.0 && sproutEnergy < 0.5 {
		e.log.Info("heuristic compost: seed %s (energy=%.1f, age=%.0fs)",
			seed.ID, seed.Energy, age)
		return true
	}

	if !e.budgetAvailable() {
		return false
	}
	e.useBudget()

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("A seed in the garden: %q\n"+
			"Status: %s, Energy: %.1f, Age: %.0fs\n"+
			"Total sprout energy: %.1f, Sprout count: %d\n\n"+
			"Is this seed stagnant and should be composted (gracefully retired to enrich the soil)? "+
			"Answer ONLY 'yes' or 'no', nothing else.",
			seed.DisplayEssence(), seed.Status, seed.Energy, age, sproutEnergy, len(sprouts)),
		System:      "You are the decision cortex of a living garden organism. You evaluate seed vitality.",
		Organ:       "autonomy",
		Phase:       "compost_eval",
		Temperature: 0.2,
		MaxTokens:   10,
	})
	if strings.Contains(strings.ToLower(strings.TrimSpace(result)), "yes") {
		e.log.Info("cortex says compost seed %s", seed.ID)
		return true
	}
	return false
}

// ShouldPlantDream decides whether a dream insight becomes a seed.
// Lucid dreams always do.
func (e *Engine) ShouldPlantDream(ctx context.Context, dream *store.Dream) bool {
	if dream.Planted {
		return false
	}

	if dream.Perplexity < 0.5 {
		e.log.Info("auto-planting lucid dream %s (perplexity=%.2f)", dream.ID, dream.Perplexity)
		return true
	}
	if dream.Perplexity < 0.7 {
		return true
	}

	if !e.budgetAvailable() {
		return false
	}
	e.useBudget()

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("The garden dreamed this insight: %q\n"+
			"Temperature: %.1f, Perplexity: %.2f\n\n"+
			"Is this dream insight valuable enough to plant as a new seed in the garden? "+
			"Consider: is it actionable, surprising, or creatively useful? "+
			"Answer ONLY 'yes' or 'no', nothing else.",
			dream.Insight, dream.Temperature, dream.Perplexity),
		System:      "You are the decision cortex of a living garden organism. You evaluate dream quality.",
		Organ:       "autonomy",
		Phase:       "dream_eval",
		Temperature: 0.3,
		MaxTokens:   10,
	})
	if strings.Contains(strings.ToLower(strings.TrimSpace(result)), "yes") {
		e.log.Info("cortex says plant dream %s", dream.ID)
		return true
	}
	return false
}

// ShouldPromote decides whether a planted seed moves to growing.
func (e *Engine) ShouldPromote(seed *store.Seed) bool {
	if seed.Status != store.SeedPlanted {
		return false
	}
	age := seed.Age(float64(e.now().UnixNano()) / 1e9)
	return age > 30 && seed.Energy > 2.0
}

// PlanMission decides what agents to spawn for a growing seed.
func (e *Engine) PlanMission(ctx context.Context, seed *store.Seed, existing []*store.AgentNode) []AgentTask {
	var active, completed []*store.AgentNode
	for _, a := range existing {
		switch a.Status {
		case store.AgentIdle, store.AgentWorking, store.AgentSpawning:
			active = append(active, a)
		case store.AgentCompleted:
			if a.Result != "" {
				completed = append(completed, a)
			}
		}
	}

	if len(active) >= 4 || seed.Status != store.SeedGrowing || len(completed) >= 3 {
		return nil
	}
	if len(existing) == 0 {
		return e.initialPlan(ctx, seed)
	}
	if len(completed) > 0 && len(active) == 0 {
		return e.followupPlan(ctx, seed, completed)
	}
	return nil
}

func (e *Engine) initialPlan(ctx context.Context, seed *store.Seed) []AgentTask {
	essence := seed.DisplayEssence()

	if e.budgetAvailable() {
		e.useBudget()
		var planned []AgentTask
		ok := e.cortex.GenerateJSON(ctx, llm.Request{
			Prompt: fmt.Sprintf("You are the Cortex of an autonomous agent system. A user planted this seed (mission):\n\n"+
				"%q\nThemes: %v\n\n"+
				"Decompose this into 1-3 agent tasks. Available agent types:\n"+
				"- analyze: reason about data, evaluate options\n"+
				"- code_gen: generate code (does not execute)\n"+
				"- decompose: break into subtasks\n"+
				"- summarize: condense information\n"+
				"- web_search: research information\n"+
				"- planner: create execution plans\n"+
				"- file_read: read workspace files\n\n"+
				"Return a JSON array of objects with: \"agent_type\", \"task\", \"priority\" (high/medium/low).\n"+
				"Keep it to 1-3 tasks. Return ONLY the JSON array.",
				essence, seed.Themes),
			System:      "You are the Cortex planner. Decompose missions into agent tasks.",
			Organ:       "cortex",
			Phase:       "mission_planning",
			Temperature: 0.3,
			MaxTokens:   512,
		}, &planned)
		if ok {
			if tasks := sanitizeTasks(planned, 3); len(tasks) > 0 {
				e.log.Info("cortex planned %d agents for seed %s", len(tasks), seed.ID)
				return tasks
			}
		}
	}

	return []AgentTask{
		{AgentType: "decompose", Task: "Break down this mission: " + truncate(essence, 200), Priority: "high"},
		{AgentType: "analyze", Task: "Analyze requirements and constraints for: " + truncate(essence, 200), Priority: "medium"},
	}
}

func (e *Engine) followupPlan(ctx context.Context, seed *store.Seed, completed []*store.AgentNode) []AgentTask {
	essence := seed.DisplayEssence()

	if e.budgetAvailable() {
		e.useBudget()
		var lines []string
		for _, a := range completed[:min(len(completed), 4)] {
			lines = append(lines, fmt.Sprintf("- %s (%s): %s", a.Name, a.AgentType, truncate(a.Result, 300)))
		}
		var planned []AgentTask
		ok := e.cortex.GenerateJSON(ctx, llm.Request{
			Prompt: fmt.Sprintf("You are the Cortex of an autonomous agent system.\n"+
				"Mission: %q\n\n"+
				"Completed agent results:\n%s\n\n"+
				"Based on these results, what follow-up agents are needed? "+
				"If the mission seems complete, return an empty array [].\n"+
				"Available types: analyze, code_gen, summarize, web_search, planner, decompose, file_read\n\n"+
				"Return a JSON array of 0-2 objects with: \"agent_type\", \"task\", \"priority\".\n"+
				"Return ONLY the JSON array.",
				essence, strings.Join(lines, "\n")),
			System:      "You are the Cortex planner. Decide follow-up actions.",
			Organ:       "cortex",
			Phase:       "followup_planning",
			Temperature: 0.3,
			MaxTokens:   512,
		}, &planned)
		if ok {
			return sanitizeTasks(planned, 2)
		}
	}

	var decomposeDone, analyzeDone bool
	for _, a := range completed {
		switch a.AgentType {
		case "decompose":
			decomposeDone = true
		case "analyze":
			analyzeDone = true
		}
	}
	if decomposeDone && !analyzeDone {
		return []AgentTask{{AgentType: "analyze", Task: "Analyze the decomposed subtasks for: " + truncate(essence, 200), Priority: "medium"}}
	}
	if analyzeDone {
		return []AgentTask{{AgentType: "summarize", Task: "Summarize findings for mission: " + truncate(essence, 200), Priority: "low"}}
	}
	return nil
}

// EvaluateMission judges a seed's mission from its agents' fates.
func EvaluateMission(agents []*store.AgentNode) string {
	if len(agents) == 0 {
		return VerdictContinue
	}

	var active, completed, failed, successful int
	for _, a := range agents {
		switch a.Status {
		case store.AgentIdle, store.AgentWorking, store.AgentSpawning:
			active++
		case store.AgentCompleted:
			completed++
			if a.Error != "" {
				failed++
			} else if a.Result != "" {
				successful++
			}
		}
	}

	if active > 0 {
		return VerdictContinue
	}
	if failed > 0 && failed == completed {
		return VerdictCompost
	}
	if successful >= 2 {
		return VerdictHarvest
	}
	return VerdictContinue
}

func sanitizeTasks(planned []AgentTask, limit int) []AgentTask {
	var tasks []AgentTask
	for _, item := range planned {
		if len(tasks) >= limit {
			break
		}
		if item.Task == "" || !validAgentTypes[item.AgentType] {
			continue
		}
		if item.Priority == "" {
			item.Priority = "medium"
		}
		item.Task = truncate(item.Task, 500)
		tasks = append(tasks, item)
	}
	return tasks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
