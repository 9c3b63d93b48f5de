package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"w0rd/internal/llm"
)

// CapResult is what a capability hands back to its agent.
type CapResult struct {
	Success bool
	Result  string
	Stderr  string
	Error   string
}

// Subtask is one entry of a decompose result.
type Subtask struct {
	Task      string `json:"task"`
	AgentType string `json:"agent_type"`
	Priority  string `json:"priority"`
}

// Executor runs agent capabilities. File operations are confined to
// the workspace root; code execution runs in a subprocess with a
// hard timeout.
type Executor struct {
	cortex    *llm.Client
	workspace string
}

func NewExecutor(cortex *llm.Client, workspace string) *Executor {
	return &Executor{cortex: cortex, workspace: workspace}
}

// Execute dispatches a capability by agent type.
func (e *Executor) Execute(ctx context.Context, agentType string, params map[string]any) CapResult {
	switch agentType {
	case "analyze":
		return e.analyze(ctx, params)
	case "summarize":
		return e.summarize(ctx, params)
	case "decompose":
		return e.decompose(ctx, params)
	case "code_gen":
		return e.codeGen(ctx, params)
	case "planner":
		return e.plan(ctx, params)
	case "web_search":
		return e.webSearch(ctx, params)
	case "file_read":
		return e.fileRead(params)
	case "code_exec":
		return e.codeExec(ctx, params)
	case "file_write":
		return e.fileWrite(params)
	}
	return CapResult{Error: fmt.Sprintf("Unknown capability: %s", agentType)}
}

func (e *Executor) analyze(ctx context.Context, params map[string]any) CapResult {
	task := strParam(params, "task")
	data := strParam(params, "data")

	prompt := fmt.Sprintf("You are an analytical agent in a living system. Your task:\n\n%s\n\n", task)
	if data != "" {
		prompt += fmt.Sprintf("Data to analyze:\n%s\n\n", truncate(data, 3000))
	}
	prompt += "Provide a clear, structured analysis. Be concise and actionable."

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt:      prompt,
		System:      "You are a precise analytical agent. Provide structured, actionable analysis.",
		Organ:       "cortex",
		Phase:       "analyzing",
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if result == "" {
		return CapResult{Result: "Analysis failed, LLM unavailable", Error: "LLM unavailable"}
	}
	return CapResult{Success: true, Result: result}
}

func (e *Executor) summarize(ctx context.Context, params map[string]any) CapResult {
	text := strParam(params, "text")
	if text == "" {
		return CapResult{Error: "No text provided"}
	}
	maxPoints := intParam(params, "max_points", 5)

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("Summarize the following into %d key points:\n\n%s\n\n"+
			"Format as a numbered list. Be concise.", maxPoints, truncate(text, 4000)),
		System:      "You are a summarization agent. Extract the most important points.",
		Organ:       "cortex",
		Phase:       "summarizing",
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if result == "" {
		return CapResult{Result: "Summarization failed", Error: "LLM unavailable"}
	}
	return CapResult{Success: true, Result: result}
}

func (e *Executor) decompose(ctx context.Context, params map[string]any) CapResult {
	task := strParam(params, "task")
	if task == "" {
		return CapResult{Error: "No task provided"}
	}
	maxSubtasks := intParam(params, "max_subtasks", 6)

	var subtasks []Subtask
	ok := e.cortex.GenerateJSON(ctx, llm.Request{
		Prompt: fmt.Sprintf("Break this task into %d or fewer concrete subtasks:\n\n%q\n\n"+
			"Return a JSON array of objects, each with:\n"+
			"- \"task\": description of the subtask\n"+
			"- \"agent_type\": best agent type (analyze, code_gen, summarize, web_search, file_read, file_write)\n"+
			"- \"priority\": \"high\", \"medium\", or \"low\"\n\n"+
			"Return ONLY the JSON array.", maxSubtasks, task),
		System:      "You are a task decomposition agent. Break complex tasks into actionable subtasks.",
		Organ:       "cortex",
		Phase:       "decomposing",
		Temperature: 0.3,
		MaxTokens:   1024,
	}, &subtasks)
	if ok && len(subtasks) > 0 {
		data, _ := json.MarshalIndent(subtasks, "", "  ")
		return CapResult{Success: true, Result: string(data)}
	}

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("Break this task into %d or fewer concrete subtasks:\n\n%q\n\n"+
			"List each subtask with what type of agent should handle it.", maxSubtasks, task),
		System:      "You are a task decomposition agent.",
		Organ:       "cortex",
		Phase:       "decomposing",
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if result == "" {
		return CapResult{Result: "Decomposition failed", Error: "LLM unavailable"}
	}
	return CapResult{Success: true, Result: result}
}

func (e *Executor) codeGen(ctx context.Context, params map[string]any) CapResult {
	task := strParam(params, "task")
	language := strParam(params, "language")
	if language == "" {
		language = "python"
	}
	codeContext := strParam(params, "context")

	prompt := fmt.Sprintf("Generate %s code for the following requirement:\n\n%s\n\n", language, task)
	if codeContext != "" {
		prompt += fmt.Sprintf("Context/existing code:\n```\n%s\n```\n\n", truncate(codeContext, 2000))
	}
	prompt += "Return ONLY the code in a code block. Include necessary imports. " +
		"Make it production-ready, well-structured, and commented."

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt:      prompt,
		System:      fmt.Sprintf("You are an expert %s developer. Generate clean, working code.", language),
		Organ:       "cortex",
		Phase:       "coding",
		Temperature: 0.3,
		MaxTokens:   2048,
	})
	if result == "" {
		return CapResult{Result: "Code generation failed", Error: "LLM unavailable"}
	}
	return CapResult{Success: true, Result: result}
}

func (e *Executor) plan(ctx context.Context, params map[string]any) CapResult {
	mission := strParam(params, "mission")
	constraints := strParam(params, "constraints")

	prompt := fmt.Sprintf("Create a detailed execution plan for this mission:\n\n%q\n\n", mission)
	if constraints != "" {
		prompt += fmt.Sprintf("Constraints: %s\n\n", constraints)
	}
	prompt += "Include:\n" +
		"1. Goal statement\n" +
		"2. Step-by-step plan with agent types needed\n" +
		"3. Success criteria\n" +
		"4. Risk factors\n" +
		"Be specific and actionable."

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt:      prompt,
		System:      "You are a strategic planning agent. Create clear, actionable plans.",
		Organ:       "cortex",
		Phase:       "planning",
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if result == "" {
		return CapResult{Result: "Planning failed", Error: "LLM unavailable"}
	}
	return CapResult{Success: true, Result: result}
}

// webSearch answers from LLM knowledge.
// TODO: integrate an actual web search API (SearXNG or Brave).
func (e *Executor) webSearch(ctx context.Context, params map[string]any) CapResult {
	query := strParam(params, "query")
	if query == "" {
		return CapResult{Error: "No query provided"}
	}

	result := e.cortex.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("Answer this question using your knowledge:\n\n%q\n\n"+
			"Provide factual, well-sourced information. Note when you're uncertain.", query),
		System:      "You are a research agent. Provide accurate, factual information.",
		Organ:       "cortex",
		Phase:       "researching",
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if result == "" {
		return CapResult{Result: "Search failed", Error: "LLM unavailable"}
	}
	return CapResult{Success: true, Result: result}
}

func (e *Executor) fileRead(params map[string]any) CapResult {
	path := strParam(params, "path")
	if path == "" {
		return CapResult{Error: "No path provided"}
	}
	target, err := e.resolveWorkspacePath(path)
	if err != nil {
		return CapResult{Error: err.Error()}
	}

	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return CapResult{Error: fmt.Sprintf("File not found: %s", path)}
	}
	if err != nil {
		return CapResult{Error: err.Error()}
	}

	content := string(data)
	if len(content) > 10000 {
		content = content[:10000] + fmt.Sprintf("\n\n... [truncated, %d chars total]", len(data))
	}
	return CapResult{Success: true, Result: content}
}

func (e *Executor) codeExec(ctx context.Context, params map[string]any) CapResult {
	code := strParam(params, "code")
	if code == "" {
		return CapResult{Error: "No code provided"}
	}
	timeout := intParam(params, "timeout", 30)
	if timeout > 60 {
		timeout = 60
	}

	tmp, err := os.CreateTemp("", "w0rd-*.py")
	if err != nil {
		return CapResult{Error: err.Error()}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return CapResult{Error: err.Error()}
	}
	tmp.Close()

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "python3", tmp.Name())
	cmd.Dir = e.workspace
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if execCtx.Err() == context.DeadlineExceeded {
		return CapResult{Error: fmt.Sprintf("Execution timed out after %ds", timeout)}
	}
	if err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return CapResult{Result: stdout.String(), Error: msg}
	}
	return CapResult{Success: true, Result: stdout.String(), Stderr: stderr.String()}
}

func (e *Executor) fileWrite(params map[string]any) CapResult {
	path := strParam(params, "path")
	if path == "" {
		return CapResult{Error: "No path provided"}
	}
	content := strParam(params, "content")

	target, err := e.resolveWorkspacePath(path)
	if err != nil {
		return CapResult{Error: err.Error()}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return CapResult{Error: err.Error()}
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return CapResult{Error: err.Error()}
	}
	return CapResult{Success: true, Result: fmt.Sprintf("Written %d chars to %s", len(content), path)}
}

// resolveWorkspacePath confines a relative path to the workspace root.
func (e *Executor) resolveWorkspacePath(path string) (string, error) {
	root, err := filepath.Abs(e.workspace)
	if err != nil {
		return "", err
	}
	target := filepath.Clean(filepath.Join(root, path))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside workspace")
	}
	return target, nil
}

func strParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
