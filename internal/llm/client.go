// Package llm is the cortex: a streaming client for local Ollama
// inference. Generation failures never propagate as errors; callers fall
// back to templates when the cortex returns an empty string.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"w0rd/internal/logging"
)

// DefaultBaseURL is the standard local Ollama endpoint.
const DefaultBaseURL = "http://127.0.0.1:11434"

// DefaultModel is used when no model is configured.
const DefaultModel = "qwen3:8b"

// Client talks to an Ollama server.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	log     *logging.Logger
}

// NewClient creates a cortex client.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		log:     logging.Get(logging.CategoryCortex),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Request describes one generation call.
type Request struct {
	Prompt      string
	System      string
	Organ       string
	Phase       string
	Temperature float64
	MaxTokens   int
}

func (r *Request) fillDefaults() {
	if r.Organ == "" {
		r.Organ = "cortex"
	}
	if r.Phase == "" {
		r.Phase = "generating"
	}
	if r.Temperature == 0 {
		r.Temperature = 0.7
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 512
	}
}

// Generate streams a completion from Ollama, emitting thinking events per
// token. It returns the full trimmed response, or "" on any failure.
func (c *Client) Generate(ctx context.Context, req Request) string {
	req.fillDefaults()

	preview := req.Prompt
	if len(preview) > 80 {
		preview = preview[:80]
	}
	emitThinking(ThinkingEvent{
		Organ:   req.Organ,
		Phase:   "start",
		Content: fmt.Sprintf("Thinking about: %s...", preview),
		Meta:    map[string]any{"model": c.model, "temperature": req.Temperature},
	})

	payload := generateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: true,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return c.fail(req, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return c.fail(req, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.log.Warn("ollama not reachable at %s, falling back to template", c.baseURL)
		emitThinking(ThinkingEvent{
			Organ:   req.Organ,
			Phase:   "fallback",
			Content: "Ollama unavailable, using template fallback",
		})
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return c.fail(req, fmt.Errorf("ollama returned status %d: %s",
			resp.StatusCode, string(errBody)))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			emitThinking(ThinkingEvent{
				Organ:   req.Organ,
				Phase:   req.Phase,
				Token:   chunk.Response,
				Content: full.String(),
			})
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return c.fail(req, err)
	}

	text := strings.TrimSpace(full.String())
	emitThinking(ThinkingEvent{
		Organ:   req.Organ,
		Phase:   "complete",
		Content: text,
		Meta:    map[string]any{"total_tokens": len(strings.Fields(text))},
	})
	return text
}

func (c *Client) fail(req Request, err error) string {
	c.log.Error("generation failed: %v", err)
	emitThinking(ThinkingEvent{
		Organ:   req.Organ,
		Phase:   "error",
		Content: err.Error(),
	})
	return ""
}

// GenerateJSON generates and parses a structured response into out. It
// tolerates markdown code fences around the JSON. Returns false when the
// model is unreachable or the response does not parse.
func (c *Client) GenerateJSON(ctx context.Context, req Request, out any) bool {
	if req.Phase == "" {
		req.Phase = "analyzing"
	}
	if req.Temperature == 0 {
		req.Temperature = 0.4
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1024
	}
	raw := c.Generate(ctx, req)
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), out); err != nil {
		c.log.Debug("unparseable JSON from model: %.200s", raw)
		return false
	}
	return true
}

func extractJSON(raw string) string {
	if i := strings.Index(raw, "```json"); i >= 0 {
		rest := raw[i+7:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	if i := strings.Index(raw, "```"); i >= 0 {
		rest := raw[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	return strings.TrimSpace(raw)
}

// Embed returns an L2-normalised embedding of the text from the Ollama
// embeddings endpoint, or nil when the model is unreachable or returns
// a degenerate vector.
func (c *Client) Embed(ctx context.Context, text string) []float64 {
	payload := embedRequest{Model: c.model, Prompt: text}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.log.Debug("embedding unavailable: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Debug("embedding request returned status %d", resp.StatusCode)
		return nil
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil
	}
	return normalize(result.Embedding)
}

func normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return nil
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Health reports whether Ollama is reachable and which models it serves.
type Health struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Models []string `json:"models"`
}

// Check probes the Ollama /api/tags endpoint.
func (c *Client) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return Health{Status: "offline", Error: err.Error(), Models: []string{}}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Health{Status: "offline", Error: err.Error(), Models: []string{}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{
			Status: "offline",
			Error:  fmt.Sprintf("status %d", resp.StatusCode),
			Models: []string{},
		}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return Health{Status: "offline", Error: err.Error(), Models: []string{}}
	}
	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return Health{Status: "online", Models: models}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
