// Package config holds all w0rd configuration: YAML file, environment
// overrides, validation, and a hot-reload watcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all w0rd configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Workspace root. File capabilities are confined to this directory.
	Workspace string `yaml:"workspace"`

	// LLM cortex configuration
	LLM LLMConfig `yaml:"llm"`

	// SQLite storage
	Store StoreConfig `yaml:"store"`

	// Autonomous lifecycle
	Lifecycle LifecycleConfig `yaml:"lifecycle"`

	// HTTP/WebSocket surface
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the Ollama cortex.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`

	// Per-tick budget for yes/no decision calls.
	EvalsPerTick int `yaml:"evals_per_tick"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LifecycleConfig configures the autonomous tick loop.
type LifecycleConfig struct {
	TickInterval     string `yaml:"tick_interval"`     // seconds between ticks
	SeasonTurnEvery  int    `yaml:"season_turn_every"` // ticks between season turns
	PulseEvery       int    `yaml:"pulse_every"`       // ticks between pulses
	DreamEvery       int    `yaml:"dream_every"`       // ticks between dreams
	SelfModelEvery   int    `yaml:"self_model_every"`  // ticks between introspections
	ConsolidateEvery int    `yaml:"consolidate_every"` // ticks between memory consolidations

	// Simulated attention seconds applied when auto-watering each tick.
	AutoWaterAttention float64 `yaml:"auto_water_attention"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig configures the category logger.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "w0rd",
		Version:   "3.0.0",
		Workspace: "./workspace",

		LLM: LLMConfig{
			BaseURL:      "http://127.0.0.1:11434",
			Model:        "qwen3:8b",
			Timeout:      "120s",
			EvalsPerTick: 4,
		},

		Store: StoreConfig{
			DatabasePath: "./workspace/garden.db",
		},

		Lifecycle: LifecycleConfig{
			TickInterval:       "60s",
			SeasonTurnEvery:    5,
			PulseEvery:         3,
			DreamEvery:         4,
			SelfModelEvery:     10,
			ConsolidateEvery:   20,
			AutoWaterAttention: 2.0,
		},

		Server: ServerConfig{
			Listen: ":8800",
		},

		Logging: LoggingConfig{
			Debug:  false,
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a config file, applies defaults for missing fields and then
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file is fine: defaults + env.
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies W0RD_* environment variables on top of the
// loaded configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("W0RD_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("W0RD_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("W0RD_OLLAMA_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("W0RD_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("W0RD_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("W0RD_DEBUG"); v == "1" || v == "true" {
		c.Logging.Debug = true
		c.Logging.Level = "debug"
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace must not be empty")
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path must not be empty")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url must not be empty")
	}
	if c.LLM.EvalsPerTick < 0 {
		return fmt.Errorf("llm.evals_per_tick must not be negative")
	}
	if _, err := c.TickInterval(); err != nil {
		return fmt.Errorf("lifecycle.tick_interval: %w", err)
	}
	if _, err := c.LLMTimeout(); err != nil {
		return fmt.Errorf("llm.timeout: %w", err)
	}
	return nil
}

// TickInterval parses the lifecycle tick interval.
func (c *Config) TickInterval() (time.Duration, error) {
	return time.ParseDuration(c.Lifecycle.TickInterval)
}

// LLMTimeout parses the LLM request timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	return time.ParseDuration(c.LLM.Timeout)
}
