// Package config provides configuration management for agentcore.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the agent configuration.
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Loop      LoopConfig      `toml:"loop"`
	Index     IndexConfig     `toml:"index"`
	Queue     QueueConfig     `toml:"queue"`
	Logging   LoggingConfig   `toml:"logging"`
}

// WorkspaceConfig contains sandbox settings.
type WorkspaceConfig struct {
	Root              string  `toml:"root"`
	MaxSizeGB         float64 `toml:"max_size_gb"`
	MinFreeRAMPercent float64 `toml:"min_free_ram_percent"`
	AllowProjectRead  bool    `toml:"allow_project_read"`
}

// GatewayConfig contains model gateway settings.
type GatewayConfig struct {
	Provider            string  `toml:"provider"` // "openai", "gemini", "mock"
	BaseURL             string  `toml:"base_url"`
	APIKey              string  `toml:"api_key"`
	Model               string  `toml:"model"`
	EscalationModel     string  `toml:"escalation_model"`
	EscalationThreshold int     `toml:"escalation_threshold"`
	EmbeddingModel      string  `toml:"embedding_model"`
	Temperature         float64 `toml:"temperature"`
	MaxTokens           int     `toml:"max_tokens"`
	TimeoutSecs         int     `toml:"timeout_seconds"`
}

// LoopConfig contains agent loop budgets.
type LoopConfig struct {
	MaxSteps        int  `toml:"max_steps"`
	MaxToolsPerStep int  `toml:"max_tools_per_step"`
	ToolTimeoutSecs int  `toml:"tool_timeout_seconds"`
	EnableJudge     bool `toml:"enable_judge"`
	EnablePreflight bool `toml:"enable_preflight"`
}

// IndexConfig contains retrieval index settings.
type IndexConfig struct {
	Name         string `toml:"name"`
	WatchEnabled bool   `toml:"watch_enabled"`
	DebounceMs   int    `toml:"debounce_ms"`
}

// QueueConfig contains default task budgets.
type QueueConfig struct {
	DefaultMaxToolCalls int `toml:"default_max_tool_calls"`
	DefaultMaxSteps     int `toml:"default_max_steps"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// DefaultConfig returns the default configuration. Environment variables
// AGENTCORE_WORKSPACE, AGENTCORE_API_KEY, and AGENTCORE_MODEL override their
// corresponding fields.
func DefaultConfig() *Config {
	cfg := &Config{
		Workspace: WorkspaceConfig{
			Root:              "./workspace",
			MaxSizeGB:         5.0,
			MinFreeRAMPercent: 10.0,
			AllowProjectRead:  true,
		},
		Gateway: GatewayConfig{
			Provider:            "openai",
			Model:               "gpt-4o-mini",
			EscalationThreshold: 3,
			EmbeddingModel:      "text-embedding-3-small",
			Temperature:         0.7,
			MaxTokens:           4096,
			TimeoutSecs:         120,
		},
		Loop: LoopConfig{
			MaxSteps:        50,
			MaxToolsPerStep: 10,
			ToolTimeoutSecs: 30,
			EnableJudge:     true,
			EnablePreflight: true,
		},
		Index: IndexConfig{
			Name:         "vectorgit",
			WatchEnabled: false,
			DebounceMs:   500,
		},
		Queue: QueueConfig{
			DefaultMaxToolCalls: 30,
			DefaultMaxSteps:     50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}

	applyEnv(cfg)
	return cfg
}

// Load reads a TOML config file and merges it over the defaults. A missing
// path returns the defaults without error.
func Load(path string) (*Config, error) {
	// Load .env before resolving environment overrides. Missing .env is fine.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}
	if c.Workspace.MaxSizeGB <= 0 {
		return fmt.Errorf("workspace.max_size_gb must be positive")
	}
	if c.Loop.MaxSteps <= 0 {
		return fmt.Errorf("loop.max_steps must be positive")
	}
	if c.Loop.MaxToolsPerStep <= 0 {
		return fmt.Errorf("loop.max_tools_per_step must be positive")
	}
	return nil
}

// QueueDir returns the queue directory under the workspace root.
func (c *Config) QueueDir() string {
	return filepath.Join(c.Workspace.Root, "queue")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AGENTCORE_WORKSPACE"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("AGENTCORE_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("AGENTCORE_MODEL"); v != "" {
		cfg.Gateway.Model = v
	}
	if v := os.Getenv("AGENTCORE_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Loop.MaxSteps = n
		}
	}
}
