// Package config defines the Torque engine configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Torque configuration. The engine consumes
// these as already-resolved values; flags and env handling live in the
// front-end.
type Config struct {
	ProjectRoot string          `json:"project_root" yaml:"project_root"`
	DataDir     string          `json:"data_dir" yaml:"data_dir"`
	SessionID   string          `json:"session_id" yaml:"session_id"`
	Storage     string          `json:"storage" yaml:"storage"` // "file" or "sqlite"
	Cost        CostConfig      `json:"cost" yaml:"cost"`
	Generator   GeneratorConfig `json:"generator" yaml:"generator"`
	Rollback    bool            `json:"rollback,omitempty" yaml:"rollback"`
}

// CostConfig controls the cost-optimization toggles.
type CostConfig struct {
	UseTemplates      bool `json:"use_templates" yaml:"use_templates"`
	MinimizeGenerator bool `json:"minimize_generator" yaml:"minimize_generator"`
}

// GeneratorConfig selects and configures the external content generator.
type GeneratorConfig struct {
	Provider       string `json:"provider" yaml:"provider"` // "mock", "anthropic", "openai", or "" for none
	Model          string `json:"model,omitempty" yaml:"model"`
	APIKeyEnv      string `json:"api_key_env,omitempty" yaml:"api_key_env"`
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens      int    `json:"max_tokens,omitempty" yaml:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProjectRoot: "./project",
		DataDir:     "./data",
		SessionID:   "default",
		Storage:     "file",
		Cost: CostConfig{
			UseTemplates:      true,
			MinimizeGenerator: true,
		},
		Generator: GeneratorConfig{
			TimeoutSeconds: 60,
		},
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	switch c.Generator.Provider {
	case "", "mock", "anthropic", "openai":
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}
	if c.Generator.TimeoutSeconds < 0 {
		return fmt.Errorf("generator timeout must not be negative")
	}
	return nil
}
