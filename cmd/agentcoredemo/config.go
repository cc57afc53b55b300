package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape cmd/agentcoredemo loads with --config. The
// core itself takes no such configuration; this is demo-binary wiring only.
type Config struct {
	// Provider selects which providers/* adapter backs the run: "anthropic"
	// or "openai".
	Provider string `yaml:"provider"`

	Anthropic *AnthropicConfig `yaml:"anthropic,omitempty"`
	OpenAI    *OpenAIConfig    `yaml:"openai,omitempty"`

	SystemPrompt string  `yaml:"systemPrompt"`
	Model        string  `yaml:"model"`
	MaxTokens    int64   `yaml:"maxTokens"`
	Temperature  float64 `yaml:"temperature"`

	SessionID string        `yaml:"sessionID"`
	Redis     *RedisConfig  `yaml:"redis,omitempty"`
}

// AnthropicConfig holds provider-specific fields not already on Config.
type AnthropicConfig struct {
	APIKeyEnv      string `yaml:"apiKeyEnv"`
	ThinkingBudget int64  `yaml:"thinkingBudget"`
}

// OpenAIConfig holds provider-specific fields not already on Config.
type OpenAIConfig struct {
	APIKeyEnv string `yaml:"apiKeyEnv"`
}

// RedisConfig points at the replay sink.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Provider == "" {
		return nil, fmt.Errorf("config: provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("config: model is required")
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &cfg, nil
}

func apiKey(envVar, fallback string) string {
	if envVar == "" {
		envVar = fallback
	}
	return os.Getenv(envVar)
}
