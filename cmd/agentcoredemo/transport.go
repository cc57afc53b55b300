package main

import (
	"fmt"

	"goa.design/agentcore/providers/anthropic"
	"goa.design/agentcore/providers/openai"
	"goa.design/agentcore/tools"
	"goa.design/agentcore/turnloop"
)

func buildTransport(cfg *Config, registry *tools.Registry) (turnloop.Transport, error) {
	switch cfg.Provider {
	case "anthropic":
		ac := cfg.Anthropic
		if ac == nil {
			ac = &AnthropicConfig{}
		}
		return anthropic.New(anthropic.Options{
			APIKey:         apiKey(ac.APIKeyEnv, "ANTHROPIC_API_KEY"),
			Model:          cfg.Model,
			MaxTokens:      cfg.MaxTokens,
			Temperature:    cfg.Temperature,
			ThinkingBudget: ac.ThinkingBudget,
			System:         cfg.SystemPrompt,
		}, registry)
	case "openai":
		oc := cfg.OpenAI
		if oc == nil {
			oc = &OpenAIConfig{}
		}
		return openai.New(openai.Options{
			APIKey:      apiKey(oc.APIKeyEnv, "OPENAI_API_KEY"),
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			System:      cfg.SystemPrompt,
		}, registry)
	default:
		return nil, fmt.Errorf("unknown provider %q (want \"anthropic\" or \"openai\")", cfg.Provider)
	}
}
