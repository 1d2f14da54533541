package main

import (
	"fmt"
	"log/slog"

	"scribe-ai/internal/adapter/llm"
	"scribe-ai/internal/domain"
	"scribe-ai/internal/infra/config"
)

// LLMComponents bundles the provider registry and the default provider.
type LLMComponents struct {
	Registry   *llm.Registry
	DefaultLLM domain.LLMProvider
}

// initLLM builds every configured provider, wraps each with a circuit
// breaker when enabled, and resolves the default.
func initLLM(cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	registry := llm.NewRegistry()

	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}

		if cfg.LLM.CircuitBreaker.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
			log.Debug("llm circuit breaker enabled", "provider", pc.Name)
		}

		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	defaultLLM, err := registry.Get(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("resolve default provider: %w", err)
	}

	return &LLMComponents{Registry: registry, DefaultLLM: defaultLLM}, nil
}

func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai", "":
		return llm.NewOpenAIProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}
