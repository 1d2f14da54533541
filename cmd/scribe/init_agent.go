package main

import (
	"fmt"
	"log/slog"

	"scribe-ai/internal/adapter/llm"
	"scribe-ai/internal/adapter/tool"
	"scribe-ai/internal/domain"
	"scribe-ai/internal/infra/config"
	"scribe-ai/internal/security"
	"scribe-ai/internal/usecase"
)

// AgentComponents bundles the agent loop with its tool registry.
type AgentComponents struct {
	Agent    *usecase.Agent
	Registry *tool.Registry
}

// initAgent wires the sandbox, tools, context builder, and optional token
// guard into a ready agent for the resolved default provider.
func initAgent(cfg *config.Config, provider domain.LLMProvider, log *slog.Logger) (*AgentComponents, error) {
	sandbox, err := security.NewSandbox(cfg.Tools.SandboxRoot)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	registry := tool.NewRegistry(log)
	tools := []domain.Tool{
		tool.NewReadFileTool(tool.NewLocalFileBackend(), sandbox, cfg.Tools.ReadFileMax, log),
		tool.NewPythonTool(tool.NewLocalPythonRunner(cfg.Tools.PythonBin, cfg.Tools.PythonTimeout), cfg.Tools.PythonOutputMax, log),
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}

	pc := cfg.DefaultProvider()
	if pc == nil {
		return nil, fmt.Errorf("default provider %q is not configured", cfg.LLM.DefaultProvider)
	}
	builder := usecase.NewContextBuilder(cfg.Agent.SystemPrompt, pc.Model, pc.MaxTokens, pc.Temperature)

	var guard *usecase.ContextGuard
	if cfg.Agent.ContextGuard.Enabled {
		counter, err := llm.NewTokenCounter(cfg.Agent.ContextGuard.Encoding)
		if err != nil {
			log.Warn("context guard disabled: token encoding unavailable", "error", err)
		} else {
			guard = usecase.NewContextGuard(cfg.Agent.ContextGuard.MaxTokens, counter, log)
		}
	}

	agent := usecase.NewAgent(usecase.AgentDeps{
		LLM:           provider,
		Tools:         registry,
		Builder:       builder,
		Logger:        log,
		MaxIterations: cfg.Agent.MaxIterations,
		Timeout:       cfg.Agent.Timeout,
		Guard:         guard,
	})

	return &AgentComponents{Agent: agent, Registry: registry}, nil
}
