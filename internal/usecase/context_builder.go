package usecase

import (
	"time"

	"scribe-ai/internal/domain"
)

// ContextBuilder assembles the provider request for each loop iteration:
// system prompt first, then the full conversation history, plus the fixed
// tool definitions. History is never truncated here; the ContextGuard warns
// when it grows past the configured budget.
type ContextBuilder struct {
	systemPrompt string
	model        string
	maxTokens    int
	temperature  float64
}

// NewContextBuilder creates a builder for the given model settings.
func NewContextBuilder(systemPrompt, model string, maxTokens int, temperature float64) *ContextBuilder {
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		model:        model,
		maxTokens:    maxTokens,
		temperature:  temperature,
	}
}

// Model returns the model the builder targets.
func (cb *ContextBuilder) Model() string { return cb.model }

// Build assembles a ChatRequest from the history and tool schemas.
func (cb *ContextBuilder) Build(history []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	messages := make([]domain.Message, 0, 1+len(history))

	if cb.systemPrompt != "" {
		messages = append(messages, domain.Message{
			Role:      domain.RoleSystem,
			Content:   cb.systemPrompt,
			Timestamp: time.Now(),
		})
	}
	messages = append(messages, history...)

	return domain.ChatRequest{
		Model:       cb.model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   cb.maxTokens,
		Temperature: cb.temperature,
	}
}
