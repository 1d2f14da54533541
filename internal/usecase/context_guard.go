package usecase

import (
	"log/slog"

	"scribe-ai/internal/domain"
)

// TokenCounter estimates token usage for a message history.
type TokenCounter interface {
	CountMessages(msgs []domain.Message) int
}

// ContextGuard warns when a conversation approaches the model's context
// window. Estimation only: nothing is truncated or compressed, and the
// provider stays the source of truth for hard limits.
type ContextGuard struct {
	maxTokens int
	counter   TokenCounter
	logger    *slog.Logger
}

// NewContextGuard creates a guard with the given token budget.
func NewContextGuard(maxTokens int, counter TokenCounter, logger *slog.Logger) *ContextGuard {
	if maxTokens <= 0 {
		maxTokens = 100000
	}
	return &ContextGuard{maxTokens: maxTokens, counter: counter, logger: logger}
}

// Check estimates the history's token count and logs a warning when it
// exceeds the budget. Returns the estimate and whether it was over.
func (g *ContextGuard) Check(msgs []domain.Message) (int, bool) {
	tokens := g.counter.CountMessages(msgs)
	over := tokens > g.maxTokens
	if over {
		g.logger.Warn("conversation exceeds context budget",
			"tokens", tokens,
			"budget", g.maxTokens,
			"messages", len(msgs),
		)
	}
	return tokens, over
}
