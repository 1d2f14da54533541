package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"scribe-ai/internal/domain"
)

// perMessageOverhead approximates the framing tokens each chat message
// costs on top of its content.
const perMessageOverhead = 4

// TokenCounter estimates token usage for conversation payloads.
// Counts are approximate for non-OpenAI models but close enough for
// budget enforcement.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter for the named tiktoken encoding,
// e.g. "cl100k_base".
func NewTokenCounter(encodingName string) (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encodingName, err)
	}
	return &TokenCounter{encoding: enc}, nil
}

// Count returns the token count of a single string.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// CountMessages returns the approximate token cost of a full message list,
// including tool call arguments and per-message framing overhead.
func (c *TokenCounter) CountMessages(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		total += c.Count(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.Count(tc.Name)
			total += c.Count(string(tc.Arguments))
		}
	}
	return total
}
