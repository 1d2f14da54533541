package usecase

import (
	"sync"

	"scribe-ai/internal/domain"
)

// ResultCache remembers tool results by tool-call ID so a call the provider
// re-issues under the same ID is answered without re-executing. Call IDs are
// only unique within one conversation, so scope one cache per conversation.
type ResultCache struct {
	mu      sync.Mutex
	results map[string]*domain.ToolResult
}

// NewResultCache creates an empty result cache.
func NewResultCache() *ResultCache {
	return &ResultCache{results: make(map[string]*domain.ToolResult)}
}

// Get returns the cached result for a call ID, if any.
func (c *ResultCache) Get(callID string) (*domain.ToolResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[callID]
	return r, ok
}

// Put stores a result under its call ID. Empty IDs are ignored.
func (c *ResultCache) Put(callID string, r *domain.ToolResult) {
	if callID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[callID] = r
}

// Len reports the number of cached results.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
