package usecase

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"scribe-ai/internal/domain"
)

// Conversation is an in-memory message history for one chat. History
// accumulates across turns until the process exits or Reset is called;
// durable threads live in the store instead.
type Conversation struct {
	mu        sync.RWMutex
	id        string
	msgs      []domain.Message
	cache     *ResultCache
	createdAt time.Time
	updatedAt time.Time
}

// NewConversation creates an empty conversation with a generated ULID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		id:        NewULID(now),
		msgs:      make([]domain.Message, 0),
		cache:     NewResultCache(),
		createdAt: now,
		updatedAt: now,
	}
}

// NewULID generates a lexicographically sortable unique ID for the given time.
func NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ID returns the conversation's ULID.
func (c *Conversation) ID() string {
	return c.id
}

// AddMessage appends a message and updates the timestamp (thread-safe).
func (c *Conversation) AddMessage(msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.msgs = append(c.msgs, msg)
	c.updatedAt = time.Now()
}

// Messages returns a copy of the message history (thread-safe).
func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make([]domain.Message, len(c.msgs))
	copy(cp, c.msgs)
	return cp
}

// Len reports the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.msgs)
}

// Reset clears the history and tool cache but keeps the conversation ID.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = c.msgs[:0]
	c.cache = NewResultCache()
	c.updatedAt = time.Now()
}

// Seed replaces the history with stored messages, e.g. when resuming a
// persisted thread. The tool cache is kept.
func (c *Conversation) Seed(msgs []domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = make([]domain.Message, len(msgs))
	copy(c.msgs, msgs)
	c.updatedAt = time.Now()
}

// RestoreCache swaps in a previously captured tool result cache so that
// replay state follows a thread across turns. A nil cache is ignored.
func (c *Conversation) RestoreCache(cache *ResultCache) {
	if cache == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = cache
}

// ToolCache returns the conversation-scoped tool result cache.
func (c *Conversation) ToolCache() *ResultCache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache
}
