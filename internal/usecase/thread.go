package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"scribe-ai/internal/domain"
)

// ThreadStore persists threads and their ordered messages.
type ThreadStore interface {
	CreateThread(ctx context.Context, title string) (*domain.Thread, error)
	GetThread(ctx context.Context, id string) (*domain.Thread, error)
	ListThreads(ctx context.Context) ([]*domain.Thread, error)
	DeleteThread(ctx context.Context, id string) error
	AppendMessages(ctx context.Context, threadID string, msgs []domain.Message) error
}

// ThreadManager runs agent turns against persisted threads. Each post
// loads the stored history, runs one turn, and appends the turn's new
// messages back to the store. Turns on the same thread are serialized.
type ThreadManager struct {
	store  ThreadStore
	agent  *Agent
	locker *ThreadLocker
	logger *slog.Logger

	mu     sync.Mutex
	caches map[string]*ResultCache
}

// NewThreadManager wires a store and an agent together.
func NewThreadManager(store ThreadStore, agent *Agent, logger *slog.Logger) *ThreadManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThreadManager{
		store:  store,
		agent:  agent,
		locker: NewThreadLocker(),
		logger: logger,
		caches: make(map[string]*ResultCache),
	}
}

// Create starts a new empty thread. A blank title gets a default.
func (tm *ThreadManager) Create(ctx context.Context, title string) (*domain.Thread, error) {
	if strings.TrimSpace(title) == "" {
		title = "New thread"
	}
	return tm.store.CreateThread(ctx, title)
}

// List returns all threads, most recently updated first, without messages.
func (tm *ThreadManager) List(ctx context.Context) ([]*domain.Thread, error) {
	return tm.store.ListThreads(ctx)
}

// Get returns one thread with its full message history.
func (tm *ThreadManager) Get(ctx context.Context, id string) (*domain.Thread, error) {
	return tm.store.GetThread(ctx, id)
}

// Delete removes a thread, its messages, and its cached tool results.
func (tm *ThreadManager) Delete(ctx context.Context, id string) error {
	if err := tm.store.DeleteThread(ctx, id); err != nil {
		return err
	}
	tm.mu.Lock()
	delete(tm.caches, id)
	tm.mu.Unlock()
	return nil
}

// PostMessage appends a user message to the thread and runs one agent
// turn over the stored history. On success the turn's new messages are
// persisted; on failure the store is left untouched so the client can
// simply retry.
func (tm *ThreadManager) PostMessage(ctx context.Context, threadID, content string) (*TurnResult, error) {
	const op = "ThreadManager.PostMessage"
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "content is required")
	}

	unlock, err := tm.locker.Lock(ctx, threadID)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	defer unlock()

	th, err := tm.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	conv := NewConversation()
	conv.Seed(th.Messages)
	conv.RestoreCache(tm.cacheFor(threadID))

	result, err := tm.agent.RunTurn(ctx, conv, content)
	if err != nil {
		return nil, err
	}

	delta := conv.Messages()[len(th.Messages):]
	if err := tm.store.AppendMessages(ctx, threadID, delta); err != nil {
		return nil, domain.WrapOp(op, err)
	}
	tm.logger.Info("thread turn complete",
		"thread_id", threadID,
		"new_messages", len(delta),
		"iterations", result.Iterations)
	return result, nil
}

// cacheFor returns the thread's tool result cache, creating it on first use.
func (tm *ThreadManager) cacheFor(threadID string) *ResultCache {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	cache, ok := tm.caches[threadID]
	if !ok {
		cache = NewResultCache()
		tm.caches[threadID] = cache
	}
	return cache
}
