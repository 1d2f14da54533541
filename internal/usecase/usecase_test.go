package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe-ai/internal/domain"
)

// --- shared mocks ---

type llmResult struct {
	resp *domain.ChatResponse
	err  error
}

// mockLLM replays scripted results and records every request it saw.
type mockLLM struct {
	mu       sync.Mutex
	results  []llmResult
	idx      int
	requests []domain.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.idx >= len(m.results) {
		return &domain.ChatResponse{
			Message:      domain.Message{Role: domain.RoleAssistant, Content: "fallback"},
			FinishReason: "stop",
		}, nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.resp, r.err
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockLLM) Requests() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.ChatRequest, len(m.requests))
	copy(cp, m.requests)
	return cp
}

// assistantReply builds a final no-tool response.
func assistantReply(content string) llmResult {
	return llmResult{resp: &domain.ChatResponse{
		Message:      domain.Message{Role: domain.RoleAssistant, Content: content},
		FinishReason: "stop",
	}}
}

// toolCallReply builds a response issuing the given tool calls.
func toolCallReply(calls ...domain.ToolCall) llmResult {
	return llmResult{resp: &domain.ChatResponse{
		Message:      domain.Message{Role: domain.RoleAssistant, ToolCalls: calls},
		FinishReason: "tool_calls",
	}}
}

type mockToolExecutor struct {
	tools map[string]domain.Tool
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.NewDomainError("mockToolExecutor.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema {
	schemas := make([]domain.ToolSchema, 0, len(m.tools))
	for _, t := range m.tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// capturingTool records each invocation and returns a configured result.
// When order is set, executed tool names are appended to it so tests can
// observe dispatch sequencing.
type capturingTool struct {
	name   string
	result string
	isErr  bool
	mu     sync.Mutex
	calls  []json.RawMessage
	order  *[]string
}

func (t *capturingTool) Name() string        { return t.name }
func (t *capturingTool) Description() string { return t.name + " tool" }
func (t *capturingTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.name,
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}
}

func (t *capturingTool) Execute(_ context.Context, args json.RawMessage) (*domain.ToolResult, error) {
	t.mu.Lock()
	t.calls = append(t.calls, args)
	if t.order != nil {
		*t.order = append(*t.order, t.name)
	}
	t.mu.Unlock()
	return &domain.ToolResult{Content: t.result, IsError: t.isErr}, nil
}

func (t *capturingTool) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func newTestLogger() *slog.Logger { return slog.Default() }

func newTestAgent(llm *mockLLM, tools map[string]domain.Tool, opts ...func(*AgentDeps)) *Agent {
	deps := AgentDeps{
		LLM:           llm,
		Tools:         &mockToolExecutor{tools: tools},
		Builder:       NewContextBuilder("You are a helpful assistant.", "test-model", 1024, 0),
		Logger:        newTestLogger(),
		MaxIterations: 10,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return NewAgent(deps)
}

// --- ContextBuilder tests ---

func TestContextBuilder_SystemPromptFirst(t *testing.T) {
	cb := NewContextBuilder("You are a test bot.", "test-model", 512, 0.2)

	history := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}
	schemas := []domain.ToolSchema{{Name: "read_file"}}

	req := cb.Build(history, schemas)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "You are a test bot.", req.Messages[0].Content)
	assert.Equal(t, "hi", req.Messages[1].Content)
	assert.Equal(t, "hello", req.Messages[2].Content)
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, 512, req.MaxTokens)
	assert.InDelta(t, 0.2, req.Temperature, 1e-9)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "read_file", req.Tools[0].Name)
}

func TestContextBuilder_NoSystemPrompt(t *testing.T) {
	cb := NewContextBuilder("", "test-model", 0, 0)

	req := cb.Build([]domain.Message{{Role: domain.RoleUser, Content: "hi"}}, nil)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, domain.RoleUser, req.Messages[0].Role)
}

func TestContextBuilder_HistoryNotMutated(t *testing.T) {
	cb := NewContextBuilder("sys", "m", 0, 0)

	history := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}
	req := cb.Build(history, nil)

	req.Messages[1].Content = "changed"
	assert.Equal(t, "hi", history[0].Content)
}
