package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe-ai/internal/domain"
)

func TestAgent_DirectAnswer(t *testing.T) {
	llm := &mockLLM{results: []llmResult{assistantReply("Paris.")}}
	agent := newTestAgent(llm, nil)
	conv := NewConversation()

	result, err := agent.RunTurn(context.Background(), conv, "Capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", result.Message.Content)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 1, llm.CallCount())

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
}

func TestAgent_SingleToolRound(t *testing.T) {
	llm := &mockLLM{results: []llmResult{
		toolCallReply(domain.ToolCall{ID: "call_1", Name: "read_file", Arguments: json.RawMessage(`{"path":"notes.txt"}`)}),
		assistantReply("The file says hello."),
	}}
	reader := &capturingTool{name: "read_file", result: "hello"}
	agent := newTestAgent(llm, map[string]domain.Tool{"read_file": reader})
	conv := NewConversation()

	result, err := agent.RunTurn(context.Background(), conv, "What does notes.txt say?")
	require.NoError(t, err)
	assert.Equal(t, "The file says hello.", result.Message.Content)
	assert.Equal(t, 2, result.Iterations)
	require.Equal(t, 1, reader.CallCount())
	assert.JSONEq(t, `{"path":"notes.txt"}`, string(reader.calls[0]))

	msgs := conv.Messages()
	require.Len(t, msgs, 4) // user, assistant(tool_calls), tool, assistant
	assert.Equal(t, domain.RoleTool, msgs[2].Role)
	assert.Equal(t, "hello", msgs[2].Content)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[2].ToolCalls[0].ID)
}

func TestAgent_SequentialDispatchOrder(t *testing.T) {
	var order []string
	alpha := &capturingTool{name: "alpha", result: "a", order: &order}
	beta := &capturingTool{name: "beta", result: "b", order: &order}
	gamma := &capturingTool{name: "gamma", result: "c", order: &order}

	llm := &mockLLM{results: []llmResult{
		toolCallReply(
			domain.ToolCall{ID: "c1", Name: "alpha", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "c2", Name: "beta", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "c3", Name: "gamma", Arguments: json.RawMessage(`{}`)},
		),
		assistantReply("done"),
	}}
	agent := newTestAgent(llm, map[string]domain.Tool{"alpha": alpha, "beta": beta, "gamma": gamma})
	conv := NewConversation()

	_, err := agent.RunTurn(context.Background(), conv, "go")
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, order,
		"tools must run one at a time in reply order")

	msgs := conv.Messages()
	require.Len(t, msgs, 6) // user, assistant, tool x3, assistant
	assert.Equal(t, "c1", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, "c2", msgs[3].ToolCalls[0].ID)
	assert.Equal(t, "c3", msgs[4].ToolCalls[0].ID)
}

func TestAgent_ToolErrorContinuesLoop(t *testing.T) {
	llm := &mockLLM{results: []llmResult{
		toolCallReply(domain.ToolCall{ID: "c1", Name: "read_file", Arguments: json.RawMessage(`{"path":"x"}`)}),
		assistantReply("The file could not be read."),
	}}
	failing := &capturingTool{name: "read_file", result: "read file: no such file", isErr: true}
	agent := newTestAgent(llm, map[string]domain.Tool{"read_file": failing})
	conv := NewConversation()

	result, err := agent.RunTurn(context.Background(), conv, "read x")
	require.NoError(t, err, "tool failure must not abort the turn")
	assert.Equal(t, "The file could not be read.", result.Message.Content)

	// The model saw the failure in-band on the next call.
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, domain.RoleTool, last.Role)
	assert.Contains(t, last.Content, "no such file")
}

func TestAgent_UnknownToolReportedInBand(t *testing.T) {
	llm := &mockLLM{results: []llmResult{
		toolCallReply(domain.ToolCall{ID: "c1", Name: "launch_rocket", Arguments: json.RawMessage(`{}`)}),
		assistantReply("I don't have that tool."),
	}}
	agent := newTestAgent(llm, nil)
	conv := NewConversation()

	_, err := agent.RunTurn(context.Background(), conv, "launch")
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.RoleTool, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "tool not found")
}

func TestAgent_MaxIterations(t *testing.T) {
	echo := &capturingTool{name: "echo", result: "ok"}
	var results []llmResult
	for i := 0; i < 5; i++ {
		results = append(results, toolCallReply(
			domain.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "echo", Arguments: json.RawMessage(`{}`)}))
	}
	llm := &mockLLM{results: results}
	agent := newTestAgent(llm, map[string]domain.Tool{"echo": echo}, func(d *AgentDeps) {
		d.MaxIterations = 3
	})
	conv := NewConversation()

	_, err := agent.RunTurn(context.Background(), conv, "loop forever")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMaxIterations)
	assert.Equal(t, 3, llm.CallCount())
	// user + 3 x (assistant + tool result): everything is retained.
	assert.Equal(t, 7, conv.Len())
}

func TestAgent_CacheReplay(t *testing.T) {
	echo := &capturingTool{name: "echo", result: "first run"}
	llm := &mockLLM{results: []llmResult{
		toolCallReply(domain.ToolCall{ID: "dup", Name: "echo", Arguments: json.RawMessage(`{}`)}),
		toolCallReply(domain.ToolCall{ID: "dup", Name: "echo", Arguments: json.RawMessage(`{}`)}),
		assistantReply("done"),
	}}
	agent := newTestAgent(llm, map[string]domain.Tool{"echo": echo})
	conv := NewConversation()

	_, err := agent.RunTurn(context.Background(), conv, "go")
	require.NoError(t, err)

	assert.Equal(t, 1, echo.CallCount(), "re-issued call ID must be served from cache")

	msgs := conv.Messages()
	require.Len(t, msgs, 6) // user, assistant, tool, assistant, tool, assistant
	assert.Equal(t, msgs[2].Content, msgs[4].Content)
}

func TestAgent_ProviderErrorAborts(t *testing.T) {
	llm := &mockLLM{results: []llmResult{
		{err: domain.NewDomainError("chat", domain.ErrProviderError, "upstream 500")},
	}}
	agent := newTestAgent(llm, nil)
	conv := NewConversation()

	_, err := agent.RunTurn(context.Background(), conv, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	// Only the user message landed.
	assert.Equal(t, 1, conv.Len())
}

func TestAgent_SystemPromptNotStored(t *testing.T) {
	llm := &mockLLM{results: []llmResult{assistantReply("hi")}}
	agent := newTestAgent(llm, nil)
	conv := NewConversation()

	_, err := agent.RunTurn(context.Background(), conv, "hello")
	require.NoError(t, err)

	// The request carried the system prompt...
	reqs := llm.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, domain.RoleSystem, reqs[0].Messages[0].Role)
	// ...but the conversation itself stores only user/assistant messages.
	for _, m := range conv.Messages() {
		assert.NotEqual(t, domain.RoleSystem, m.Role)
	}
}

func TestAgent_MultiTurnHistoryGrows(t *testing.T) {
	llm := &mockLLM{results: []llmResult{
		assistantReply("Hi! I'm here to help."),
		assistantReply("Go is great for backend work."),
	}}
	agent := newTestAgent(llm, nil)
	conv := NewConversation()

	_, err := agent.RunTurn(context.Background(), conv, "Hello!")
	require.NoError(t, err)
	_, err = agent.RunTurn(context.Background(), conv, "Tell me about Go")
	require.NoError(t, err)

	require.Equal(t, 4, conv.Len())
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	// Second call saw the whole first turn plus the new prompt.
	assert.Len(t, reqs[1].Messages, 4) // system, user, assistant, user
}

func TestAgent_UsageSummed(t *testing.T) {
	r1 := toolCallReply(domain.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)})
	r1.resp.Usage = domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	r2 := assistantReply("done")
	r2.resp.Usage = domain.Usage{PromptTokens: 20, CompletionTokens: 7, TotalTokens: 27}

	echo := &capturingTool{name: "echo", result: "ok"}
	llm := &mockLLM{results: []llmResult{r1, r2}}
	agent := newTestAgent(llm, map[string]domain.Tool{"echo": echo})

	result, err := agent.RunTurn(context.Background(), NewConversation(), "go")
	require.NoError(t, err)
	assert.Equal(t, 30, result.Usage.PromptTokens)
	assert.Equal(t, 12, result.Usage.CompletionTokens)
	assert.Equal(t, 42, result.Usage.TotalTokens)
}
