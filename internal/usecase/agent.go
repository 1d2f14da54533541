package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"scribe-ai/internal/domain"
	"scribe-ai/internal/infra/tracer"
)

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM           domain.LLMProvider
	Tools         domain.ToolExecutor
	Builder       *ContextBuilder
	Logger        *slog.Logger
	MaxIterations int
	Timeout       time.Duration // per-turn bound, 0 = none
	Guard         *ContextGuard // optional, nil = no budget warning
}

// Agent drives the receive-think-act loop: call the model with the full
// conversation, dispatch any tool calls synchronously in order, feed the
// results back, and repeat until the model answers without tools.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 10
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Agent{deps: deps}
}

// TurnResult is the outcome of one completed agent turn.
type TurnResult struct {
	Message      domain.Message // final assistant reply, already appended
	FinishReason string
	Usage        domain.Usage // summed across all provider calls in the turn
	Iterations   int
}

// RunTurn appends the user message and drives the loop until the model
// replies without tool calls or the iteration bound is hit. Tool failures
// are fed back to the model in-band and never abort the turn; provider
// failures do. On ErrMaxIterations the conversation keeps everything that
// happened so far.
func (a *Agent) RunTurn(ctx context.Context, conv *Conversation, userMsg string) (*TurnResult, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.turn",
		trace.WithAttributes(tracer.StringAttr("conversation.id", conv.ID())),
	)
	defer span.End()

	if a.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.deps.Timeout)
		defer cancel()
	}

	conv.AddMessage(domain.Message{
		Role:      domain.RoleUser,
		Content:   userMsg,
		Timestamp: time.Now(),
	})
	a.logState(conv, domain.StateAwaitingModelResponse)

	if a.deps.Guard != nil {
		a.deps.Guard.Check(conv.Messages())
	}

	var usage domain.Usage
	for i := 0; i < a.deps.MaxIterations; i++ {
		req := a.deps.Builder.Build(conv.Messages(), a.deps.Tools.Schemas())

		resp, err := a.deps.LLM.Chat(ctx, req)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, domain.WrapOp("Agent.RunTurn", err)
		}
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		msg := resp.Message
		conv.AddMessage(msg)

		if len(msg.ToolCalls) == 0 {
			a.logState(conv, domain.StateDone)
			tracer.SetOK(span)
			span.SetAttributes(tracer.IntAttr("agent.iterations", i+1))
			return &TurnResult{
				Message:      msg,
				FinishReason: resp.FinishReason,
				Usage:        usage,
				Iterations:   i + 1,
			}, nil
		}

		a.logState(conv, domain.StateDispatchingTool)
		// Dispatch sequentially in reply order; each result lands in the
		// conversation before the next tool runs.
		for _, call := range msg.ToolCalls {
			conv.AddMessage(a.executeTool(ctx, conv, call))
		}
		a.logState(conv, domain.StateAwaitingModelResponse)
	}

	err := domain.NewDomainError("Agent.RunTurn", domain.ErrMaxIterations,
		fmt.Sprintf("no final answer after %d iterations", a.deps.MaxIterations))
	tracer.RecordError(span, err)
	return nil, err
}

// executeTool runs a single tool call and returns the result as a tool-role
// Message carrying the originating call ID. Results are cached by call ID so
// a re-issued ID is answered from the cache without re-executing.
func (a *Agent) executeTool(ctx context.Context, conv *Conversation, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	cache := conv.ToolCache()
	if cached, ok := cache.Get(call.ID); ok {
		a.deps.Logger.Debug("tool result served from cache",
			"tool", call.Name, "call_id", call.ID)
		tracer.SetOK(span)
		return toolMessage(call, cached)
	}

	result := a.dispatch(ctx, call)
	if result.IsError {
		tracer.RecordError(span, fmt.Errorf("%s", result.Content))
	} else {
		tracer.SetOK(span)
	}
	cache.Put(call.ID, result)
	return toolMessage(call, result)
}

// dispatch resolves and executes the named tool. Failures come back as error
// results, never as Go errors.
func (a *Agent) dispatch(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	t, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		a.deps.Logger.Warn("unknown tool requested", "tool", call.Name)
		return &domain.ToolResult{ToolCallID: call.ID, IsError: true, Content: err.Error()}
	}

	result, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		return &domain.ToolResult{ToolCallID: call.ID, IsError: true, Content: err.Error()}
	}
	result.ToolCallID = call.ID
	return result
}

// toolMessage wraps a result as a tool-role Message. ToolCalls[0] carries the
// originating call ID so providers can correlate the result.
func toolMessage(call domain.ToolCall, result *domain.ToolResult) domain.Message {
	return domain.Message{
		Role:      domain.RoleTool,
		Name:      call.Name,
		Content:   result.Content,
		ToolCalls: []domain.ToolCall{{ID: call.ID, Name: call.Name}},
		Timestamp: time.Now(),
	}
}

func (a *Agent) logState(conv *Conversation, s domain.AgentState) {
	a.deps.Logger.Debug("agent state", "conversation_id", conv.ID(), "state", s)
}
