//go:build integration
// +build integration

// Package integration exercises the fully wired service: real provider
// adapter, agent loop, tools, SQLite store, and the public HTTP surface.
// The upstream LLM API is a local scripted stand-in, so the suite needs
// no credentials and no network.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scribe-ai/internal/adapter/httpapi"
	"scribe-ai/internal/adapter/llm"
	"scribe-ai/internal/adapter/tool"
	"scribe-ai/internal/infra/config"
	"scribe-ai/internal/security"
	"scribe-ai/internal/store"
	"scribe-ai/internal/usecase"
)

// stubTurn scripts one upstream completion. A non-zero status serves an
// error body instead.
type stubTurn struct {
	content   string
	toolCalls []stubCall
	status    int
	errBody   string
}

type stubCall struct {
	id   string
	name string
	args string
}

// stubRequest captures the fields of an upstream request the tests
// assert on.
type stubRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
	Tools []struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
}

// openaiStub speaks the chat completions wire format with scripted
// replies. Requests past the script get a plain "done" answer.
type openaiStub struct {
	mu    sync.Mutex
	turns []stubTurn
	idx   int
	reqs  []stubRequest
}

func (s *openaiStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req stubRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.reqs = append(s.reqs, req)
		turn := stubTurn{content: "done"}
		if s.idx < len(s.turns) {
			turn = s.turns[s.idx]
		}
		s.idx++
		n := s.idx
		s.mu.Unlock()

		if turn.status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(turn.status)
			fmt.Fprint(w, turn.errBody)
			return
		}

		msg := map[string]any{"role": "assistant", "content": turn.content}
		finish := "stop"
		if len(turn.toolCalls) > 0 {
			calls := make([]map[string]any, len(turn.toolCalls))
			for i, c := range turn.toolCalls {
				calls[i] = map[string]any{
					"id":   c.id,
					"type": "function",
					"function": map[string]any{
						"name":      c.name,
						"arguments": c.args,
					},
				}
			}
			msg["tool_calls"] = calls
			finish = "tool_calls"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      fmt.Sprintf("chatcmpl-%d", n),
			"model":   req.Model,
			"created": time.Now().Unix(),
			"choices": []map[string]any{{
				"index":         0,
				"message":       msg,
				"finish_reason": finish,
			}},
			"usage": map[string]int{
				"prompt_tokens":     12,
				"completion_tokens": 7,
				"total_tokens":      19,
			},
		})
	})
	return mux
}

func (s *openaiStub) requests() []stubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stubRequest(nil), s.reqs...)
}

func (s *openaiStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// components is the wired core below the HTTP layer.
type components struct {
	provider *llm.OpenAIProvider
	registry *llm.Registry
	agent    *usecase.Agent
	sandbox  string
}

// newComponents stands up the stub backend and wires the real provider,
// tool registry, and agent against it.
func newComponents(t *testing.T, turns []stubTurn) (*components, *openaiStub) {
	t.Helper()

	stub := &openaiStub{turns: turns}
	backend := httptest.NewServer(stub.handler())
	t.Cleanup(backend.Close)

	log := discardLogger()

	provider := llm.NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai",
		Type:    "openai",
		BaseURL: backend.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		Models:  []string{"gpt-4o-mini"},
	}, log)

	registry := llm.NewRegistry()
	if err := registry.Register(provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	sandboxDir := t.TempDir()
	sandbox, err := security.NewSandbox(sandboxDir)
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}

	toolReg := tool.NewRegistry(log)
	if err := toolReg.Register(tool.NewReadFileTool(tool.NewLocalFileBackend(), sandbox, 0, log)); err != nil {
		t.Fatalf("register tool: %v", err)
	}

	agent := usecase.NewAgent(usecase.AgentDeps{
		LLM:           provider,
		Tools:         toolReg,
		Builder:       usecase.NewContextBuilder("You are a test assistant.", "gpt-4o-mini", 512, 0.2),
		Logger:        log,
		MaxIterations: 4,
	})

	return &components{
		provider: provider,
		registry: registry,
		agent:    agent,
		sandbox:  sandboxDir,
	}, stub
}

// stack is a running service instance: newComponents plus a SQLite-backed
// thread manager and the HTTP server listening on a loopback port.
type stack struct {
	base    string
	stub    *openaiStub
	sandbox string
}

func newStack(t *testing.T, turns []stubTurn) *stack {
	t.Helper()

	core, stub := newComponents(t, turns)

	dbPath := filepath.Join(t.TempDir(), "threads.db")
	st, err := store.NewThreadStore(dbPath)
	if err != nil {
		t.Fatalf("thread store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	threads := usecase.NewThreadManager(st, core.agent, discardLogger())

	srv := httpapi.NewServer(config.ServerConfig{
		Addr:           "127.0.0.1:0",
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, httpapi.Deps{
		Provider:    core.provider,
		Model:       "gpt-4o-mini",
		MaxTokens:   512,
		Temperature: 0.2,
		Registry:    core.registry,
		Agent:       core.agent,
		Threads:     threads,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		srv.Stop(sctx)
		cancel()
	})

	return &stack{
		base:    "http://" + srv.BoundAddr(),
		stub:    stub,
		sandbox: core.sandbox,
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
