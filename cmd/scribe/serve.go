package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"scribe-ai/internal/adapter/httpapi"
	"scribe-ai/internal/infra/logger"
	"scribe-ai/internal/infra/tracer"
	"scribe-ai/internal/store"
	"scribe-ai/internal/usecase"
)

func runServe() error {
	// 1. Configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	// 2. Logger
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	// 3. Tracing
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
	}()

	// 4. LLM providers
	llmComponents, err := initLLM(cfg, log)
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}

	// 5. Agent and tools
	agentComponents, err := initAgent(cfg, llmComponents.DefaultLLM, log)
	if err != nil {
		return fmt.Errorf("init agent: %w", err)
	}

	// 6. Thread store
	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	threadStore, err := store.NewThreadStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open thread store: %w", err)
	}
	defer threadStore.Close()

	threads := usecase.NewThreadManager(threadStore, agentComponents.Agent, log)

	// 7. HTTP server
	pc := cfg.DefaultProvider()
	srv := httpapi.NewServer(cfg.Server, httpapi.Deps{
		Provider:    llmComponents.DefaultLLM,
		Model:       pc.Model,
		MaxTokens:   pc.MaxTokens,
		Temperature: pc.Temperature,
		Registry:    llmComponents.Registry,
		Agent:       agentComponents.Agent,
		Threads:     threads,
	}, log)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	log.Info("scribe serving",
		"addr", srv.BoundAddr(),
		"provider", llmComponents.DefaultLLM.Name(),
		"model", pc.Model,
		"tools", agentComponents.Registry.List(),
		"store", cfg.Store.Path,
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
