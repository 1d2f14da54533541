package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"scribe-ai/internal/adapter/llm"
	"scribe-ai/internal/domain"
	"scribe-ai/internal/infra/config"
	"scribe-ai/internal/infra/middleware"
	"scribe-ai/internal/usecase"
)

// Deps holds everything the API serves. Nil optional fields disable the
// surface they back.
type Deps struct {
	Provider    domain.LLMProvider // serves /completion and /structured
	Model       string             // model requested from the provider
	MaxTokens   int
	Temperature float64
	Registry    *llm.Registry          // serves /models; can be nil
	Agent       *usecase.Agent         // drives /ws turns; can be nil (WS disabled)
	Threads     *usecase.ThreadManager // serves /threads; can be nil (threads disabled)
}

// Server owns the HTTP surface: the completion and structured endpoints,
// the model catalog, the thread REST API, WebSocket chat, and liveness.
type Server struct {
	cfg       config.ServerConfig
	deps      Deps
	logger    *slog.Logger
	startTime time.Time

	httpSrv   *http.Server
	boundAddr string
	cancel    context.CancelFunc
}

// NewServer creates an API server; Start brings up the listener.
func NewServer(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		startTime: time.Now(),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /completion", s.handleCompletion)
	mux.HandleFunc("POST /structured", s.handleStructured)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("GET /uptime", s.handleUptime)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.deps.Agent != nil {
		mux.HandleFunc("GET /ws", s.handleWS)
	}
	if s.deps.Threads != nil {
		mux.HandleFunc("POST /threads", s.handleThreadCreate)
		mux.HandleFunc("GET /threads", s.handleThreadList)
		mux.HandleFunc("GET /threads/{id}", s.handleThreadGet)
		mux.HandleFunc("DELETE /threads/{id}", s.handleThreadDelete)
		mux.HandleFunc("POST /threads/{id}/messages", s.handleThreadMessage)
	}
	return mux
}

// Handler returns the fully assembled handler: routes wrapped in security
// headers and per-IP rate limiting. The context bounds the rate limiter's
// cleanup goroutine.
func (s *Server) Handler(ctx context.Context) http.Handler {
	rps := s.cfg.RateLimitRPS
	if rps <= 0 {
		rps = 100
	}
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	return middleware.SecurityHeaders(
		middleware.RateLimit(ctx, rps, burst)(s.routes()),
	)
}

// Start begins the HTTP server. Non-blocking; Stop shuts it down.
func (s *Server) Start(ctx context.Context) error {
	srvCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(srvCtx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("http api started", "addr", s.boundAddr)
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }
