// Package server exposes the investigation engine over HTTP: a REST
// API for session lifecycle, a WebSocket stream of live events, and
// Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devdebug/devdebug-ai/internal/config"
	"github.com/devdebug/devdebug-ai/internal/db"
	"github.com/devdebug/devdebug-ai/internal/investigation"
	"github.com/devdebug/devdebug-ai/internal/llm"
	"github.com/devdebug/devdebug-ai/internal/middleware"
)

// Server hosts the HTTP API in front of one investigation controller.
type Server struct {
	port           int
	allowedOrigins []string

	controller *investigation.Controller
	store      db.Store
	model      llm.Client
	logger     *zap.Logger
	limiter    *middleware.RateLimiter

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer wires a Server. The controller and store are required.
func NewServer(cfg *config.Config, controller *investigation.Controller, store db.Store, model llm.Client, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if controller == nil {
		return nil, fmt.Errorf("controller cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		port:           cfg.Server.Port,
		allowedOrigins: cfg.Server.AllowedOrigins,
		controller:     controller,
		store:          store,
		model:          model,
		logger:         logger,
		limiter:        limiter,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start begins serving. Non-blocking; use Wait to block until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("http server listening", zap.Int("port", s.port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown error", zap.Error(err))
		}
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.cancel()
	s.wg.Wait()
	s.logger.Info("server stopped")
	return nil
}

// Wait blocks until the server is stopped.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether the server is accepting requests.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// routes builds the request mux. Factored out so tests can serve the
// handlers without binding a port.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	api := http.Handler(http.HandlerFunc(s.handleInvestigations))
	apiByID := http.Handler(http.HandlerFunc(s.handleInvestigationByID))
	if s.limiter != nil {
		api = s.limiter.Wrap(api)
		apiByID = s.limiter.Wrap(apiByID)
	}
	mux.Handle("/api/v1/investigations", api)
	mux.Handle("/api/v1/investigations/", apiByID)

	mux.HandleFunc("/ws/investigations/", s.handleInvestigationStream)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"reason": "database unreachable",
		})
		return
	}

	modelUp := s.model != nil && s.model.Available(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"model_available": modelUp,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}
