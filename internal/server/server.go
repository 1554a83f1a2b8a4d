// Package server provides the HTTP server of the motion judgment service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/heungbuja/motionjudge/internal/engine"
	"github.com/heungbuja/motionjudge/internal/server/api"
	"github.com/heungbuja/motionjudge/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Engine    *engine.Engine
	Store     *store.Store
	Logger    *slog.Logger
	// ShutdownTimeout bounds graceful shutdown in Run. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// Server represents the HTTP server of the motion judgment service.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *slog.Logger
	judge  *JudgeSocket
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logger.With("component", "server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if e := s.config.Engine; e != nil {
		history := api.NewHistory(s.config.Store, s.logger)

		analyze := api.NewAnalyzeHandler(e, history, s.logger)
		s.mux.HandleFunc("/api/ai/brandnew/analyze", analyze.Images)
		s.mux.HandleFunc("/api/ai/brandnew/analyze-pose", analyze.Poses)
		s.mux.Handle("/api/pose-sequences/classify", api.NewClassifyHandler(e, history, s.logger))

		actions := api.NewActionHandler(s.config.Store, e, s.logger)
		s.mux.Handle("/api/actions", actions)
		s.mux.Handle("/api/actions/", actions)

		s.judge = NewJudgeSocket(analyze, s.logger)
		s.mux.Handle("/api/ws/judge", s.judge)
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/judgments", api.NewJudgmentHandler(s.config.Store))
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	} else {
		s.mux.HandleFunc("/", s.handleRoot)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{"service": "motionjudge", "status": "ok"})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if e := s.config.Engine; e != nil {
		response["model_loaded"] = e.Model() != nil
		response["reference_dir"] = e.ReferenceDir()
	}
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// closes open WebSocket sessions.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down")
	if s.judge != nil {
		s.judge.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
