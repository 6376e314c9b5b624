// Package server exposes the HTTP API: project and commit management,
// image generation, baseline compare, and eval runs.
package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/promptsmith/promptsmith/internal/compare"
	"github.com/promptsmith/promptsmith/internal/eval"
	"github.com/promptsmith/promptsmith/internal/generate"
	"github.com/promptsmith/promptsmith/internal/repo"
)

// Config holds server configuration.
type Config struct {
	Addr string // listen address, e.g. ":8000"
}

// Server is the HTTP front end over the repository and pipelines.
type Server struct {
	config    Config
	repo      *repo.Repository
	generator *generate.Service
	comparer  *compare.Orchestrator
	evaluator *eval.Service
	baseCtx   context.Context
	cancel    context.CancelFunc
	httpSrv   *http.Server
	logger    *log.Logger
}

// New creates a Server over the wired services.
func New(cfg Config, r *repo.Repository, generator *generate.Service, comparer *compare.Orchestrator, evaluator *eval.Service, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    cfg,
		repo:      r,
		generator: generator,
		comparer:  comparer,
		evaluator: evaluator,
		baseCtx:   ctx,
		cancel:    cancel,
		logger:    logger,
	}

	s.httpSrv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // compare and generate calls can run for minutes
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	return s
}

// Handler builds the routed and wrapped handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Go 1.22+ method+pattern routing.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /projects", s.handleUpsertProject)
	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("DELETE /projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /baseline", s.handleSetBaseline)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("POST /compare", s.handleCompare)
	mux.HandleFunc("DELETE /commits/{id}", s.handleDeleteCommit)
	mux.HandleFunc("POST /eval-runs", s.handleCreateEvalRun)
	mux.HandleFunc("GET /eval-runs/{id}", s.handleGetEvalRun)

	return withRequestID(csrfProtect(mux), s.logger)
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		s.logger.Printf("received %s, shutting down...", sig)
		s.Shutdown()
	}()

	s.logger.Printf("listening on %s", s.config.Addr)
	s.httpSrv.Addr = s.config.Addr
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and waits for in-flight eval runs.
func (s *Server) Shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)

	s.evaluator.Wait()
	s.cancel()
}
