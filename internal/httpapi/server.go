package httpapi

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bakeops/bakeops/internal/engine"
	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/internal/syncer"
	"github.com/bakeops/bakeops/internal/workflow"
)

// Deps holds the dependencies for the HTTP API server.
type Deps struct {
	Registry *workflow.Registry
	Engine   *engine.Engine
	Store    store.Store
	Syncer   *syncer.Syncer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server exposes the workflow core over HTTP. It is glue only: every
// decision about legality, escalation, and aggregation is made by the
// components it calls into.
type Server struct {
	deps Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the workflow routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /workflow/{entity_type}", s.handleCreate)
	mux.HandleFunc("GET /workflow/{entity_type}", s.handleList)
	mux.HandleFunc("GET /workflow/{entity_type}/summary", s.handleSummary)
	mux.HandleFunc("GET /workflow/{entity_type}/export", s.handleExport)
	mux.HandleFunc("GET /workflow/{entity_type}/{entity_id}", s.handleGet)
	mux.HandleFunc("GET /workflow/{entity_type}/{entity_id}/history", s.handleHistory)
	mux.HandleFunc("POST /workflow/{entity_type}/{entity_id}/transition", s.handleTransition)

	return mux
}
