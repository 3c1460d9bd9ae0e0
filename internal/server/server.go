// Package server implements the rollcall ops HTTP API.
package server

import (
	"context"
	"expvar"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/rollcall/internal/server/handlers"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// DefaultMaxBody caps request bodies when no limit is configured.
const DefaultMaxBody = 1 << 20

// Server is the rollcall HTTP API server.
type Server struct {
	handlers *handlers.Handlers
	router   chi.Router
	addr     string
	logger   *slog.Logger
	srv      *http.Server
}

// New creates a new HTTP server. A maxBody of zero uses DefaultMaxBody.
func New(cfg types.ServerConfig, deps handlers.Deps, maxBody int64) *Server {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		handlers: handlers.New(deps),
		addr:     cfg.Addr,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(cfg.AllowedOrigins))
	}
	r.Use(APIKeyMiddleware(cfg.APIKey))
	r.Use(MaxBodyMiddleware(maxBody))

	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		s.registerRoutes(r)
	})

	s.router = r
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("rollcall server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
