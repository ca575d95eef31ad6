// Package server implements the Control Surface (spec §4.6, C5): the HTTP
// API a UI or CLI client talks to for project/session/fork lifecycle,
// pending-permission resolution, and the event/terminal streams.
//
// Grounded on the teacher's internal/server.Server — chi router,
// middleware stack (RequestID, Logger, Recoverer, RealIP, CORS), and the
// Config/New/Start/Shutdown shape — retargeted from the teacher's own
// AI-session API surface to the registry.Registry wiring this repo adds.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/orka-sh/orka-core/internal/registry"
)

// Config configures the control surface's own HTTP server.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the control surface's HTTP server.
type Server struct {
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server
	reg     *registry.Registry
}

// New creates a Server wired to reg, the runtime wiring layer that owns
// every project's orchestrator, store, and supervisor engines.
func New(cfg Config, reg *registry.Registry) *Server {
	s := &Server{cfg: cfg, router: chi.NewRouter(), reg: reg}
	s.setupMiddleware()
	s.routes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	if s.cfg.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// Router exposes the mux, mainly for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// Start begins listening. It blocks until the server stops or errors;
// callers typically run it in a goroutine.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
