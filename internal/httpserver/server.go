package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/fleetrent/backend/internal/config"
	"github.com/PortNumber53/fleetrent/backend/internal/handlers"
	reqlog "github.com/PortNumber53/fleetrent/backend/internal/middleware"
	"github.com/PortNumber53/fleetrent/backend/internal/worker"
)

// Deps are the collaborators the routes are built from. Admin is optional;
// without it (or without an admin token) the dead-letter routes are not
// mounted.
type Deps struct {
	DB      handlers.Pinger
	Webhook handlers.WebhookProcessor
	Admin   *handlers.AdminHandler
	Worker  *worker.Worker
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
}

// New constructs an HTTP server using the provided configuration and dependencies.
func New(cfg config.Config, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(reqlog.RequestLogger())
	router.Use(middleware.Recoverer)

	router.Get("/healthz", handlers.Health(deps.DB))

	if deps.Webhook != nil {
		router.Post("/api/webhooks/stripe", handlers.StripeWebhook(deps.Webhook))
	}

	if deps.Admin != nil && cfg.AdminToken != "" {
		router.Group(func(r chi.Router) {
			r.Use(reqlog.BearerToken(cfg.AdminToken))
			deps.Admin.RegisterRoutes(r)
		})
	} else if deps.Admin != nil {
		log.Warn().Msg("ADMIN_TOKEN not set; dead-letter endpoints disabled")
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: srv, worker: deps.Worker}
}

// Start starts the worker and then serves HTTP traffic until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.worker != nil {
		// The worker outlives ctx; Shutdown stops it after draining HTTP.
		s.worker.Start(context.WithoutCancel(ctx))
	}
	log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and worker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.worker != nil {
		if werr := s.worker.Stop(ctx); werr != nil {
			log.Error().Err(werr).Msg("worker shutdown error")
		}
	}
	return err
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
