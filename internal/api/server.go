package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/outflowhq/outflow/internal/config"
	"github.com/outflowhq/outflow/internal/dispatch"
	"github.com/outflowhq/outflow/internal/metrics"
	"github.com/outflowhq/outflow/internal/repository"
	"github.com/outflowhq/outflow/internal/tracking"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.Config
	logger     *slog.Logger
	startTime  time.Time

	contacts  *repository.ContactRepository
	templates *repository.TemplateRepository
	campaigns *repository.CampaignRepository
	sends     *repository.SendRepository
	apiKeys   *repository.APIKeyRepository
	scheduler *dispatch.Scheduler
	sink      *tracking.Sink
	metrics   *metrics.Metrics
}

// Deps bundles the server's collaborators
type Deps struct {
	Contacts  *repository.ContactRepository
	Templates *repository.TemplateRepository
	Campaigns *repository.CampaignRepository
	Sends     *repository.SendRepository
	APIKeys   *repository.APIKeyRepository
	Scheduler *dispatch.Scheduler
	Sink      *tracking.Sink
	Metrics   *metrics.Metrics
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
		contacts:  deps.Contacts,
		templates: deps.Templates,
		campaigns: deps.Campaigns,
		sends:     deps.Sends,
		apiKeys:   deps.APIKeys,
		scheduler: deps.Scheduler,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Public endpoints: health, metrics, and the tracking hooks email
	// clients hit. Tracking must never require auth.
	s.router.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled && s.metrics != nil {
		s.router.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}
	s.router.Get("/t/o/{trackingID}", s.handleTrackOpen)
	s.router.Get("/t/c/{trackingID}", s.handleTrackClick)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", s.handleContactList)
			r.Post("/", s.handleContactCreate)
			r.Get("/{id}", s.handleContactGet)
			r.Put("/{id}", s.handleContactUpdate)
			r.Delete("/{id}", s.handleContactDelete)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleTemplateList)
			r.Post("/", s.handleTemplateCreate)
			r.Get("/{id}", s.handleTemplateGet)
			r.Put("/{id}", s.handleTemplateUpdate)
			r.Delete("/{id}", s.handleTemplateDelete)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleCampaignList)
			r.Post("/", s.handleCampaignCreate)
			r.Get("/{id}", s.handleCampaignGet)
			r.Put("/{id}", s.handleCampaignUpdate)
			r.Delete("/{id}", s.handleCampaignDelete)

			r.Post("/{id}/start", s.handleCampaignStart)
			r.Post("/{id}/pause", s.handleCampaignPause)
			r.Post("/{id}/resume", s.handleCampaignResume)
			r.Get("/{id}/sends", s.handleCampaignSends)
		})

		r.Get("/analytics", s.handleAnalytics)

		r.Route("/keys", func(r chi.Router) {
			r.Get("/", s.handleAPIKeyList)
			r.Post("/", s.handleAPIKeyCreate)
			r.Delete("/{id}", s.handleAPIKeyRevoke)
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.cfg.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}
