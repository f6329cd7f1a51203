package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/finch/internal/alerts"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/rewards"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, ledger *rewards.Ledger, alertService *alerts.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, ledger, alertService, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no user required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Maintenance sweeps (operator endpoints, not user-scoped)
	router.Post("/sweeps/expired", handler.SweepExpired)
	router.Post("/sweeps/old", handler.SweepOld)

	// API routes (user required)
	router.Route("/", func(r chi.Router) {
		r.Use(UserMiddleware)

		// Reward ledger
		r.Post("/rewards", handler.RecordReward)
		r.Get("/rewards", handler.ListRewards)
		r.Get("/rewards/summary", handler.RewardSummary)
		r.Get("/rewards/breakdown", handler.RewardBreakdown)
		r.Get("/rewards/tiers", handler.Tiers)
		r.Get("/rewards/leaderboard", handler.Leaderboard)

		// Alert pipeline
		r.Post("/alerts/check", handler.CheckAlerts)
		r.Get("/alerts", handler.ListAlerts)
		r.Post("/alerts/read-all", handler.MarkAllAlertsRead)
		r.Get("/alerts/{id}", handler.GetAlert)
		r.Post("/alerts/{id}/read", handler.MarkAlertRead)
		r.Post("/alerts/{id}/resolve", handler.ResolveAlert)
		r.Post("/alerts/{id}/dismiss", handler.DismissAlert)

		// Custom rule management
		r.Get("/alerts/rules", handler.ListAlertRules)
		r.Post("/alerts/rules", handler.CreateAlertRule)
		r.Delete("/alerts/rules/{id}", handler.DeleteAlertRule)
		r.Post("/alerts/rules/reload", handler.ReloadAlertRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
