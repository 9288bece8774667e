package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-health/materna/internal/domain"
	"github.com/opensource-health/materna/internal/metrics"
	"github.com/opensource-health/materna/internal/model"
	"github.com/opensource-health/materna/internal/predict"
	"github.com/opensource-health/materna/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg *domain.Config, store *model.Store, predictor *predict.Predictor, repo domain.Repository, cache domain.Cache, bus domain.EventBus, alertEngine *rules.Engine, version string) *Server {
	handler := NewHandler(cfg, store, predictor, repo, cache, bus, alertEngine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging and metrics
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		// Prediction
		r.Post("/predict", handler.Predict)
		r.Post("/predict/batch", handler.PredictBatch)
		r.Post("/predict/risk/{riskType}", handler.PredictRisk)

		// Prediction retrieval
		r.Get("/predictions/{id}", handler.GetPrediction)
		r.Get("/predictions", handler.ListPredictions)

		// Model management
		r.Get("/models", handler.ListModels)
		r.Post("/models/reload", handler.ReloadModels)
		r.Delete("/models/{riskType}", handler.EvictModel)
		r.Delete("/models", handler.EvictAllModels)

		// Alert rules
		r.Get("/alerts/rules", handler.ListAlertRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg.Server,
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
