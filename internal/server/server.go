// Package server is the HTTP API: generation, chat, parametric parts, the
// model area, health and metrics.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/modelstore"
	"github.com/genx3d/genx3d/internal/monitoring"
	"github.com/genx3d/genx3d/internal/parts"
	"github.com/genx3d/genx3d/internal/router"
)

const maxBodyBytes = 1 << 20

// Generator runs the code-generation pipeline.
type Generator interface {
	Generate(ctx context.Context, request string) model.GenerationResult
}

// Chat routes a free-form message.
type Chat interface {
	Handle(ctx context.Context, message string) router.Response
}

// ModelStore is the generated-model area.
type ModelStore interface {
	parts.Store
	List() ([]model.GeneratedModel, error)
	Sweep(maxAge time.Duration) (modelstore.SweepStats, error)
	Dir() string
}

// HealthSource reports the rolling health snapshot.
type HealthSource interface {
	Collect() (*monitoring.MetricsSnapshot, error)
}

// BreakerStates reports circuit states by backend.
type BreakerStates interface {
	States() map[string]string
}

// Config configures the API.
type Config struct {
	AllowedOrigins []string
	// RequestTimeout bounds generation and chat requests.
	RequestTimeout time.Duration
	// StaticPrefix is the URL prefix model files are served under.
	StaticPrefix string
	// Format is the export format for parametric parts.
	Format string
	// CleanupMaxAge is the default age for POST /api/cleanup.
	CleanupMaxAge time.Duration
}

// Deps are the API's collaborators. Health, Breakers, Metrics and Gatherer
// are optional.
type Deps struct {
	Generator Generator
	Chat      Chat
	Models    ModelStore
	Health    HealthSource
	Breakers  BreakerStates
	Metrics   *monitoring.Metrics
	Gatherer  prometheus.Gatherer
}

// Server holds the handlers.
type Server struct {
	cfg  Config
	deps Deps
}

// New creates a Server with defaults filled in.
func New(cfg Config, deps Deps) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.StaticPrefix == "" {
		cfg.StaticPrefix = "/static/generated_models"
	}
	cfg.StaticPrefix = "/" + strings.Trim(cfg.StaticPrefix, "/")
	if cfg.Format == "" {
		cfg.Format = "STEP"
	}
	if cfg.CleanupMaxAge <= 0 {
		cfg.CleanupMaxAge = 24 * time.Hour
	}
	return &Server{cfg: cfg, deps: deps}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			r.Post("/generate", s.handleGenerate)
			r.Post("/chat", s.handleChat)
		})
		r.Post("/parts", s.handleParts)
		r.Get("/models", s.handleListModels)
		r.Post("/cleanup", s.handleCleanup)
	})

	if s.deps.Models != nil {
		files := http.StripPrefix(s.cfg.StaticPrefix+"/", http.FileServer(http.Dir(s.deps.Models.Dir())))
		r.Handle(s.cfg.StaticPrefix+"/*", files)
	}
	return r
}
