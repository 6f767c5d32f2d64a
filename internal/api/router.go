// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/shelfwise/internal/database"
	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/middleware"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/fbt"
	"github.com/tomtom215/shelfwise/internal/recommend/segments"
	"github.com/tomtom215/shelfwise/internal/recommend/training"
)

// TrainingService submits and tracks training runs.
type TrainingService interface {
	Submit(ctx context.Context, modelType recommend.ModelType, hp recommend.Hyperparameters) (*recommend.TrainingRun, error)
	Status(ctx context.Context, id string) (*training.Status, error)
	Cancel(ctx context.Context, id string) error
	Logs(ctx context.Context, id string) ([]training.LogEntry, error)
	InFlight() []*recommend.TrainingRun
}

// RunHistory lists finished and in-flight runs of a config.
type RunHistory interface {
	ListRunsByConfig(ctx context.Context, configID string, limit int) ([]*recommend.TrainingRun, error)
}

// Recommender produces hybrid recommendations.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
}

// RuleService serves frequently-bought-together rules.
type RuleService interface {
	Recommend(itemID, limit int) []recommend.AssociationRule
	Stats() fbt.Stats
}

// VersionService manages model versions.
type VersionService interface {
	Get(ctx context.Context, versionID string) (*recommend.ModelVersion, error)
	List(ctx context.Context, configID string) ([]*recommend.ModelVersion, error)
	Activate(ctx context.Context, versionID string) (*recommend.ModelVersion, error)
	Delete(ctx context.Context, versionID string) error
	Cleanup(ctx context.Context, configID string) (int, error)
}

// SegmentService answers customer segment lookups.
type SegmentService interface {
	Segment(ctx context.Context, userID int) (*segments.Assignment, error)
	Sizes() (map[int]int, error)
}

// ConfigService stores model configs.
type ConfigService interface {
	ListConfigs(ctx context.Context) ([]*recommend.ModelConfig, error)
	GetConfig(ctx context.Context, id string) (*recommend.ModelConfig, error)
	UpsertConfig(ctx context.Context, cfg *recommend.ModelConfig) error
	ActivateConfig(ctx context.Context, id string) error
}

// HealthChecker reports catalog store health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*database.CatalogStats, error)
}

// ModelSnapshotter exposes the models currently served.
type ModelSnapshotter interface {
	Snapshot() map[recommend.ModelType]recommend.ActiveModel
}

// Deps are the services behind the routes. Nil services disable their routes
// with 503 responses.
type Deps struct {
	Training    TrainingService
	Runs        RunHistory
	Recommender Recommender
	Rules       RuleService
	Versions    VersionService
	Segments    SegmentService
	Configs     ConfigService
	Health      HealthChecker
	Models      ModelSnapshotter
}

// Config holds HTTP-layer settings.
type Config struct {
	CORSOrigins []string

	// Per-IP limit on training submissions.
	RateLimitReqs     int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	// HealthRateLimit bounds probes per IP per minute.
	HealthRateLimit int

	// RequestTimeout bounds every non-streaming handler.
	RequestTimeout time.Duration
}

// DefaultConfig returns conservative defaults: no CORS origins, 10
// submissions per IP per minute.
func DefaultConfig() Config {
	return Config{
		RateLimitReqs:   10,
		RateLimitWindow: time.Minute,
		HealthRateLimit: 1000,
		RequestTimeout:  30 * time.Second,
	}
}

// Handler holds the services used by route handlers.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewRouter builds the chi router with every route and middleware.
func NewRouter(deps Deps, cfg Config) http.Handler {
	h := &Handler{deps: deps, startTime: time.Now()}
	def := DefaultConfig()
	if cfg.RateLimitReqs <= 0 {
		cfg.RateLimitReqs = def.RateLimitReqs
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = def.RateLimitWindow
	}
	if cfg.HealthRateLimit <= 0 {
		cfg.HealthRateLimit = def.HealthRateLimit
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         86400,
	}))
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed", nil)
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.HealthRateLimit, time.Minute))
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
		r.Get("/", h.Health)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

		r.Route("/api/v1/training", func(r chi.Router) {
			r.Get("/", h.ListTraining)
			r.With(submitLimiter(cfg)).Post("/", h.SubmitTraining)
			r.Get("/{id}", h.GetTraining)
			r.Post("/{id}/cancel", h.CancelTraining)
			r.Get("/{id}/logs", h.TrainingLogs)
		})

		r.Route("/api/v1/recommendations", func(r chi.Router) {
			r.Get("/user/{userID}", h.UserRecommendations)
			r.Get("/fbt/{itemID}", h.FrequentlyBoughtTogether)
		})

		r.Route("/api/v1/configs", func(r chi.Router) {
			r.Get("/", h.ListConfigs)
			r.Put("/", h.UpsertConfig)
			r.Get("/{id}", h.GetConfig)
			r.Post("/{id}/activate", h.ActivateConfig)
		})

		r.Route("/api/v1/versions", func(r chi.Router) {
			r.Get("/", h.ListVersions)
			r.Get("/{id}", h.GetVersion)
			r.Post("/{id}/activate", h.ActivateVersion)
			r.Delete("/{id}", h.DeleteVersion)
			r.Post("/cleanup/{configID}", h.CleanupVersions)
		})

		r.Route("/api/v1/segments", func(r chi.Router) {
			r.Get("/user/{userID}", h.UserSegment)
			r.Get("/sizes", h.SegmentSizes)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// submitLimiter bounds training submissions per client IP.
func submitLimiter(cfg Config) func(http.Handler) http.Handler {
	if cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(cfg.RateLimitReqs, cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues("training_submit").Inc()
			respondError(w, r, http.StatusTooManyRequests, CodeRateLimited, "too many training submissions, retry later", nil)
		}),
	)
}

func (h *Handler) unavailable(w http.ResponseWriter, r *http.Request, what string) {
	respondError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, what+" is not enabled", nil)
}
