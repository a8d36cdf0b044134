// Package api exposes the enrichment engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/enrich-waterfall/internal/cache"
	"github.com/sells-group/enrich-waterfall/internal/model"
	"github.com/sells-group/enrich-waterfall/internal/resilience"
	"github.com/sells-group/enrich-waterfall/internal/store"
	"github.com/sells-group/enrich-waterfall/internal/waterfall"
	"github.com/sells-group/enrich-waterfall/internal/waterfall/provider"
)

// DefaultCheckTimeout bounds a provider health probe.
const DefaultCheckTimeout = 5 * time.Second

// Store is the persistence surface the handlers read and write directly.
type Store interface {
	GetContact(ctx context.Context, tenantID, id string) (*model.Contact, error)
	UpsertContact(ctx context.Context, c model.Contact) error
	GetJob(ctx context.Context, tenantID, id string) (*model.EnrichmentJob, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.EnrichmentJob, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Store        Store
	Orchestrator *waterfall.Orchestrator
	Configs      *waterfall.ConfigResolver
	Registry     *provider.Registry
	Health       *resilience.HealthTracker
	Cache        cache.Cache
}

// Server holds the HTTP handlers.
type Server struct {
	deps         Deps
	origins      []string
	checkTimeout time.Duration
	nowFunc      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) { s.checkTimeout = d }
}

// WithNow overrides the clock used for contact timestamps.
func WithNow(fn func() time.Time) Option {
	return func(s *Server) { s.nowFunc = fn }
}

// NewServer builds a Server over deps.
func NewServer(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		origins:      []string{"*"},
		checkTimeout: DefaultCheckTimeout,
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/tenants/{tenant}", func(r chi.Router) {
		r.Route("/contacts/{contact}", func(r chi.Router) {
			r.Get("/", s.handleGetContact)
			r.Put("/", s.handlePutContact)
			r.Post("/enrich", s.handleEnrich)
			r.Delete("/cache", s.handleInvalidateCache)
		})

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{job}", s.handleGetJob)

		r.Get("/waterfalls", s.handleListWaterfalls)
		r.Get("/waterfalls/{field}", s.handleGetWaterfall)
		r.Put("/waterfalls/{field}", s.handlePutWaterfall)
		r.Delete("/waterfalls/{field}", s.handleDeleteWaterfall)

		r.Get("/providers", s.handleListProviders)
		r.Put("/providers/{provider}", s.handlePutProvider)
		r.Post("/providers/{provider}/disable", s.handleSetEnabled(false))
		r.Post("/providers/{provider}/enable", s.handleSetEnabled(true))
		r.Get("/providers/{provider}/check", s.handleCheckProvider)

		r.Get("/health", s.handleTenantHealth)
		r.Post("/health/{provider}/reset", s.handleResetHealth)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
