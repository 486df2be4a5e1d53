// Package api serves the published snapshot to the investigator dashboard:
// heatmap cells, suspect rankings, handoffs, graph exploration and evidence
// cards. Every response is derived from the last published snapshot.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
)

// Reader is the part of store.Store the API reads from.
type Reader interface {
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)
	LoadInputs(ctx context.Context) (model.Inputs, error)
	Ping(ctx context.Context) error
}

// RequestRecorder receives per-route request metrics. *monitoring.Metrics
// satisfies it.
type RequestRecorder interface {
	ObserveRequest(route string, code int, d time.Duration)
}

// Server holds the handler dependencies.
type Server struct {
	store   Reader
	cache   *snapshotCache
	limiter *rateLimiter
	cfg     config.ServerConfig
	metrics http.Handler
	rec     RequestRecorder
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes h at /metrics and records request metrics to rec.
func WithMetrics(h http.Handler, rec RequestRecorder) Option {
	return func(s *Server) {
		s.metrics = h
		s.rec = rec
	}
}

// New creates a Server over st.
func New(st Reader, cfg config.ServerConfig, opts ...Option) *Server {
	ttl := time.Duration(cfg.CacheTTLSecs) * time.Second
	s := &Server{
		store:   st,
		cache:   newSnapshotCache(st, ttl),
		limiter: newRateLimiter(cfg.RateLimit, cfg.RateBurst),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate forces the next request to reload the snapshot.
func (s *Server) Invalidate() { s.cache.invalidate() }

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestMetrics(s.rec))
	if s.cfg.RateLimit > 0 {
		r.Use(s.limiter.handler)
	}

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/cells", s.listCells)
		v1.Get("/cells/buckets", s.listBuckets)
		v1.Get("/cells/{cell}/{bucket}/entities", s.cellEntities)

		v1.Get("/suspects", s.topSuspects)
		v1.Get("/handoffs", s.listHandoffs)

		v1.Route("/cases", func(cr chi.Router) {
			cr.Get("/", s.listCases)
			cr.Get("/{id}", s.getCase)
			cr.Get("/{id}/suspects", s.caseSuspects)
			cr.Get("/{id}/similar", s.similarCases)
		})

		v1.Get("/entities/{id}/disappearance", s.disappearance)
		v1.Get("/graph/expand", s.expandGraph)
		v1.Get("/copresence/{a}/{b}", s.copresence)
		v1.Post("/evidence-card", s.evidenceCard)
	})

	return r
}
