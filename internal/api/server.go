// Package api exposes the settlement engine over HTTP/JSON. Every request is
// attributed to the identity in the X-Caller-Principal header.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/engine"
	"github.com/sells-group/floodcover/internal/monitoring"
)

// Server routes requests to the engine components.
type Server struct {
	eng     *engine.Engine
	metrics *monitoring.Metrics
	origins []string
	log     *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and mounts GET /metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCORSOrigins sets the allowed CORS origins. Defaults to "*".
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// NewServer creates a Server for eng.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		eng:     eng,
		origins: []string{"*"},
		log:     zap.L().With(zap.String("component", "api")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", CallerHeader},
		MaxAge:         300,
	}))
	r.Use(s.metricsMiddleware)
	r.Use(callerMiddleware)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/policies", func(pr chi.Router) {
		pr.Post("/", s.createPolicy)
		pr.Get("/", s.listPolicies)
		pr.Get("/stats", s.policyStats)
		pr.Post("/payout", s.triggerPayout)
		pr.Get("/holder/{principal}", s.policyByHolder)
		pr.Get("/{id}", s.getPolicy)
		pr.Put("/{id}/status", s.updatePolicyStatus)
	})
	r.Get("/payout/eligible/{principal}", s.payoutEligible)

	r.Route("/flood", func(fr chi.Router) {
		fr.Get("/level", s.floodLevel)
		fr.Put("/level", s.setFloodLevel)
		fr.Get("/threshold", s.floodThreshold)
		fr.Put("/threshold", s.setFloodThreshold)
		fr.Get("/updaters", s.oracleUpdaters)
		fr.Post("/updaters", s.addOracleUpdater)
		fr.Delete("/updaters/{principal}", s.removeOracleUpdater)
	})

	r.Get("/admin", s.getAdmin)
	r.Put("/admin", s.transferAdmin)

	r.Route("/oracle", func(oc chi.Router) {
		oc.Post("/update/{location}", s.manualUpdate)
		oc.Post("/batch", s.batchUpdate)
		oc.Get("/data/{location}", s.latestData)
		oc.Get("/cache/{location}", s.cachedData)
		oc.Delete("/cache", s.clearCache)
		oc.Get("/locations", s.cachedLocations)
		oc.Get("/status", s.oracleStatus)
		oc.Get("/config", s.oracleConfig)
		oc.Put("/config", s.updateOracleConfig)
		oc.Put("/paused", s.setPaused)
		oc.Post("/principals", s.addAuthorizedPrincipal)
		oc.Delete("/principals/{principal}", s.removeAuthorizedPrincipal)
	})

	r.Route("/mirror", func(mr chi.Router) {
		mr.Get("/policies", s.mirrorPolicies)
		mr.Put("/policies", s.upsertMirrorPolicy)
		mr.Delete("/policies", s.clearMirrorPolicies)
		mr.Post("/policies/batch", s.batchUpsertMirrorPolicies)
		mr.Get("/stats", s.mirrorStats)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"admin":         s.eng.Guard.Admin(),
		"timer_running": s.eng.Oracle.TimerRunning(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware labels requests by route pattern so ids and principals do
// not explode label cardinality.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.HTTP.Observe(route, r.Method, rec.code, time.Since(start))
		}
	})
}
