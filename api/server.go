/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Request duration histogram by route pattern
  5. CORS:       Cross-origin requests for the payroll dashboard

ROUTE GROUPS:
  /api/instructors/*    Directory, per-instructor compensation, payments
  /api/compensation     Batch computation
  /api/students/*       Student terms and ownership audit
  /api/class-starts     Signal ingestion
  /api/reassignments    Ownership changes
  /api/waivers, /api/permissions, /api/bonuses/*
  /api/rules, /api/rates
  /api/cache/*          Invalidation
  /api/scenarios/*      Demo datasets
  /metrics              Prometheus exposition
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/compensation-engine/metrics"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AllowedOrigins for CORS. Empty allows the local dashboard only.
	AllowedOrigins []string

	// Metrics receives request durations and serves /metrics. Optional.
	Metrics *metrics.Manager
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics(opts.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Metrics.Gatherer(), promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Instructor routes
		r.Route("/instructors", func(r chi.Router) {
			r.Get("/", h.ListInstructors)
			r.Post("/", h.CreateInstructor)
			r.Get("/{id}/compensation", h.GetCompensation)
			r.Put("/{id}/payments", h.SetPayment)
		})

		r.Get("/compensation", h.ListCompensation)

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Put("/{id}", h.SaveStudent)
			r.Get("/{id}/ownership", h.GetOwnership)
		})

		// Event routes
		r.Post("/class-starts", h.RecordClassStart)
		r.Post("/reassignments", h.RecordReassignment)

		// Adjustment routes
		r.Post("/waivers", h.CreateWaiver)
		r.Post("/permissions", h.CreatePermission)
		r.Route("/bonuses", func(r chi.Router) {
			r.Post("/quality", h.CreateQualityBonus)
			r.Post("/manual", h.CreateManualBonus)
		})

		// Configuration routes
		r.Put("/rules", h.SaveRules)
		r.Put("/rates", h.SaveRates)

		// Cache routes
		r.Route("/cache", func(r chi.Router) {
			r.Post("/invalidate", h.InvalidateCache)
			r.Delete("/", h.ClearCache)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestMetrics observes request durations labelled by route pattern, so
// /api/instructors/{id}/compensation is one series regardless of id.
func requestMetrics(m *metrics.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTPRequest(route, r.Method, strconv.Itoa(status), time.Since(start))
		})
	}
}
