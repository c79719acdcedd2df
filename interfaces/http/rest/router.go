// Package rest exposes the decision API over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"decivue/application/commands/bus"
	querybus "decivue/application/queries/bus"
	"decivue/interfaces/http/rest/handlers"
	"decivue/interfaces/http/rest/middleware"
	"decivue/pkg/auth"
	pkgerrors "decivue/pkg/errors"
	"decivue/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// ReadinessCheck probes one dependency.
type ReadinessCheck func(ctx context.Context) error

// RateLimitSettings enables per caller limiting.
type RateLimitSettings struct {
	Limiter auth.RateLimiter
	Limit   int
	Window  time.Duration
}

// Dependencies is everything the router needs. Optional parts are nil.
type Dependencies struct {
	CommandBus   *bus.CommandBus
	QueryBus     *querybus.QueryBus
	Validator    *auth.JWTValidator
	ErrorHandler *pkgerrors.ErrorHandler
	Logger       *zap.Logger

	TrustedClaims  middleware.ClaimsExtractor
	RateLimit      *RateLimitSettings
	Metrics        *observability.Collector
	Tracer         *observability.Tracer
	EnableCORS     bool
	AllowedOrigins []string
	Readiness      map[string]ReadinessCheck
}

// Router creates and configures the HTTP router
type Router struct {
	deps Dependencies
}

// NewRouter creates a new router instance
func NewRouter(deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.ErrorHandler == nil {
		deps.ErrorHandler = pkgerrors.NewErrorHandler(deps.Logger, false)
	}
	return &Router{deps: deps}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() *chi.Mux {
	d := rt.deps
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	if d.Tracer.Enabled() {
		router.Use(d.Tracer.Middleware)
	}
	var observer middleware.HTTPObserver
	if d.Metrics != nil {
		observer = d.Metrics
	}
	router.Use(middleware.Logger(d.Logger, observer))

	if d.EnableCORS {
		origins := d.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if d.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	decisions := handlers.NewDecisionHandler(d.CommandBus, d.QueryBus, d.ErrorHandler, d.Logger)
	insights := handlers.NewInsightHandler(d.CommandBus, d.QueryBus, d.ErrorHandler, d.Logger)
	stats := handlers.NewStatsHandler(d.QueryBus, d.ErrorHandler, d.Logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Validator, d.TrustedClaims, d.ErrorHandler))
		if d.RateLimit != nil && d.RateLimit.Limiter != nil {
			r.Use(middleware.RateLimit(d.RateLimit.Limiter, d.RateLimit.Limit, d.RateLimit.Window.String(), d.Logger, d.ErrorHandler))
		}
		r.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("decivue-api"), d.Logger, d.ErrorHandler))

		r.Route("/decisions", func(r chi.Router) {
			r.Post("/", decisions.CreateDecision)
			r.Get("/", decisions.ListDecisions)
			r.Route("/{decisionID}", func(r chi.Router) {
				r.Get("/", decisions.GetDecision)
				r.Delete("/", decisions.DeleteDecision)
				r.Post("/review", decisions.ReviewDecision)
				r.Get("/events", decisions.ListEvents)
				r.Post("/assumptions", decisions.AddAssumption)
				r.Post("/assumptions/{assumptionID}/validate", decisions.ValidateAssumption)
			})
		})

		r.Get("/insights", insights.ListInsights)
		r.Post("/insights/{insightID}/dismiss", insights.DismissInsight)

		r.Get("/stats", stats.GetStats)
		r.Get("/dashboard", stats.GetDashboard)
		r.Post("/life-score", stats.ComputeLifeScore)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	writeStatus(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// readinessCheck runs every registered dependency probe.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(rt.deps.Readiness))
	for name, check := range rt.deps.Readiness {
		if err := check(ctx); err != nil {
			rt.deps.Logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]interface{}{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	writeStatus(w, status, body)
}

func writeStatus(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
