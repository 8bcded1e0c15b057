package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fleetops/caseflow/internal/bpm"
	"github.com/fleetops/caseflow/internal/config"
	"github.com/fleetops/caseflow/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Engine       *bpm.Engine
	Authenticate func(http.Handler) http.Handler
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Ready        observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Ready))
	if deps.Metrics != nil && deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Authenticated routes get the full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Post("/cases", handleCreateCase(deps.Engine))
		r.Get("/cases/by-type/{caseType}", handleCasesByType(deps.Engine))
		r.Get("/workbasket", handleWorkbasket(deps.Engine))

		r.Route("/cases/{caseNo}", func(r chi.Router) {
			r.Get("/", handleGetCase(deps.Engine))
			r.Get("/history", handleCaseHistory(deps.Engine))
			r.Post("/move", handleMoveCase(deps.Engine))
			r.Put("/reassign", handleReassignCase(deps.Engine))
			r.Get("/steps/{stepID}", handleFetchStep(deps.Engine))
			r.Post("/steps/{stepID}", handleProcessStep(deps.Engine))
		})
	})

	return r
}
