// Package api provides the HTTP API the console's rendering layer talks to.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/api/handler"
	"github.com/openrag/opsconsole/internal/api/middleware"
	"github.com/openrag/opsconsole/internal/api/models"
	"github.com/openrag/opsconsole/internal/api/response"
	"github.com/openrag/opsconsole/internal/resilience"
	"github.com/openrag/opsconsole/internal/session"
)

// Monitor is the health monitor as seen by the API.
type Monitor interface {
	handler.CycleSource
	handler.CycleRunner
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Resolver middleware.SessionResolver
	Shell    handler.WorkspaceProvider
	Monitor  Monitor
	Runtime  handler.InventorySource
	Registry *resilience.Registry

	// Stream serves the health event WebSocket. Nil disables the route.
	Stream http.Handler
}

// NewRouter creates a chi router with every console route configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "opsconsole"
	}

	// Order matters: the request id must exist before anything logs it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Problem(w, r, models.ForStatus(http.StatusMethodNotAllowed, middleware.GetRequestID(r.Context()), r.Method+" is not allowed here"))
	})

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Monitor, cfg.Registry)
	servicesHandler := handler.NewServicesHandler(cfg.Monitor)
	dashboardHandler := handler.NewDashboardHandler(cfg.Shell)
	documentsHandler := handler.NewDocumentsHandler(cfg.Shell)
	usersHandler := handler.NewUsersHandler(cfg.Shell)
	runtimeHandler := handler.NewRuntimeHandler(cfg.Runtime)

	authMiddleware := middleware.Auth(cfg.Resolver)
	refreshByIP := middleware.RateLimitByIP(middleware.RefreshRateLimit)
	refreshByPrincipal := middleware.RateLimitByPrincipal(middleware.RefreshRateLimit)
	mutations := middleware.RateLimitByPrincipal(middleware.MutationRateLimit)
	reads := middleware.RateLimitByPrincipal(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Service health and the runtime carry no credential.
		r.Route("/services", func(r chi.Router) {
			r.Get("/", servicesHandler.List)
			r.With(refreshByIP).Post("/refresh", servicesHandler.Refresh)
			if cfg.Stream != nil {
				r.Handle("/stream", cfg.Stream)
			}
		})
		r.With(middleware.RateLimitByIP(middleware.StandardRateLimit)).Get("/runtime", runtimeHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(reads)

			r.Get("/me", handler.Me)

			r.Get("/dashboard", dashboardHandler.Get)
			r.With(refreshByPrincipal).Post("/dashboard/refresh", dashboardHandler.Refresh)

			r.Get("/documents", documentsHandler.ListDocuments)
			r.With(mutations).Delete("/documents/{id}", documentsHandler.DeleteDocument)

			r.Get("/history", documentsHandler.ListHistory)

			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireRole(session.RoleAdmin))
				r.Use(middleware.RequireJSON)

				r.Get("/", usersHandler.List)
				r.With(mutations).Post("/", usersHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Use(mutations)
					r.Delete("/", usersHandler.Delete)
					r.Post("/password/edit", usersHandler.BeginPasswordEdit)
					r.Delete("/password/edit", usersHandler.CancelPasswordEdit)
					r.Patch("/password", usersHandler.ChangePassword)
				})
			})
		})
	})

	return r
}
