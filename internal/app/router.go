package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/novahr/nova-authz/internal/auth"
	"github.com/novahr/nova-authz/internal/authz"
	"github.com/novahr/nova-authz/internal/directory"
	"github.com/novahr/nova-authz/internal/grants"
	"github.com/novahr/nova-authz/internal/observability"
	"github.com/novahr/nova-authz/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Auth             auth.Middleware
	AuthzHandler     *authz.Handler
	GrantsHandler    *grants.Handler
	DirectoryHandler *directory.Handler
	JobsHandler      *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router for the authorization service.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(params.Auth.RequireToken)
		if params.AuthzHandler != nil {
			params.AuthzHandler.MountRoutes(r)
		}
		if params.GrantsHandler != nil {
			params.GrantsHandler.MountRoutes(r)
		}
		if params.DirectoryHandler != nil {
			params.DirectoryHandler.MountRoutes(r)
		}
	})

	return r
}
