package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/surveyforge/surveyforge/internal/access"
	"github.com/surveyforge/surveyforge/internal/auth"
	"github.com/surveyforge/surveyforge/internal/observability"
	"github.com/surveyforge/surveyforge/internal/permissions"
	"github.com/surveyforge/surveyforge/internal/roles"
	"github.com/surveyforge/surveyforge/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Verifier           *auth.Verifier
	Guard              access.Guard
	AccessHandler      *access.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *permissions.Handler
	UsersHandler       *users.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with SurveyForge defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Verifier: params.Verifier,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Config != nil && params.Config.AppRequestTimeout > 0 {
		r.Use(chimw.Timeout(params.Config.AppRequestTimeout))
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Guard.Require(access.Public()))
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/access", params.AccessHandler.MountRoutes)
	})

	return r
}
