package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vectra-db/vectra/internal/collections"
	"github.com/vectra-db/vectra/internal/rbac"
	"github.com/vectra-db/vectra/internal/roles"
	"github.com/vectra-db/vectra/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Users              *users.Service
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	RBACHandler        *rbac.Handler
	CollectionsHandler *collections.Handler
	RBACMiddleware     rbac.Middleware
}

// NewRouter constructs the chi.Router with service defaults. Everything
// except the health probe requires authentication; user, role and grant
// management additionally requires administrator privileges.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(BasicAuth(params.Logger, params.Users))

		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAdmin)
			params.UsersHandler.MountRoutes(r)
			params.RolesHandler.MountRoutes(r)
			params.RBACHandler.MountRoutes(r)
		})

		params.CollectionsHandler.MountRoutes(r)
	})

	return r
}
