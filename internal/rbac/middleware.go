package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vectra-db/vectra/internal/shared"
)

// Middleware wires authorization guards for HTTP handlers. It relies on
// an upstream authentication middleware having placed the principal in
// the request context; absence of a principal is always a deny.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAdmin admits only users whose grant closure covers every
// permission on the wildcard scope.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := shared.PrincipalFromContext(r.Context())
		if p == nil || !m.Service.IsAdmin(r.Context(), p.UserID) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireGlobal admits users holding a wildcard-scoped grant for the
// permission.
func (m Middleware) RequireGlobal(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			if p == nil || !m.Service.CheckGlobal(r.Context(), p.UserID, perm) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOnCollection admits users allowed to exercise the permission on
// the collection named by the URL parameter.
func (m Middleware) RequireOnCollection(perm Permission, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			raw := chi.URLParam(r, param)
			collectionID, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			if !m.Service.Check(r.Context(), p.UserID, perm, uint32(collectionID)) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
