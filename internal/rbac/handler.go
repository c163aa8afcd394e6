package rbac

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vectra-db/vectra/internal/shared"
)

// Handler wires HTTP endpoints for grants, role assignments and
// authorization checks.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers rbac routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/roles/{roleID}/grants", h.handleGrant)
	r.Delete("/roles/{roleID}/grants", h.handleRevoke)
	r.Get("/roles/{roleID}/grants", h.handleListGrants)
	r.Delete("/roles/{roleID}", h.handleDeleteRole)

	r.Put("/users/{userID}/roles/{roleID}", h.handleAssign)
	r.Delete("/users/{userID}/roles/{roleID}", h.handleUnassign)
	r.Get("/users/{userID}/roles", h.handleListUserRoles)
	r.Get("/users/{userID}/permissions", h.handleEffectivePermissions)
	r.Delete("/users/{userID}", h.handleDeleteUser)

	r.Post("/authz/check", h.handleCheck)
}

type grantRequest struct {
	Scope      string `json:"scope" validate:"required"`
	Permission string `json:"permission" validate:"required"`
}

type grantResponse struct {
	Scope      string `json:"scope"`
	Permission string `json:"permission"`
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{Scope: g.Scope.String(), Permission: g.Permission.String()}
}

func parseScope(raw string) (Scope, error) {
	if raw == "all" || raw == "*" {
		return AllCollections(), nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return Scope{}, fmt.Errorf("%w: scope %q", shared.ErrInvalidGrant, raw)
	}
	return CollectionScope(uint32(id)), nil
}

func (h *Handler) decodeGrant(r *http.Request) (uint32, Scope, Permission, error) {
	roleID, err := strconv.ParseUint(chi.URLParam(r, "roleID"), 10, 32)
	if err != nil {
		return 0, Scope{}, 0, fmt.Errorf("invalid role id")
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, Scope{}, 0, fmt.Errorf("invalid body")
	}
	if err := h.validator.Struct(req); err != nil {
		return 0, Scope{}, 0, fmt.Errorf("invalid body")
	}
	scope, err := parseScope(req.Scope)
	if err != nil {
		return 0, Scope{}, 0, err
	}
	perm, err := ParsePermission(req.Permission)
	if err != nil {
		return 0, Scope{}, 0, err
	}
	return uint32(roleID), scope, perm, nil
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	roleID, scope, perm, err := h.decodeGrant(r)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	if err := h.service.GrantPermission(r.Context(), roleID, scope, perm); err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	shared.RenderJSON(w, http.StatusOK, toGrantResponse(Grant{Scope: scope, Permission: perm}))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	roleID, scope, perm, err := h.decodeGrant(r)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	if err := h.service.RevokePermission(r.Context(), roleID, scope, perm); err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListGrants(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseUint(chi.URLParam(r, "roleID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	grants, err := h.service.RoleGrants(r.Context(), uint32(roleID))
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	shared.RenderJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseUint(chi.URLParam(r, "roleID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.DeleteRole(r.Context(), uint32(roleID)); err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userAndRoleIDs(r *http.Request) (uint32, uint32, error) {
	userID, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid user id")
	}
	roleID, err := strconv.ParseUint(chi.URLParam(r, "roleID"), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid role id")
	}
	return uint32(userID), uint32(roleID), nil
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	userID, roleID, err := h.userAndRoleIDs(r)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, roleID); err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	userID, roleID, err := h.userAndRoleIDs(r)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	if err := h.service.UnassignRole(r.Context(), userID, roleID); err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ids, err := h.service.ListRoles(r.Context(), uint32(userID))
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	shared.RenderJSON(w, http.StatusOK, map[string][]uint32{"role_ids": ids})
}

func (h *Handler) handleEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	grants, err := h.service.EffectivePermissions(r.Context(), uint32(userID))
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	shared.RenderJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.DeleteUser(r.Context(), uint32(userID)); err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkRequest struct {
	UserID       uint32 `json:"user_id"`
	Permission   string `json:"permission" validate:"required"`
	CollectionID uint32 `json:"collection_id"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	perm, err := ParsePermission(req.Permission)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	allowed := h.service.Check(r.Context(), req.UserID, perm, req.CollectionID)
	shared.RenderJSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}
