package roles

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vectra-db/vectra/internal/shared"
)

// Handler wires HTTP endpoints for role records. Grants and deletion
// cascades are exposed by the rbac handler.
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

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/roles", h.handleCreate)
	r.Get("/roles", h.handleList)
	r.Get("/roles/{roleID}", h.handleGet)
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=64"`
	Description string `json:"description" validate:"max=256"`
}

type roleResponse struct {
	ID          uint32 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	shared.RenderJSON(w, http.StatusCreated, roleResponse{ID: id, Name: req.Name, Description: req.Description})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRoles(r.Context())
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, roleResponse{ID: role.ID, Name: role.Name, Description: role.Description})
	}
	shared.RenderJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "roleID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	role, err := h.service.GetRole(r.Context(), uint32(id))
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	shared.RenderJSON(w, http.StatusOK, roleResponse{ID: role.ID, Name: role.Name, Description: role.Description})
}
