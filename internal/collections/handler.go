package collections

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vectra-db/vectra/internal/rbac"
	"github.com/vectra-db/vectra/internal/shared"
)

// Handler wires HTTP endpoints for the collection catalog. Each route is
// guarded by the matching vector-database permission.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      mw,
		validator: validator.New(),
	}
}

// MountRoutes registers catalog routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireGlobal(rbac.PermCreateCollection))
		r.Post("/collections", h.handleCreate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireGlobal(rbac.PermListCollections))
		r.Get("/collections", h.handleList)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireOnCollection(rbac.PermListCollections, "collectionID"))
		r.Get("/collections/{collectionID}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireOnCollection(rbac.PermDeleteCollection, "collectionID"))
		r.Delete("/collections/{collectionID}", h.handleDelete)
	})
}

type createCollectionRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=128"`
	Dimension uint32 `json:"dimension" validate:"required"`
	Metric    string `json:"metric" validate:"omitempty,oneof=cosine euclidean dot"`
}

type collectionResponse struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	Dimension uint32 `json:"dimension"`
	Metric    string `json:"metric"`
}

func toResponse(c Collection) collectionResponse {
	return collectionResponse(c)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id, err := h.service.CreateCollection(r.Context(), req.Name, req.Dimension, req.Metric)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	col, err := h.service.GetCollection(r.Context(), id)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	shared.RenderJSON(w, http.StatusCreated, toResponse(col))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListCollections(r.Context())
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	out := make([]collectionResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toResponse(c))
	}
	shared.RenderJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "collectionID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	col, err := h.service.GetCollection(r.Context(), uint32(id))
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	shared.RenderJSON(w, http.StatusOK, toResponse(col))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "collectionID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.DeleteCollection(r.Context(), uint32(id)); err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
