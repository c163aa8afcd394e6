package users

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vectra-db/vectra/internal/shared"
)

// Handler wires HTTP endpoints for user management.
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

// MountRoutes registers user routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/users", h.handleCreate)
	r.Get("/users", h.handleList)
	r.Get("/users/{userID}", h.handleGet)
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=8"`
}

type userResponse struct {
	ID       uint32 `json:"id"`
	Username string `json:"username"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id, err := h.service.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	shared.RenderJSON(w, http.StatusCreated, userResponse{ID: id, Username: req.Username})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListUsers(r.Context())
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, userResponse{ID: u.ID, Username: u.Username})
	}
	shared.RenderJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 32)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	user, err := h.service.GetUser(r.Context(), uint32(id))
	if err != nil {
		shared.RenderError(w, h.logger, err)
		return
	}
	shared.RenderJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}
