package shared

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// RenderJSON writes v as a JSON response.
func RenderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// RenderError maps the error taxonomy to HTTP statuses and writes a
// JSON error body. Internal details are logged, not leaked.
func RenderError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		RenderJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, ErrDuplicate):
		RenderJSON(w, http.StatusConflict, errorBody{Error: "duplicate name"})
	case errors.Is(err, ErrInvalidGrant):
		RenderJSON(w, http.StatusBadRequest, errorBody{Error: "invalid grant"})
	case errors.Is(err, ErrUnauthorized):
		RenderJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, ErrSerialization), errors.Is(err, ErrStorage):
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		RenderJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	default:
		RenderJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	}
}
