package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"fleetops/internal/authz"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

type successEnvelope struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data"`
	Pagination *model.Pagination `json:"pagination,omitempty"`
}

type errorEnvelope struct {
	Error         string   `json:"error"`
	MissingFields []string `json:"missingFields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data})
}

func writePaged(w http.ResponseWriter, data any, p model.Pagination) {
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Data: data, Pagination: &p})
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string, missing []string) {
	writeJSON(w, status, errorEnvelope{Error: msg, MissingFields: missing})
}

// writeError normalizes internal errors to a fixed set of HTTP outcomes.
// Unknown errors are logged with full detail and surfaced as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrMissingCredential),
		errors.Is(err, authz.ErrInvalidCredential),
		errors.Is(err, authz.ErrUnknownPrincipal):
		writeErrorMsg(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, authz.ErrInsufficientRole),
		errors.Is(err, authz.ErrUnaffiliated),
		errors.Is(err, authz.ErrForbidden):
		writeErrorMsg(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		writeErrorMsg(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, store.ErrConflict):
		writeErrorMsg(w, http.StatusConflict, "already exists", nil)
	case errors.Is(err, store.ErrInvalidReference):
		writeErrorMsg(w, http.StatusUnprocessableEntity, "invalid reference", nil)
	case errors.Is(err, store.ErrInvalidTransition):
		writeErrorMsg(w, http.StatusConflict, "invalid status transition", nil)
	default:
		log.Printf("internal error: %s %s: %v", r.Method, r.URL.Path, err)
		writeErrorMsg(w, http.StatusInternalServerError, "internal error", nil)
	}
}
