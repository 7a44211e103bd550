// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/opencourts/courtmap/internal/adapters/repository"
)

// CourtHandler handles single court lookups.
type CourtHandler struct {
	deps Dependencies
}

// NewCourtHandler creates a new court handler.
func NewCourtHandler(deps Dependencies) *CourtHandler {
	return &CourtHandler{deps: deps}
}

// HandleGetCourt handles GET /court/{id} requests.
func (h *CourtHandler) HandleGetCourt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/court/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id, err := strconv.ParseUint(path, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid id %q", ErrBadRequest, path))
		return
	}

	court, err := h.deps.Court(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, repository.ErrUnavailable):
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, court)
}
