// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/opencourts/courtmap/internal/adapters/repository"
	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/model"
)

// CourtsHandler handles viewport query requests.
type CourtsHandler struct {
	deps Dependencies
}

// NewCourtsHandler creates a new courts handler.
func NewCourtsHandler(deps Dependencies) *CourtsHandler {
	return &CourtsHandler{deps: deps}
}

// HandleGetCourts handles GET /courts requests.
//
// Query parameters: west, south, east, north (degrees), zoom (0-20), and
// the optional filters sport, surface and public ("true"/"false").
func (h *CourtsHandler) HandleGetCourts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	vp, filters, err := parseViewportQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	res, err := h.deps.QueryViewport(r.Context(), vp, filters)
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrInvalidViewport), errors.Is(err, geo.ErrInvalidFilter):
			writeError(w, http.StatusBadRequest, "bad_request", err)
		case errors.Is(err, repository.ErrUnavailable):
			// Retryable: the client should back off and reissue.
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseViewportQuery builds the typed viewport and filter set from raw
// query parameters. Parse failures report the offending parameter.
func parseViewportQuery(q url.Values) (geo.Viewport, geo.Filters, error) {
	var vp geo.Viewport
	var filters geo.Filters

	coords := map[string]*float64{
		"west":  &vp.BBox.West,
		"south": &vp.BBox.South,
		"east":  &vp.BBox.East,
		"north": &vp.BBox.North,
	}
	for name, dst := range coords {
		raw := q.Get(name)
		if raw == "" {
			return vp, filters, fmt.Errorf("%w: missing %s", ErrBadRequest, name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return vp, filters, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, name, raw)
		}
		*dst = v
	}

	rawZoom := q.Get("zoom")
	if rawZoom == "" {
		return vp, filters, fmt.Errorf("%w: missing zoom", ErrBadRequest)
	}
	zoom, err := strconv.Atoi(rawZoom)
	if err != nil {
		return vp, filters, fmt.Errorf("%w: invalid zoom %q", ErrBadRequest, rawZoom)
	}
	vp.Zoom = zoom

	if raw := q.Get("sport"); raw != "" {
		sport, err := model.ParseSport(raw)
		if err != nil {
			return vp, filters, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		filters.Sport = &sport
	}
	if raw := q.Get("surface"); raw != "" {
		surface, err := model.ParseSurface(raw)
		if err != nil {
			return vp, filters, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		filters.Surface = &surface
	}
	if raw := q.Get("public"); raw != "" {
		public, err := model.ParseTriState(raw)
		if err != nil {
			return vp, filters, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		filters.Public = public
	}
	return vp, filters, nil
}
