// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/opencourts/courtmap/internal/app"
	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// QueryViewport routes a validated viewport query to the storage tier
	// for its zoom level.
	QueryViewport(ctx context.Context, vp geo.Viewport, filters geo.Filters) (service.ViewportResult, error)

	// Court returns one court by id.
	Court(ctx context.Context, id uint64) (model.Court, error)

	// Stats returns current store counts.
	Stats(ctx context.Context) service.Stats
}

// Server wires HTTP routes for the business API.
type Server struct {
	courtsHandler *CourtsHandler
	courtHandler  *CourtHandler
	statsHandler  *StatsHandler
	healthHandler *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		courtsHandler: NewCourtsHandler(deps),
		courtHandler:  NewCourtHandler(deps),
		statsHandler:  NewStatsHandler(deps),
		healthHandler: NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/courts", MetricsMiddleware(s.courtsHandler.HandleGetCourts, "courts"))
	mux.HandleFunc("/court/", MetricsMiddleware(s.courtHandler.HandleGetCourt, "court"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
