package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"transitlive/internal/domain"
	"transitlive/internal/store"
)

type ScheduleStore interface {
	Routes(ctx context.Context) ([]domain.Route, error)
	Route(ctx context.Context, routeID string) (*domain.Route, error)
	Stops(ctx context.Context) ([]domain.Stop, error)
}

type ScheduleAssembler interface {
	Assemble(ctx context.Context, routeID string, date time.Time) (*domain.ScheduleView, error)
}

type RouteDetailSource interface {
	Aggregate(ctx context.Context) ([]domain.RouteDetail, error)
}

type GTFSHandler struct {
	store     ScheduleStore
	assembler ScheduleAssembler
	details   RouteDetailSource
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

func NewGTFSHandler(store ScheduleStore, assembler ScheduleAssembler, details RouteDetailSource, location *time.Location, logger *slog.Logger) *GTFSHandler {
	if location == nil {
		location = time.Local
	}
	return &GTFSHandler{
		store:     store,
		assembler: assembler,
		details:   details,
		location:  location,
		now:       time.Now,
		logger:    logger.With("handler", "gtfs"),
	}
}

type RootResponse struct {
	Message string `json:"message"`
}

type ScheduleResponse struct {
	Schedule []domain.TripSchedule `json:"schedule"`
	Message  string                `json:"message,omitempty"`
}

type RouteDetailsResponse struct {
	Routes []domain.RouteDetail `json:"routes"`
}

func (h *GTFSHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RootResponse{Message: "transitlive"})
}

func (h *GTFSHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	routes, err := h.store.Routes(r.Context())
	if err != nil {
		h.logger.Error("ListRoutes failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to retrieve routes")
		return
	}
	if routes == nil {
		routes = []domain.Route{}
	}

	h.logger.Debug("ListRoutes response",
		"count", len(routes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	respondJSON(w, http.StatusOK, routes)
}

func (h *GTFSHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "route_id")

	route, err := h.store.Route(r.Context(), routeID)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Debug("GetRoute not found", "route_id", routeID)
		respondError(w, http.StatusNotFound, "route not found")
		return
	}
	if err != nil {
		h.logger.Error("GetRoute failed", "route_id", routeID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to retrieve route")
		return
	}

	respondJSON(w, http.StatusOK, route)
}

func (h *GTFSHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	stops, err := h.store.Stops(r.Context())
	if err != nil {
		h.logger.Error("ListStops failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to retrieve stops")
		return
	}
	if stops == nil {
		stops = []domain.Stop{}
	}

	h.logger.Debug("ListStops response",
		"count", len(stops),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	respondJSON(w, http.StatusOK, stops)
}

// RouteSchedule answers the itinerary of a route for ?date=YYYY-MM-DD, or today in
// the service timezone when the parameter is absent.
func (h *GTFSHandler) RouteSchedule(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	routeID := chi.URLParam(r, "route_id")

	date := h.now().In(h.location)
	if q := r.URL.Query().Get("date"); q != "" {
		d, err := time.ParseInLocation("2006-01-02", q, h.location)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
			return
		}
		date = d
	}

	view, err := h.assembler.Assemble(r.Context(), routeID, date)
	if err != nil {
		h.logger.Error("RouteSchedule failed", "route_id", routeID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to retrieve schedule")
		return
	}

	h.logger.Debug("RouteSchedule response",
		"route_id", routeID,
		"date", view.Date,
		"status", view.Status,
		"trips", len(view.Trips),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	resp := ScheduleResponse{Schedule: view.Trips, Message: view.Message}
	if resp.Schedule == nil {
		resp.Schedule = []domain.TripSchedule{}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *GTFSHandler) AllRouteDetails(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	details, err := h.details.Aggregate(r.Context())
	if err != nil {
		h.logger.Error("AllRouteDetails failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to retrieve route details")
		return
	}
	if details == nil {
		details = []domain.RouteDetail{}
	}

	h.logger.Debug("AllRouteDetails response",
		"routes", len(details),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	respondJSON(w, http.StatusOK, RouteDetailsResponse{Routes: details})
}
