package handler

import (
	"context"
	"net/http"
	"time"
)

type Readiness interface {
	IsReady() bool
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Counter interface {
	Count() int
}

type HealthHandler struct {
	feed     Readiness
	db       Pinger
	vehicles Counter
}

func NewHealthHandler(feed Readiness, db Pinger, vehicles Counter) *HealthHandler {
	return &HealthHandler{
		feed:     feed,
		db:       db,
		vehicles: vehicles,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready        bool      `json:"ready"`
	Feed         bool      `json:"feed"`
	Database     bool      `json:"database"`
	VehicleCount int       `json:"vehicle_count"`
	ServerTime   time.Time `json:"server_time"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	feedReady := h.feed.IsReady()
	dbReady := h.db.Ping(ctx) == nil

	ready := feedReady && dbReady
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:        ready,
		Feed:         feedReady,
		Database:     dbReady,
		VehicleCount: h.vehicles.Count(),
		ServerTime:   time.Now(),
	})
}
