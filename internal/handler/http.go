package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"transitlive/internal/domain"
)

// VehicleSource exposes the tracked vehicle positions.
type VehicleSource interface {
	Snapshot() []domain.Position
	Get(vehicleID string) (domain.Position, bool)
}

type HTTPHandler struct {
	vehicles VehicleSource
}

func NewHTTPHandler(vehicles VehicleSource) *HTTPHandler {
	return &HTTPHandler{vehicles: vehicles}
}

type VehiclesResponse struct {
	Positions  []domain.Position `json:"positions"`
	Count      int               `json:"count"`
	ServerTime time.Time         `json:"server_time"`
}

func (h *HTTPHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	positions := h.vehicles.Snapshot()

	respondJSON(w, http.StatusOK, VehiclesResponse{
		Positions:  positions,
		Count:      len(positions),
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vehicle_id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing vehicle id")
		return
	}

	position, ok := h.vehicles.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "vehicle not found")
		return
	}

	respondJSON(w, http.StatusOK, position)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
