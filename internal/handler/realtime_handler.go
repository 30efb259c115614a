package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"transitlive/internal/domain"
	"transitlive/pkg/gtfsrt"
)

type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RealtimeHandler proxies the trip update and alert feeds as JSON, fetching on every request.
type RealtimeHandler struct {
	client         FeedFetcher
	tripUpdatesURL string
	alertsURL      string
	timeout        time.Duration
	logger         *slog.Logger
}

func NewRealtimeHandler(client FeedFetcher, tripUpdatesURL, alertsURL string, timeout time.Duration, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		client:         client,
		tripUpdatesURL: tripUpdatesURL,
		alertsURL:      alertsURL,
		timeout:        timeout,
		logger:         logger.With("handler", "realtime"),
	}
}

type TripsResponse struct {
	Trips []domain.TripUpdate `json:"trips"`
}

type AlertsResponse struct {
	Alerts []domain.Alert `json:"alerts"`
}

func (h *RealtimeHandler) Trips(w http.ResponseWriter, r *http.Request) {
	if h.tripUpdatesURL == "" {
		respondError(w, http.StatusServiceUnavailable, "trip updates feed not configured")
		return
	}

	feed, err := h.load(r.Context(), h.tripUpdatesURL)
	if err != nil {
		h.logger.Error("Trips failed", "error", err)
		respondError(w, http.StatusBadGateway, "failed to retrieve trip updates")
		return
	}

	trips := feed.TripUpdates()
	if trips == nil {
		trips = []domain.TripUpdate{}
	}
	respondJSON(w, http.StatusOK, TripsResponse{Trips: trips})
}

func (h *RealtimeHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	if h.alertsURL == "" {
		respondError(w, http.StatusServiceUnavailable, "alerts feed not configured")
		return
	}

	feed, err := h.load(r.Context(), h.alertsURL)
	if err != nil {
		h.logger.Error("Alerts failed", "error", err)
		respondError(w, http.StatusBadGateway, "failed to retrieve alerts")
		return
	}

	alerts := feed.Alerts()
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	respondJSON(w, http.StatusOK, AlertsResponse{Alerts: alerts})
}

func (h *RealtimeHandler) load(ctx context.Context, url string) (*domain.FeedMessage, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	raw, err := h.client.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	feed, err := gtfsrt.Decode(raw)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("feed loaded",
		"url", url,
		"entities", len(feed.Entities),
		"size_bytes", len(raw),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return feed, nil
}
