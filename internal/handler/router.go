package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Routes struct {
	GTFS     *GTFSHandler
	Realtime *RealtimeHandler
	Vehicles *HTTPHandler
	Health   *HealthHandler
	WS       *WSHandler
	Metrics  http.Handler

	AllowedOrigins []string
	// RateLimit guards the store backed endpoints when set.
	RateLimit func(http.Handler) http.Handler
}

func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(CORSMiddleware(rt.AllowedOrigins))

	r.Get("/healthz", rt.Health.Healthz)
	r.Get("/readyz", rt.Health.Readyz)
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics)
	}
	r.Get("/ws/bus-positions", rt.WS.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(GzipMiddleware)

		r.Get("/", rt.GTFS.Root)
		r.Get("/vehicles", rt.Vehicles.ListVehicles)
		r.Get("/vehicles/{vehicle_id}", rt.Vehicles.GetVehicle)
		r.Get("/real-time-trips", rt.Realtime.Trips)
		r.Get("/real-time-alerts", rt.Realtime.Alerts)

		r.Group(func(r chi.Router) {
			if rt.RateLimit != nil {
				r.Use(rt.RateLimit)
			}
			r.Get("/routes", rt.GTFS.ListRoutes)
			r.Get("/routes/{route_id}", rt.GTFS.GetRoute)
			r.Get("/routes/{route_id}/schedule", rt.GTFS.RouteSchedule)
			r.Get("/stops", rt.GTFS.ListStops)
			r.Get("/all-routes/details", rt.GTFS.AllRouteDetails)
		})
	})

	return r
}
