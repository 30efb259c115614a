package routedetail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"transitlive/internal/domain"
)

type Store interface {
	Routes(ctx context.Context) ([]domain.Route, error)
	TripsForRoutes(ctx context.Context, routeIDs []string) ([]domain.Trip, error)
	ShapePoints(ctx context.Context, shapeIDs []string) ([]domain.ShapePoint, error)
	StopIDsForTrips(ctx context.Context, tripIDs []string) ([]string, error)
	StopsByIDs(ctx context.Context, stopIDs []string) (map[string]domain.Stop, error)
}

// Aggregator joins every route with the shapes and stops its trips use.
type Aggregator struct {
	store  Store
	logger *slog.Logger
}

func NewAggregator(store Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger.With("component", "route_details"),
	}
}

// Aggregate returns details for every route that has at least one trip, ordered by route id.
// Each shape and each stop is looked up once per route no matter how many trips share it.
func (a *Aggregator) Aggregate(ctx context.Context) ([]domain.RouteDetail, error) {
	start := time.Now()

	routes, err := a.store.Routes(ctx)
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	routeIDs := make([]string, len(routes))
	for i, r := range routes {
		routeIDs[i] = r.ID
	}

	trips, err := a.store.TripsForRoutes(ctx, routeIDs)
	if err != nil {
		return nil, fmt.Errorf("trips: %w", err)
	}

	tripsByRoute := make(map[string][]domain.Trip)
	for _, trip := range trips {
		tripsByRoute[trip.RouteID] = append(tripsByRoute[trip.RouteID], trip)
	}

	details := make([]domain.RouteDetail, 0, len(routes))
	for _, route := range routes {
		routeTrips := tripsByRoute[route.ID]
		if len(routeTrips) == 0 {
			continue
		}

		detail, err := a.routeDetail(ctx, route, routeTrips)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", route.ID, err)
		}
		details = append(details, detail)
	}

	a.logger.Debug("aggregated route details",
		"routes", len(details),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return details, nil
}

func (a *Aggregator) routeDetail(ctx context.Context, route domain.Route, trips []domain.Trip) (domain.RouteDetail, error) {
	detail := domain.RouteDetail{
		Route: route,
		Shape: []domain.ShapePoint{},
		Stops: []domain.StopSummary{},
	}

	shapeIDs := make([]string, 0, len(trips))
	tripIDs := make([]string, 0, len(trips))
	seenShape := make(map[string]struct{})
	for _, trip := range trips {
		tripIDs = append(tripIDs, trip.ID)
		if trip.ShapeID == "" {
			continue
		}
		if _, ok := seenShape[trip.ShapeID]; ok {
			continue
		}
		seenShape[trip.ShapeID] = struct{}{}
		shapeIDs = append(shapeIDs, trip.ShapeID)
	}

	// Shapes missing from the store simply produce no points.
	points, err := a.store.ShapePoints(ctx, shapeIDs)
	if err != nil {
		return detail, fmt.Errorf("shapes: %w", err)
	}
	detail.Shape = append(detail.Shape, points...)

	stopIDs, err := a.store.StopIDsForTrips(ctx, tripIDs)
	if err != nil {
		return detail, fmt.Errorf("stop ids: %w", err)
	}
	stops, err := a.store.StopsByIDs(ctx, stopIDs)
	if err != nil {
		return detail, fmt.Errorf("stops: %w", err)
	}
	for _, id := range stopIDs {
		stop, ok := stops[id]
		if !ok {
			continue
		}
		detail.Stops = append(detail.Stops, domain.StopSummary{
			Latitude:  stop.Lat,
			Longitude: stop.Lon,
			StopName:  stop.Name,
		})
	}

	return detail, nil
}
