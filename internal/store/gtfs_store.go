package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"transitlive/internal/domain"
)

// maxInParams bounds the number of ids bound into a single IN list.
const maxInParams = 500

// GTFSStore reads the static schedule tables. It never writes.
type GTFSStore struct {
	db *sqlx.DB
}

func NewGTFSStore(db *sqlx.DB) *GTFSStore {
	return &GTFSStore{db: db}
}

func (s *GTFSStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *GTFSStore) Close() error {
	return s.db.Close()
}

const routeColumns = `route_id, COALESCE(agency_id, '') AS agency_id,
	COALESCE(route_short_name, '') AS route_short_name,
	COALESCE(route_long_name, '') AS route_long_name, route_type,
	COALESCE(route_color, '') AS route_color,
	COALESCE(route_text_color, '') AS route_text_color`

const tripColumns = `trip_id, route_id, service_id,
	COALESCE(shape_id, '') AS shape_id,
	COALESCE(trip_headsign, '') AS trip_headsign, direction_id`

const stopColumns = `stop_id, COALESCE(stop_code, '') AS stop_code,
	COALESCE(stop_name, '') AS stop_name, stop_lat, stop_lon`

// ActiveServiceIDs returns the services whose calendar covers date and runs on its weekday.
func (s *GTFSStore) ActiveServiceIDs(ctx context.Context, date time.Time) ([]string, error) {
	d := domain.FormatServiceDate(date)
	// The column name comes from time.Weekday, never from input.
	q := fmt.Sprintf(`SELECT service_id FROM calendar
		WHERE %s = 1 AND start_date <= ? AND end_date >= ?
		ORDER BY service_id`, domain.WeekdayColumn(date))

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(q), d, d); err != nil {
		return nil, fmt.Errorf("query active services: %w", err)
	}
	return ids, nil
}

// TripsForRoute returns the trips of routeID that belong to one of serviceIDs, ordered by trip_id.
func (s *GTFSStore) TripsForRoute(ctx context.Context, routeID string, serviceIDs []string) ([]domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE route_id = ? AND service_id IN (?)`
	trips, err := selectIn[domain.Trip](ctx, s.db, q, serviceIDs, routeID)
	if err != nil {
		return nil, fmt.Errorf("query trips for route %s: %w", routeID, err)
	}
	sortTrips(trips)
	return trips, nil
}

// TripsForRoutes returns every trip of the given routes, ordered by route then trip.
func (s *GTFSStore) TripsForRoutes(ctx context.Context, routeIDs []string) ([]domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE route_id IN (?)`
	trips, err := selectIn[domain.Trip](ctx, s.db, q, routeIDs)
	if err != nil {
		return nil, fmt.Errorf("query trips for routes: %w", err)
	}
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].RouteID != trips[j].RouteID {
			return trips[i].RouteID < trips[j].RouteID
		}
		return trips[i].ID < trips[j].ID
	})
	return trips, nil
}

// StopTimesForTrips returns the stop-times of tripIDs sorted by (trip_id, stop_sequence).
// Times are returned as stored; NULL reads as an empty string.
func (s *GTFSStore) StopTimesForTrips(ctx context.Context, tripIDs []string) ([]domain.StopTime, error) {
	q := `SELECT trip_id, stop_id, stop_sequence,
		COALESCE(arrival_time, '') AS arrival_time,
		COALESCE(departure_time, '') AS departure_time
		FROM stop_times WHERE trip_id IN (?)`
	stopTimes, err := selectIn[domain.StopTime](ctx, s.db, q, tripIDs)
	if err != nil {
		return nil, fmt.Errorf("query stop times: %w", err)
	}
	sort.Slice(stopTimes, func(i, j int) bool {
		if stopTimes[i].TripID != stopTimes[j].TripID {
			return stopTimes[i].TripID < stopTimes[j].TripID
		}
		return stopTimes[i].StopSequence < stopTimes[j].StopSequence
	})
	return stopTimes, nil
}

// StopIDsForTrips returns the distinct stop ids visited by tripIDs, sorted.
func (s *GTFSStore) StopIDsForTrips(ctx context.Context, tripIDs []string) ([]string, error) {
	q := `SELECT DISTINCT stop_id FROM stop_times WHERE trip_id IN (?)`
	ids, err := selectIn[string](ctx, s.db, q, tripIDs)
	if err != nil {
		return nil, fmt.Errorf("query stop ids: %w", err)
	}
	return dedupeSorted(ids), nil
}

// StopsByIDs resolves stop ids. Unknown ids are absent from the result.
func (s *GTFSStore) StopsByIDs(ctx context.Context, stopIDs []string) (map[string]domain.Stop, error) {
	q := `SELECT ` + stopColumns + ` FROM stops WHERE stop_id IN (?)`
	stops, err := selectIn[domain.Stop](ctx, s.db, q, dedupeSorted(stopIDs))
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	result := make(map[string]domain.Stop, len(stops))
	for _, stop := range stops {
		result[stop.ID] = stop
	}
	return result, nil
}

// ShapePoints returns the points of shapeIDs ordered by shape then sequence.
func (s *GTFSStore) ShapePoints(ctx context.Context, shapeIDs []string) ([]domain.ShapePoint, error) {
	q := `SELECT shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence
		FROM shapes WHERE shape_id IN (?)`
	points, err := selectIn[domain.ShapePoint](ctx, s.db, q, dedupeSorted(shapeIDs))
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].ShapeID != points[j].ShapeID {
			return points[i].ShapeID < points[j].ShapeID
		}
		return points[i].Sequence < points[j].Sequence
	})
	return points, nil
}

// RoutesForTrips maps trip ids to the route serving them. Unknown trips are absent.
func (s *GTFSStore) RoutesForTrips(ctx context.Context, tripIDs []string) (map[string]domain.RouteInfo, error) {
	type tripRoute struct {
		TripID string `db:"trip_id"`
		domain.RouteInfo
	}

	q := `SELECT t.trip_id, r.route_id,
		COALESCE(r.route_short_name, '') AS route_short_name,
		COALESCE(r.route_color, '') AS route_color
		FROM trips t JOIN routes r ON r.route_id = t.route_id
		WHERE t.trip_id IN (?)`
	rows, err := selectIn[tripRoute](ctx, s.db, q, dedupeSorted(tripIDs))
	if err != nil {
		return nil, fmt.Errorf("query routes for trips: %w", err)
	}
	result := make(map[string]domain.RouteInfo, len(rows))
	for _, row := range rows {
		result[row.TripID] = row.RouteInfo
	}
	return result, nil
}

func (s *GTFSStore) Routes(ctx context.Context) ([]domain.Route, error) {
	var routes []domain.Route
	q := `SELECT ` + routeColumns + ` FROM routes ORDER BY route_id`
	if err := s.db.SelectContext(ctx, &routes, q); err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	return routes, nil
}

func (s *GTFSStore) Route(ctx context.Context, routeID string) (*domain.Route, error) {
	var route domain.Route
	q := s.db.Rebind(`SELECT ` + routeColumns + ` FROM routes WHERE route_id = ?`)
	if err := s.db.GetContext(ctx, &route, q, routeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query route %s: %w", routeID, err)
	}
	return &route, nil
}

func (s *GTFSStore) Stops(ctx context.Context) ([]domain.Stop, error) {
	var stops []domain.Stop
	q := `SELECT ` + stopColumns + ` FROM stops ORDER BY stop_id`
	if err := s.db.SelectContext(ctx, &stops, q); err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	return stops, nil
}

// selectIn runs query once per chunk of ids. The query must end its bind
// parameters with a single "IN (?)" placeholder that receives the chunk.
func selectIn[T any](ctx context.Context, db *sqlx.DB, query string, ids []string, args ...any) ([]T, error) {
	var out []T
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))

		bound := make([]any, 0, len(args)+1)
		bound = append(bound, args...)
		bound = append(bound, ids[start:end])

		q, qargs, err := sqlx.In(query, bound...)
		if err != nil {
			return nil, err
		}

		var chunk []T
		if err := db.SelectContext(ctx, &chunk, db.Rebind(q), qargs...); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func sortTrips(trips []domain.Trip) {
	sort.Slice(trips, func(i, j int) bool { return trips[i].ID < trips[j].ID })
}

func dedupeSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
