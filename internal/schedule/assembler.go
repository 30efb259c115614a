package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"transitlive/internal/domain"
)

const (
	MessageNoActiveServices = "No active services today."
	MessageNoTrips          = "No trips found for this route today."
)

// Store is the subset of the static schedule store used to assemble schedules.
type Store interface {
	ActiveServiceIDs(ctx context.Context, date time.Time) ([]string, error)
	TripsForRoute(ctx context.Context, routeID string, serviceIDs []string) ([]domain.Trip, error)
	StopTimesForTrips(ctx context.Context, tripIDs []string) ([]domain.StopTime, error)
	StopsByIDs(ctx context.Context, stopIDs []string) (map[string]domain.Stop, error)
}

type Assembler struct {
	store  Store
	logger *slog.Logger
}

func NewAssembler(store Store, logger *slog.Logger) *Assembler {
	return &Assembler{
		store:  store,
		logger: logger.With("component", "schedule"),
	}
}

// Assemble builds the itinerary of every trip of routeID running on date.
// An unknown route or a date without service yields an empty view, not an error.
func (a *Assembler) Assemble(ctx context.Context, routeID string, date time.Time) (*domain.ScheduleView, error) {
	view := &domain.ScheduleView{
		RouteID: routeID,
		Date:    domain.FormatServiceDate(date),
		Status:  domain.ScheduleOK,
		Trips:   []domain.TripSchedule{},
	}

	serviceIDs, err := a.store.ActiveServiceIDs(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("active services: %w", err)
	}
	if len(serviceIDs) == 0 {
		view.Status = domain.ScheduleNoActiveServices
		view.Message = MessageNoActiveServices
		return view, nil
	}

	trips, err := a.store.TripsForRoute(ctx, routeID, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("trips: %w", err)
	}
	if len(trips) == 0 {
		view.Status = domain.ScheduleNoTrips
		view.Message = MessageNoTrips
		return view, nil
	}

	tripIDs := make([]string, len(trips))
	for i, trip := range trips {
		tripIDs[i] = trip.ID
	}

	stopTimes, err := a.store.StopTimesForTrips(ctx, tripIDs)
	if err != nil {
		return nil, fmt.Errorf("stop times: %w", err)
	}

	byTrip := make(map[string][]domain.StopTime, len(trips))
	stopIDs := make([]string, 0, len(stopTimes))
	for _, st := range stopTimes {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
		stopIDs = append(stopIDs, st.StopID)
	}

	stops, err := a.store.StopsByIDs(ctx, stopIDs)
	if err != nil {
		return nil, fmt.Errorf("stops: %w", err)
	}

	unknownStops, badTimes := 0, 0
	for _, trip := range trips {
		ts := domain.TripSchedule{
			TripID:      trip.ID,
			Headsign:    trip.Headsign,
			DirectionID: trip.DirectionID,
			StopTimes:   []domain.ScheduledStop{},
		}
		for _, st := range byTrip[trip.ID] {
			stop, ok := stops[st.StopID]
			if !ok {
				unknownStops++
				continue
			}
			scheduled, err := scheduledStop(st, stop)
			if err != nil {
				badTimes++
				a.logger.Warn("skipping stop time with malformed time",
					"trip_id", st.TripID, "stop_sequence", st.StopSequence, "error", err)
				continue
			}
			ts.StopTimes = append(ts.StopTimes, scheduled)
		}
		view.Trips = append(view.Trips, ts)
	}

	if unknownStops > 0 || badTimes > 0 {
		a.logger.Debug("skipped stop times", "route_id", routeID,
			"unknown_stops", unknownStops, "malformed_times", badTimes)
	}

	return view, nil
}

func scheduledStop(st domain.StopTime, stop domain.Stop) (domain.ScheduledStop, error) {
	arrival, err := domain.ParseOptionalServiceTime(st.ArrivalTime)
	if err != nil {
		return domain.ScheduledStop{}, fmt.Errorf("arrival: %w", err)
	}
	departure, err := domain.ParseOptionalServiceTime(st.DepartureTime)
	if err != nil {
		return domain.ScheduledStop{}, fmt.Errorf("departure: %w", err)
	}
	return domain.ScheduledStop{
		StopID:        st.StopID,
		StopName:      stop.Name,
		ArrivalTime:   arrival,
		DepartureTime: departure,
		StopSequence:  st.StopSequence,
	}, nil
}
