package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitlive/internal/domain"
	"transitlive/internal/store"
	"transitlive/internal/store/storetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

// 2024-03-05 is a Tuesday, 2024-03-09 a Saturday.
var (
	tuesday  = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	saturday = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
)

func seed(t *testing.T) storetest.Fixture {
	weekdays := domain.Calendar{
		ServiceID: "WK", Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true,
		StartDate: "20240101", EndDate: "20241231",
	}
	sundays := domain.Calendar{ServiceID: "SUN", Sunday: true, StartDate: "20240101", EndDate: "20241231"}

	st := func(trip, stop string, seq int, at string) domain.StopTime {
		return domain.StopTime{TripID: trip, StopID: stop, StopSequence: seq, ArrivalTime: at, DepartureTime: at}
	}

	return storetest.Fixture{
		Routes: []domain.Route{{ID: "R1", ShortName: "1", Type: domain.RouteTypeBus}},
		Stops: []domain.Stop{
			{ID: "A", Name: "Alpha"},
			{ID: "B", Name: "Bravo"},
			{ID: "C", Name: "Charlie"},
		},
		Calendar: []domain.Calendar{weekdays, sundays},
		Trips: []domain.Trip{
			{ID: "T2", RouteID: "R1", ServiceID: "WK", Headsign: "Depot", DirectionID: intPtr(1)},
			{ID: "T1", RouteID: "R1", ServiceID: "WK", Headsign: "Centre", DirectionID: intPtr(0)},
			{ID: "T9", RouteID: "R1", ServiceID: "SUN", Headsign: "Sunday"},
		},
		StopTimes: []domain.StopTime{
			st("T1", "C", 3, "24:15:00"),
			st("T1", "A", 1, "23:50:00"),
			st("T1", "GONE", 2, "24:00:00"),
			st("T2", "B", 1, "06:00:00"),
			st("T2", "A", 2, "06:10:00"),
			st("T9", "A", 1, "09:00:00"),
		},
	}
}

func TestAssembleOrdersTripsAndStops(t *testing.T) {
	a := NewAssembler(storetest.New(t, seed(t)), testLogger())

	view, err := a.Assemble(context.Background(), "R1", tuesday)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleOK, view.Status)
	assert.Equal(t, "20240305", view.Date)
	require.Len(t, view.Trips, 2)

	t1 := view.Trips[0]
	assert.Equal(t, "T1", t1.TripID)
	assert.Equal(t, "Centre", t1.Headsign)
	require.NotNil(t, t1.DirectionID)
	assert.Equal(t, 0, *t1.DirectionID)

	// unknown stop GONE is dropped
	require.Len(t, t1.StopTimes, 2)
	assert.Equal(t, "A", t1.StopTimes[0].StopID)
	assert.Equal(t, "Alpha", t1.StopTimes[0].StopName)
	assert.Equal(t, "C", t1.StopTimes[1].StopID)
	require.NotNil(t, t1.StopTimes[1].ArrivalTime)
	assert.Equal(t, "24:15:00", t1.StopTimes[1].ArrivalTime.String())

	assert.Equal(t, "T2", view.Trips[1].TripID)
	assert.Equal(t, []string{"B", "A"}, []string{view.Trips[1].StopTimes[0].StopID, view.Trips[1].StopTimes[1].StopID})
}

func TestAssembleTripsBelongToActiveServices(t *testing.T) {
	f := seed(t)
	a := NewAssembler(storetest.New(t, f), testLogger())

	calendars := make(map[string]domain.Calendar, len(f.Calendar))
	for _, c := range f.Calendar {
		calendars[c.ServiceID] = c
	}
	tripService := make(map[string]string, len(f.Trips))
	var expected []string
	for _, trip := range f.Trips {
		tripService[trip.ID] = trip.ServiceID
		c := calendars[trip.ServiceID]
		if trip.RouteID == "R1" && c.ActiveOn(tuesday) {
			expected = append(expected, trip.ID)
		}
	}

	view, err := a.Assemble(context.Background(), "R1", tuesday)
	require.NoError(t, err)

	var got []string
	for _, trip := range view.Trips {
		got = append(got, trip.TripID)
		c := calendars[tripService[trip.TripID]]
		assert.True(t, c.ActiveOn(tuesday), "trip %s runs under an inactive service", trip.TripID)
		for i := 1; i < len(trip.StopTimes); i++ {
			assert.Greater(t, trip.StopTimes[i].StopSequence, trip.StopTimes[i-1].StopSequence)
		}
	}
	assert.ElementsMatch(t, expected, got)
	assert.NotContains(t, got, "T9")
}

func TestAssembleIsIdempotent(t *testing.T) {
	a := NewAssembler(storetest.New(t, seed(t)), testLogger())
	ctx := context.Background()

	first, err := a.Assemble(ctx, "R1", tuesday)
	require.NoError(t, err)
	second, err := a.Assemble(ctx, "R1", tuesday)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssembleNoActiveServices(t *testing.T) {
	a := NewAssembler(storetest.New(t, seed(t)), testLogger())

	view, err := a.Assemble(context.Background(), "R1", saturday)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleNoActiveServices, view.Status)
	assert.Equal(t, MessageNoActiveServices, view.Message)
	assert.Empty(t, view.Trips)
}

func TestAssembleUnknownRoute(t *testing.T) {
	a := NewAssembler(storetest.New(t, seed(t)), testLogger())

	view, err := a.Assemble(context.Background(), "does-not-exist", tuesday)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleNoTrips, view.Status)
	assert.Equal(t, MessageNoTrips, view.Message)
	assert.Empty(t, view.Trips)
}

type failingStore struct{ Store }

func (failingStore) ActiveServiceIDs(context.Context, time.Time) ([]string, error) {
	return nil, errors.New("connection reset")
}

func TestAssembleStoreError(t *testing.T) {
	a := NewAssembler(failingStore{}, testLogger())

	_, err := a.Assemble(context.Background(), "R1", tuesday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAssembleUntimedAndMalformedStopTimes(t *testing.T) {
	f := seed(t)
	f.StopTimes = []domain.StopTime{
		{TripID: "T1", StopID: "A", StopSequence: 1, ArrivalTime: "08:00:00", DepartureTime: "08:00:00"},
		{TripID: "T1", StopID: "B", StopSequence: 2},
		{TripID: "T1", StopID: "C", StopSequence: 3, ArrivalTime: "08:20:00", DepartureTime: "08:21:00"},
		{TripID: "T2", StopID: "B", StopSequence: 1, ArrivalTime: "06:00:00", DepartureTime: "8:20"},
		{TripID: "T2", StopID: "A", StopSequence: 2, ArrivalTime: "06:10:00", DepartureTime: "06:10:00"},
	}
	db := storetest.Open(t)
	storetest.Seed(t, db, f)
	_, err := db.Exec(`UPDATE stop_times SET arrival_time = NULL WHERE trip_id = 'T1' AND stop_sequence = 3`)
	require.NoError(t, err)
	a := NewAssembler(store.NewGTFSStore(db), testLogger())

	view, err := a.Assemble(context.Background(), "R1", tuesday)
	require.NoError(t, err)
	require.Len(t, view.Trips, 2)

	t1 := view.Trips[0]
	require.Len(t, t1.StopTimes, 3)
	assert.Nil(t, t1.StopTimes[1].ArrivalTime)
	assert.Nil(t, t1.StopTimes[1].DepartureTime)
	assert.Nil(t, t1.StopTimes[2].ArrivalTime)
	require.NotNil(t, t1.StopTimes[2].DepartureTime)
	assert.Equal(t, "08:21:00", t1.StopTimes[2].DepartureTime.String())

	raw, err := json.Marshal(t1.StopTimes[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"stop_id":"B","stop_name":"Bravo","arrival_time":null,"departure_time":null,"stop_sequence":2}`, string(raw))

	// the malformed row is dropped, the rest of its trip survives
	t2 := view.Trips[1]
	require.Len(t, t2.StopTimes, 1)
	assert.Equal(t, "A", t2.StopTimes[0].StopID)
}
