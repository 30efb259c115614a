// Package storetest builds throwaway SQLite schedule databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"transitlive/internal/domain"
	"transitlive/internal/store"
)

const schema = `
CREATE TABLE routes (
	route_id TEXT PRIMARY KEY,
	agency_id TEXT,
	route_short_name TEXT,
	route_long_name TEXT,
	route_type INTEGER NOT NULL,
	route_color TEXT,
	route_text_color TEXT
);
CREATE TABLE stops (
	stop_id TEXT PRIMARY KEY,
	stop_code TEXT,
	stop_name TEXT,
	stop_lat REAL NOT NULL,
	stop_lon REAL NOT NULL
);
CREATE TABLE calendar (
	service_id TEXT PRIMARY KEY,
	monday INTEGER NOT NULL,
	tuesday INTEGER NOT NULL,
	wednesday INTEGER NOT NULL,
	thursday INTEGER NOT NULL,
	friday INTEGER NOT NULL,
	saturday INTEGER NOT NULL,
	sunday INTEGER NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL
);
CREATE TABLE trips (
	trip_id TEXT PRIMARY KEY,
	route_id TEXT NOT NULL,
	service_id TEXT NOT NULL,
	shape_id TEXT,
	trip_headsign TEXT,
	direction_id INTEGER
);
CREATE TABLE stop_times (
	trip_id TEXT NOT NULL,
	stop_id TEXT NOT NULL,
	stop_sequence INTEGER NOT NULL,
	arrival_time TEXT,
	departure_time TEXT,
	PRIMARY KEY (trip_id, stop_sequence)
);
CREATE TABLE shapes (
	shape_id TEXT NOT NULL,
	shape_pt_lat REAL NOT NULL,
	shape_pt_lon REAL NOT NULL,
	shape_pt_sequence INTEGER NOT NULL,
	PRIMARY KEY (shape_id, shape_pt_sequence)
);
`

// Fixture is the content loaded into a fresh database.
type Fixture struct {
	Routes    []domain.Route
	Stops     []domain.Stop
	Calendar  []domain.Calendar
	Trips     []domain.Trip
	StopTimes []domain.StopTime
	Shapes    []domain.ShapePoint
}

// Open creates a schema-initialised SQLite file in t.TempDir.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "gtfs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

// New returns a store backed by a fresh database seeded with f.
func New(t testing.TB, f Fixture) *store.GTFSStore {
	t.Helper()
	db := Open(t)
	Seed(t, db, f)
	return store.NewGTFSStore(db)
}

func Seed(t testing.TB, db *sqlx.DB, f Fixture) {
	t.Helper()
	ctx := context.Background()

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)

	for _, r := range f.Routes {
		_, err := tx.ExecContext(ctx, `INSERT INTO routes VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.AgencyID, r.ShortName, r.LongName, int(r.Type), r.Color, r.TextColor)
		require.NoError(t, err)
	}
	for _, s := range f.Stops {
		_, err := tx.ExecContext(ctx, `INSERT INTO stops VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.Code, s.Name, s.Lat, s.Lon)
		require.NoError(t, err)
	}
	for _, c := range f.Calendar {
		_, err := tx.ExecContext(ctx, `INSERT INTO calendar VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ServiceID, flag(c.Monday), flag(c.Tuesday), flag(c.Wednesday), flag(c.Thursday),
			flag(c.Friday), flag(c.Saturday), flag(c.Sunday), c.StartDate, c.EndDate)
		require.NoError(t, err)
	}
	for _, tr := range f.Trips {
		var shapeID any
		if tr.ShapeID != "" {
			shapeID = tr.ShapeID
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO trips VALUES (?, ?, ?, ?, ?, ?)`,
			tr.ID, tr.RouteID, tr.ServiceID, shapeID, tr.Headsign, tr.DirectionID)
		require.NoError(t, err)
	}
	for _, st := range f.StopTimes {
		_, err := tx.ExecContext(ctx, `INSERT INTO stop_times VALUES (?, ?, ?, ?, ?)`,
			st.TripID, st.StopID, st.StopSequence, st.ArrivalTime, st.DepartureTime)
		require.NoError(t, err)
	}
	for _, p := range f.Shapes {
		_, err := tx.ExecContext(ctx, `INSERT INTO shapes VALUES (?, ?, ?, ?)`,
			p.ShapeID, p.Lat, p.Lon, p.Sequence)
		require.NoError(t, err)
	}

	require.NoError(t, tx.Commit())
}

// EveryDay is a calendar entry active on all weekdays between start and end (YYYYMMDD).
func EveryDay(serviceID, start, end string) domain.Calendar {
	return domain.Calendar{
		ServiceID: serviceID,
		Monday:    true, Tuesday: true, Wednesday: true, Thursday: true,
		Friday: true, Saturday: true, Sunday: true,
		StartDate: start, EndDate: end,
	}
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
