package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RouteType distinguishes transport types in GTFS
type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCableTram  RouteType = 5
	RouteTypeAerialLift RouteType = 6
	RouteTypeFunicular  RouteType = 7
)

// Route represents a transit route from GTFS
type Route struct {
	ID        string    `json:"route_id" db:"route_id"`
	AgencyID  string    `json:"agency_id" db:"agency_id"`
	ShortName string    `json:"route_short_name" db:"route_short_name"`
	LongName  string    `json:"route_long_name" db:"route_long_name"`
	Type      RouteType `json:"route_type" db:"route_type"`
	Color     string    `json:"route_color" db:"route_color"`
	TextColor string    `json:"route_text_color" db:"route_text_color"`
}

// Stop represents a transit stop from GTFS
type Stop struct {
	ID   string  `json:"stop_id" db:"stop_id"`
	Code string  `json:"stop_code" db:"stop_code"`
	Name string  `json:"stop_name" db:"stop_name"`
	Lat  float64 `json:"stop_lat" db:"stop_lat"`
	Lon  float64 `json:"stop_lon" db:"stop_lon"`
}

// Trip belongs to exactly one route and one service.
type Trip struct {
	ID          string `json:"trip_id" db:"trip_id"`
	RouteID     string `json:"route_id" db:"route_id"`
	ServiceID   string `json:"service_id" db:"service_id"`
	ShapeID     string `json:"shape_id" db:"shape_id"`
	Headsign    string `json:"trip_headsign" db:"trip_headsign"`
	DirectionID *int   `json:"direction_id" db:"direction_id"`
}

// StopTime represents a scheduled visit of a trip to a stop. Times are kept
// as stored; stops that are not timepoints carry empty times.
type StopTime struct {
	TripID        string `db:"trip_id"`
	StopID        string `db:"stop_id"`
	StopSequence  int    `db:"stop_sequence"`
	ArrivalTime   string `db:"arrival_time"`
	DepartureTime string `db:"departure_time"`
}

// ShapePoint represents a single point in a route shape
type ShapePoint struct {
	ShapeID  string  `json:"shape_id" db:"shape_id"`
	Lat      float64 `json:"latitude" db:"shape_pt_lat"`
	Lon      float64 `json:"longitude" db:"shape_pt_lon"`
	Sequence int     `json:"sequence" db:"shape_pt_sequence"`
}

// Calendar represents service availability by day of week
type Calendar struct {
	ServiceID string `db:"service_id"`
	Monday    bool   `db:"monday"`
	Tuesday   bool   `db:"tuesday"`
	Wednesday bool   `db:"wednesday"`
	Thursday  bool   `db:"thursday"`
	Friday    bool   `db:"friday"`
	Saturday  bool   `db:"saturday"`
	Sunday    bool   `db:"sunday"`
	StartDate string `db:"start_date"` // YYYYMMDD
	EndDate   string `db:"end_date"`   // YYYYMMDD
}

// ActiveOn reports whether the service operates on the calendar date of t.
func (c *Calendar) ActiveOn(t time.Time) bool {
	d := FormatServiceDate(t)
	if d < c.StartDate || d > c.EndDate {
		return false
	}
	switch t.Weekday() {
	case time.Monday:
		return c.Monday
	case time.Tuesday:
		return c.Tuesday
	case time.Wednesday:
		return c.Wednesday
	case time.Thursday:
		return c.Thursday
	case time.Friday:
		return c.Friday
	case time.Saturday:
		return c.Saturday
	default:
		return c.Sunday
	}
}

// FormatServiceDate renders t in the GTFS YYYYMMDD form used by the calendar table.
func FormatServiceDate(t time.Time) string {
	return t.Format("20060102")
}

// WeekdayColumn returns the calendar column holding the flag for t's weekday.
func WeekdayColumn(t time.Time) string {
	return strings.ToLower(t.Weekday().String())
}

// ServiceTime is a GTFS time of day expressed as seconds since the service-day
// midnight. Values past 24:00:00 are valid and are never wrapped.
type ServiceTime int

// ParseServiceTime parses H:MM:SS or HH:MM:SS, allowing hours >= 24.
func ParseServiceTime(s string) (ServiceTime, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid service time %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid service time %q", s)
		}
		v[i] = n
	}
	if v[1] > 59 || v[2] > 59 {
		return 0, fmt.Errorf("invalid service time %q", s)
	}
	return ServiceTime(v[0]*3600 + v[1]*60 + v[2]), nil
}

// ParseOptionalServiceTime parses a stored stop-time value. A blank value is
// an untimed stop and yields nil.
func ParseOptionalServiceTime(s string) (*ServiceTime, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := ParseServiceTime(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (t ServiceTime) String() string {
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func (t ServiceTime) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ServiceTime) UnmarshalText(b []byte) error {
	v, err := ParseServiceTime(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
