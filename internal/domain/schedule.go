package domain

// ScheduleStatus distinguishes an empty-but-valid schedule from a populated one.
type ScheduleStatus string

const (
	ScheduleOK               ScheduleStatus = "ok"
	ScheduleNoActiveServices ScheduleStatus = "no_active_services"
	ScheduleNoTrips          ScheduleStatus = "no_trips"
)

// ScheduleView is the request-scoped itinerary of a route on one service date.
type ScheduleView struct {
	RouteID string
	Date    string // YYYYMMDD
	Status  ScheduleStatus
	Message string
	Trips   []TripSchedule
}

// TripSchedule lists the ordered stop visits of one trip.
type TripSchedule struct {
	TripID      string          `json:"trip_id"`
	Headsign    string          `json:"trip_headsign"`
	DirectionID *int            `json:"direction_id"`
	StopTimes   []ScheduledStop `json:"stop_times"`
}

// ScheduledStop is a stop-time joined with its stop's display name.
// Absent times encode as null.
type ScheduledStop struct {
	StopID        string       `json:"stop_id"`
	StopName      string       `json:"stop_name"`
	ArrivalTime   *ServiceTime `json:"arrival_time"`
	DepartureTime *ServiceTime `json:"departure_time"`
	StopSequence  int          `json:"stop_sequence"`
}

// RouteDetail aggregates a route with its distinct shapes and visited stops.
type RouteDetail struct {
	Route Route         `json:"route"`
	Shape []ShapePoint  `json:"shape"`
	Stops []StopSummary `json:"stops"`
}

// StopSummary is the compact stop form used in route details.
type StopSummary struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	StopName  string  `json:"stop_name"`
}
