package domain

import "time"

// VehicleUpdate is a single vehicle position observation from the realtime feed.
type VehicleUpdate struct {
	VehicleID string
	TripID    string
	RouteID   string
	Latitude  float64
	Longitude float64
	Bearing   float64
	Timestamp time.Time
}

func (*VehicleUpdate) isEntityPayload() {}

// RouteInfo is the route metadata attached to a tracked vehicle through its trip.
type RouteInfo struct {
	RouteID   string `db:"route_id"`
	ShortName string `db:"route_short_name"`
	Color     string `db:"route_color"`
}

// Observation is a vehicle update joined with the route serving its trip.
type Observation struct {
	VehicleUpdate
	Route RouteInfo
}

// Position is the wire representation of one vehicle pushed to subscribers.
type Position struct {
	VehicleID      string  `json:"vehicle_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Bearing        float64 `json:"bearing"`
	RouteID        string  `json:"route_id"`
	RouteShortName string  `json:"route_short_name"`
	RouteColor     string  `json:"route_color"`
}

// PositionsPayload is the message sent for every changed cycle.
type PositionsPayload struct {
	Positions []Position `json:"positions"`
}

// ChangeSet is the outcome of diffing one batch of observations.
// Positions is only populated when Changed is true.
type ChangeSet struct {
	Changed   bool
	Positions []Position
}
