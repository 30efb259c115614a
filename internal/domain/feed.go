package domain

import "time"

// FeedMessage is a decoded realtime feed snapshot.
type FeedMessage struct {
	Version   string
	Timestamp time.Time
	Entities  []FeedEntity
}

// FeedEntity carries exactly one payload. Use a type switch on Payload:
//
//	switch p := e.Payload.(type) {
//	case *VehicleUpdate:
//	case *TripUpdate:
//	case *Alert:
//	}
type FeedEntity struct {
	ID      string
	Payload EntityPayload
}

// EntityPayload is implemented only by *VehicleUpdate, *TripUpdate and *Alert.
type EntityPayload interface {
	isEntityPayload()
}

// VehicleUpdates returns the vehicle payloads of the message in source order.
func (m *FeedMessage) VehicleUpdates() []VehicleUpdate {
	var out []VehicleUpdate
	for _, e := range m.Entities {
		if v, ok := e.Payload.(*VehicleUpdate); ok {
			out = append(out, *v)
		}
	}
	return out
}

// TripUpdates returns the trip update payloads of the message in source order.
func (m *FeedMessage) TripUpdates() []TripUpdate {
	var out []TripUpdate
	for _, e := range m.Entities {
		if t, ok := e.Payload.(*TripUpdate); ok {
			out = append(out, *t)
		}
	}
	return out
}

// Alerts returns the alert payloads of the message in source order.
func (m *FeedMessage) Alerts() []Alert {
	var out []Alert
	for _, e := range m.Entities {
		if a, ok := e.Payload.(*Alert); ok {
			out = append(out, *a)
		}
	}
	return out
}

// TripUpdate is the flattened projection of a realtime trip update.
type TripUpdate struct {
	TripID          string           `json:"trip_id"`
	RouteID         string           `json:"route_id"`
	StartTime       string           `json:"start_time"`
	StartDate       string           `json:"start_date"`
	StopTimeUpdates []StopTimeUpdate `json:"stop_time_updates"`
}

func (*TripUpdate) isEntityPayload() {}

// StopTimeUpdate holds predicted event times as unix seconds, nil when absent.
type StopTimeUpdate struct {
	StopID    string `json:"stop_id"`
	Arrival   *int64 `json:"arrival"`
	Departure *int64 `json:"departure"`
}

// Alert is the flattened projection of a service alert.
type Alert struct {
	ID              string           `json:"alert_id"`
	Cause           string           `json:"cause"`
	Effect          string           `json:"effect"`
	HeaderText      *string          `json:"header_text"`
	DescriptionText *string          `json:"description_text"`
	InformedEntity  []InformedEntity `json:"informed_entity"`
}

func (*Alert) isEntityPayload() {}

// InformedEntity selects the part of the network an alert applies to.
type InformedEntity struct {
	AgencyID string `json:"agency_id"`
	RouteID  string `json:"route_id"`
	StopID   string `json:"stop_id"`
}
