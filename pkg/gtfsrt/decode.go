package gtfsrt

import (
	"fmt"
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"transitlive/internal/domain"
)

// DecodeError reports a feed buffer that could not be turned into a FeedMessage.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode feed: %s: %v", e.Reason, e.Err)
	}
	return "decode feed: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a GTFS-Realtime FeedMessage. Entity order follows the source.
// A wire entity carrying several payloads yields one domain entity per payload,
// in the order vehicle, trip update, alert.
func Decode(raw []byte) (*domain.FeedMessage, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Reason: "empty buffer"}
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(raw, feed); err != nil {
		return nil, &DecodeError{Reason: "malformed protobuf", Err: err}
	}

	version := feed.GetHeader().GetGtfsRealtimeVersion()
	if !supportedVersion(version) {
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported gtfs_realtime_version %q", version)}
	}

	msg := &domain.FeedMessage{
		Version:  version,
		Entities: make([]domain.FeedEntity, 0, len(feed.GetEntity())),
	}
	if ts := feed.GetHeader().GetTimestamp(); ts > 0 {
		msg.Timestamp = time.Unix(int64(ts), 0).UTC()
	}

	for _, entity := range feed.GetEntity() {
		id := entity.GetId()
		if v := entity.GetVehicle(); v != nil {
			msg.Entities = append(msg.Entities, domain.FeedEntity{ID: id, Payload: vehicleUpdate(v)})
		}
		if tu := entity.GetTripUpdate(); tu != nil {
			msg.Entities = append(msg.Entities, domain.FeedEntity{ID: id, Payload: tripUpdate(tu)})
		}
		if a := entity.GetAlert(); a != nil {
			msg.Entities = append(msg.Entities, domain.FeedEntity{ID: id, Payload: alert(id, a)})
		}
	}

	return msg, nil
}

func supportedVersion(v string) bool {
	major, _, _ := strings.Cut(v, ".")
	return major == "1" || major == "2"
}

func vehicleUpdate(v *gtfs.VehiclePosition) *domain.VehicleUpdate {
	vu := &domain.VehicleUpdate{
		VehicleID: v.GetVehicle().GetId(),
		TripID:    v.GetTrip().GetTripId(),
		RouteID:   v.GetTrip().GetRouteId(),
		Latitude:  float64(v.GetPosition().GetLatitude()),
		Longitude: float64(v.GetPosition().GetLongitude()),
		Bearing:   float64(v.GetPosition().GetBearing()),
	}
	if ts := v.GetTimestamp(); ts > 0 {
		vu.Timestamp = time.Unix(int64(ts), 0).UTC()
	}
	return vu
}

func tripUpdate(tu *gtfs.TripUpdate) *domain.TripUpdate {
	trip := tu.GetTrip()
	out := &domain.TripUpdate{
		TripID:          trip.GetTripId(),
		RouteID:         trip.GetRouteId(),
		StartTime:       trip.GetStartTime(),
		StartDate:       trip.GetStartDate(),
		StopTimeUpdates: make([]domain.StopTimeUpdate, 0, len(tu.GetStopTimeUpdate())),
	}
	for _, stu := range tu.GetStopTimeUpdate() {
		u := domain.StopTimeUpdate{StopID: stu.GetStopId()}
		if stu.Arrival != nil {
			t := stu.GetArrival().GetTime()
			u.Arrival = &t
		}
		if stu.Departure != nil {
			t := stu.GetDeparture().GetTime()
			u.Departure = &t
		}
		out.StopTimeUpdates = append(out.StopTimeUpdates, u)
	}
	return out
}

func alert(id string, a *gtfs.Alert) *domain.Alert {
	out := &domain.Alert{
		ID:              id,
		Cause:           a.GetCause().String(),
		Effect:          a.GetEffect().String(),
		HeaderText:      firstTranslation(a.GetHeaderText()),
		DescriptionText: firstTranslation(a.GetDescriptionText()),
		InformedEntity:  make([]domain.InformedEntity, 0, len(a.GetInformedEntity())),
	}
	for _, ie := range a.GetInformedEntity() {
		out.InformedEntity = append(out.InformedEntity, domain.InformedEntity{
			AgencyID: ie.GetAgencyId(),
			RouteID:  ie.GetRouteId(),
			StopID:   ie.GetStopId(),
		})
	}
	return out
}

func firstTranslation(ts *gtfs.TranslatedString) *string {
	if len(ts.GetTranslation()) == 0 {
		return nil
	}
	text := ts.GetTranslation()[0].GetText()
	return &text
}
