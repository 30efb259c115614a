package tracker

import (
	"math"
	"sort"
	"sync"
	"time"

	"transitlive/internal/domain"
)

// coordinatePrecision is the number of decimal places compared by Diff (~0.11 m).
const coordinatePrecision = 6

type trackedVehicle struct {
	id       string
	lat      float64
	lon      float64
	bearing  float64
	tripID   string
	route    domain.RouteInfo
	lastSeen time.Time
}

// Tracker keeps the last known position of every vehicle across fetch cycles.
type Tracker struct {
	mu       sync.RWMutex
	vehicles map[string]*trackedVehicle

	staleAfter time.Duration
}

// New creates an empty tracker. A zero staleAfter disables eviction.
func New(staleAfter time.Duration) *Tracker {
	return &Tracker{
		vehicles:   make(map[string]*trackedVehicle),
		staleAfter: staleAfter,
	}
}

// Diff folds a batch of observations into the state and reports whether any
// vehicle moved at the compared precision. Unchanged vehicles keep their stored
// coordinates. When something changed, the full current position set is returned.
func (t *Tracker) Diff(observations []domain.Observation, now time.Time) domain.ChangeSet {
	if len(observations) == 0 {
		return domain.ChangeSet{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for _, o := range observations {
		existing, exists := t.vehicles[o.VehicleID]
		if !exists || hasMoved(existing, o.Latitude, o.Longitude) {
			changed = true
			t.vehicles[o.VehicleID] = &trackedVehicle{
				id:       o.VehicleID,
				lat:      o.Latitude,
				lon:      o.Longitude,
				bearing:  o.Bearing,
				tripID:   o.TripID,
				route:    o.Route,
				lastSeen: now,
			}
			continue
		}

		existing.bearing = o.Bearing
		existing.tripID = o.TripID
		existing.route = o.Route
		existing.lastSeen = now
	}

	if !changed {
		return domain.ChangeSet{}
	}
	return domain.ChangeSet{Changed: true, Positions: t.positionsLocked()}
}

// Prune evicts vehicles not observed within the stale window and returns their ids.
func (t *Tracker) Prune(now time.Time) []string {
	if t.staleAfter <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.staleAfter)
	var removed []string
	for id, v := range t.vehicles {
		if v.lastSeen.Before(cutoff) {
			removed = append(removed, id)
			delete(t.vehicles, id)
		}
	}
	sort.Strings(removed)
	return removed
}

// Snapshot returns the current position set ordered by vehicle id.
func (t *Tracker) Snapshot() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positionsLocked()
}

func (t *Tracker) Get(vehicleID string) (domain.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vehicles[vehicleID]
	if !ok {
		return domain.Position{}, false
	}
	return v.position(), true
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.vehicles)
}

func (t *Tracker) positionsLocked() []domain.Position {
	result := make([]domain.Position, 0, len(t.vehicles))
	for _, v := range t.vehicles {
		result = append(result, v.position())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VehicleID < result[j].VehicleID })
	return result
}

func (v *trackedVehicle) position() domain.Position {
	return domain.Position{
		VehicleID:      v.id,
		Latitude:       v.lat,
		Longitude:      v.lon,
		Bearing:        v.bearing,
		RouteID:        v.route.RouteID,
		RouteShortName: v.route.ShortName,
		RouteColor:     v.route.Color,
	}
}

func hasMoved(old *trackedVehicle, lat, lon float64) bool {
	return round(old.lat) != round(lat) || round(old.lon) != round(lon)
}

func round(x float64) float64 {
	p := math.Pow(10, coordinatePrecision)
	return math.Round(x*p) / p
}
