package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluele/gcache"

	"transitlive/internal/domain"
)

// RouteResolver maps trip ids to their route attributes.
type RouteResolver interface {
	RoutesForTrips(ctx context.Context, tripIDs []string) (map[string]domain.RouteInfo, error)
}

// TripRouteCache keeps resolved trip routes in an in-process LRU so a poll
// only queries the store for trips it has not seen recently. Unknown trips
// are not cached.
type TripRouteCache struct {
	next   RouteResolver
	lru    gcache.Cache
	logger *slog.Logger
}

func NewTripRouteCache(next RouteResolver, size int, ttl time.Duration, logger *slog.Logger) *TripRouteCache {
	if size <= 0 {
		size = 10000
	}
	b := gcache.New(size).LRU()
	if ttl > 0 {
		b = b.Expiration(ttl)
	}
	return &TripRouteCache{
		next:   next,
		lru:    b.Build(),
		logger: logger.With("component", "trip_route_cache"),
	}
}

func (c *TripRouteCache) RoutesForTrips(ctx context.Context, tripIDs []string) (map[string]domain.RouteInfo, error) {
	out := make(map[string]domain.RouteInfo, len(tripIDs))
	var missing []string
	for _, id := range tripIDs {
		if _, ok := out[id]; ok {
			continue
		}
		v, err := c.lru.Get(id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		out[id] = v.(domain.RouteInfo)
	}
	if len(missing) == 0 {
		return out, nil
	}

	resolved, err := c.next.RoutesForTrips(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, info := range resolved {
		out[id] = info
		if err := c.lru.Set(id, info); err != nil {
			c.logger.Warn("failed to cache trip route", "trip_id", id, "error", err)
		}
	}

	c.logger.Debug("resolved trip routes", "hits", len(tripIDs)-len(missing), "misses", len(missing))
	return out, nil
}

// Len reports the number of cached trips.
func (c *TripRouteCache) Len() int {
	return c.lru.Len(false)
}
