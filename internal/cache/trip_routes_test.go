package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitlive/internal/domain"
)

type recordingResolver struct {
	routes map[string]domain.RouteInfo
	calls  [][]string
	err    error
}

func (r *recordingResolver) RoutesForTrips(_ context.Context, tripIDs []string) (map[string]domain.RouteInfo, error) {
	r.calls = append(r.calls, append([]string(nil), tripIDs...))
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[string]domain.RouteInfo)
	for _, id := range tripIDs {
		if info, ok := r.routes[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func TestTripRouteCacheOnlyQueriesMisses(t *testing.T) {
	next := &recordingResolver{routes: map[string]domain.RouteInfo{
		"T1": {RouteID: "R1", ShortName: "1"},
		"T2": {RouteID: "R2", ShortName: "2"},
	}}
	c := NewTripRouteCache(next, 100, time.Hour, testLogger())
	ctx := context.Background()

	got, err := c.RoutesForTrips(ctx, []string{"T1", "GHOST"})
	require.NoError(t, err)
	assert.Equal(t, "R1", got["T1"].RouteID)
	assert.NotContains(t, got, "GHOST")

	got, err = c.RoutesForTrips(ctx, []string{"T1", "T2", "GHOST"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.Len(t, next.calls, 2)
	assert.Equal(t, []string{"T2", "GHOST"}, next.calls[1])
	assert.Equal(t, 2, c.Len())

	_, err = c.RoutesForTrips(ctx, []string{"T1", "T2"})
	require.NoError(t, err)
	assert.Len(t, next.calls, 2)
}

func TestTripRouteCachePropagatesErrors(t *testing.T) {
	next := &recordingResolver{err: errors.New("db down")}
	c := NewTripRouteCache(next, 0, 0, testLogger())

	_, err := c.RoutesForTrips(context.Background(), []string{"T1"})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}
