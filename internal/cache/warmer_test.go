package cache

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
)

type memoryStore struct {
	data    map[string][]byte
	readErr error
}

func (m *memoryStore) SetJSONCompressed(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	compressed, err := gzipCompress(raw)
	if err != nil {
		return err
	}
	m.data[key] = compressed
	return nil
}

func (m *memoryStore) GetJSONCompressed(_ context.Context, key string, dest any) (bool, error) {
	if m.readErr != nil {
		return false, m.readErr
	}
	compressed, ok := m.data[key]
	if !ok {
		return false, nil
	}
	raw, err := gzipDecompress(compressed)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, dest)
}

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Aggregate(context.Context) ([]domain.RouteDetail, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []domain.RouteDetail{{
		Route: domain.Route{ID: "R1", ShortName: "1"},
		Shape: []domain.ShapePoint{{ShapeID: "SH", Lat: 1, Lon: 2, Sequence: 1}},
		Stops: []domain.StopSummary{{Latitude: 1, Longitude: 2, StopName: "Main"}},
	}}, nil
}

func newWarmer(store JSONStore, src RouteDetailSource) *CacheWarmer {
	return NewCacheWarmer(store, src, time.Minute, testLogger())
}

func TestRouteDetailsServedFromCacheAfterWarm(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{}}
	src := &countingSource{}
	w := newWarmer(store, src)
	ctx := context.Background()

	require.NoError(t, w.WarmAll(ctx))
	assert.Equal(t, 1, src.calls)

	details, err := w.Aggregate(ctx)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "R1", details[0].Route.ID)
	assert.Equal(t, "Main", details[0].Stops[0].StopName)
	assert.Equal(t, 1, src.calls)
}

func TestRouteDetailsMissComputesAndStores(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{}}
	src := &countingSource{}
	w := newWarmer(store, src)
	ctx := context.Background()

	_, err := w.Aggregate(ctx)
	require.NoError(t, err)
	_, err = w.Aggregate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Contains(t, store.data, KeyRouteDetails)
}

func TestRouteDetailsFallsBackOnCacheError(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{}, readErr: errors.New("redis down")}
	src := &countingSource{}
	w := newWarmer(store, src)

	details, err := w.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Len(t, details, 1)
	assert.Equal(t, 1, src.calls)
}

func TestRouteDetailsSourceError(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{}}
	w := newWarmer(store, &countingSource{err: errors.New("db gone")})

	_, err := w.Aggregate(context.Background())
	assert.Error(t, err)
	assert.Error(t, w.WarmAll(context.Background()))
}

func TestGzipRoundTrip(t *testing.T) {
	in := []byte(`{"routes":[]}`)
	compressed, err := gzipCompress(in)
	require.NoError(t, err)
	out, err := gzipDecompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
