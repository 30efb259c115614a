package cache

import (
	"context"
	"log/slog"
	"time"

	"transitlive/internal/domain"
)

// JSONStore is the part of RedisCache the warmer needs.
type JSONStore interface {
	SetJSONCompressed(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSONCompressed(ctx context.Context, key string, dest any) (bool, error)
}

// RouteDetailSource computes route details from the schedule store.
type RouteDetailSource interface {
	Aggregate(ctx context.Context) ([]domain.RouteDetail, error)
}

// CacheWarmer keeps the route details aggregate in Redis and serves reads from it.
// Any cache failure falls back to computing the aggregate live.
type CacheWarmer struct {
	cache  JSONStore
	source RouteDetailSource
	ttl    time.Duration
	logger *slog.Logger
}

func NewCacheWarmer(cache JSONStore, source RouteDetailSource, ttl time.Duration, logger *slog.Logger) *CacheWarmer {
	return &CacheWarmer{
		cache:  cache,
		source: source,
		ttl:    ttl,
		logger: logger.With("component", "cache_warmer"),
	}
}

func (w *CacheWarmer) WarmAll(ctx context.Context) error {
	start := time.Now()

	details, err := w.source.Aggregate(ctx)
	if err != nil {
		w.logger.Error("failed to build route details", "error", err)
		return err
	}
	if err := w.cache.SetJSONCompressed(ctx, KeyRouteDetails, details, w.ttl); err != nil {
		w.logger.Error("failed to warm route details", "error", err)
		return err
	}

	w.logger.Info("warmed route details",
		"routes", len(details),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Aggregate returns the cached route details, computing and storing them on a miss.
func (w *CacheWarmer) Aggregate(ctx context.Context) ([]domain.RouteDetail, error) {
	var details []domain.RouteDetail
	found, err := w.cache.GetJSONCompressed(ctx, KeyRouteDetails, &details)
	if err != nil {
		w.logger.Warn("route details cache read failed, computing live", "error", err)
	}
	if found {
		return details, nil
	}

	details, err = w.source.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	if err := w.cache.SetJSONCompressed(ctx, KeyRouteDetails, details, w.ttl); err != nil {
		w.logger.Warn("route details cache write failed", "error", err)
	}
	return details, nil
}

// ScheduleRefresh re-warms the cache every interval until ctx is cancelled.
func (w *CacheWarmer) ScheduleRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("scheduled cache refresh", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WarmAll(ctx); err != nil {
				w.logger.Error("cache refresh failed", "error", err)
			}
		}
	}
}
