package ingestor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"transitlive/internal/config"
	"transitlive/internal/domain"
	"transitlive/internal/metrics"
	"transitlive/internal/tracker"
	"transitlive/pkg/gtfsrt"
)

type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type RouteResolver interface {
	RoutesForTrips(ctx context.Context, tripIDs []string) (map[string]domain.RouteInfo, error)
}

type Broadcaster interface {
	Broadcast(payload domain.PositionsPayload)
}

type Metrics interface {
	PollCompleted(outcome string, d time.Duration)
	SetTrackedVehicles(n int)
	VehiclesSkipped(n int)
	VehiclesEvicted(n int)
}

// State is the fetch loop phase.
type State int32

const (
	StateIdle State = iota
	StateFetching
)

func (s State) String() string {
	if s == StateFetching {
		return "fetching"
	}
	return "idle"
}

type Ingestor struct {
	client       FeedFetcher
	resolver     RouteResolver
	tracker      *tracker.Tracker
	broadcasters []Broadcaster
	metrics      Metrics
	logger       *slog.Logger

	feedURL      string
	pollInterval time.Duration
	fetchTimeout time.Duration

	state   atomic.Int32
	ready   bool
	readyMu sync.RWMutex

	now func() time.Time
}

func New(client FeedFetcher, resolver RouteResolver, t *tracker.Tracker, cfg *config.Config, m Metrics, logger *slog.Logger, broadcasters ...Broadcaster) *Ingestor {
	return &Ingestor{
		client:       client,
		resolver:     resolver,
		tracker:      t,
		broadcasters: broadcasters,
		metrics:      m,
		logger:       logger.With("component", "ingestor"),
		feedURL:      cfg.FeedVehiclePositionsURL,
		pollInterval: cfg.PollInterval,
		fetchTimeout: cfg.FeedTimeout,
		now:          time.Now,
	}
}

// Run polls immediately and then on every tick until ctx is cancelled.
// Stale vehicles are pruned every three poll intervals.
func (i *Ingestor) Run(ctx context.Context) {
	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	pruneTicker := time.NewTicker(i.pollInterval * 3)
	defer pruneTicker.Stop()

	i.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.Poll(ctx)
		case <-pruneTicker.C:
			i.prune()
		}
	}
}

// Poll runs exactly one fetch cycle. A failing stage aborts the cycle without
// touching tracked state; the error is logged, counted and returned.
func (i *Ingestor) Poll(ctx context.Context) error {
	i.state.Store(int32(StateFetching))
	defer i.state.Store(int32(StateIdle))

	start := time.Now()
	outcome, err := i.cycle(ctx)
	if i.metrics != nil {
		i.metrics.PollCompleted(outcome, time.Since(start))
	}
	if err != nil {
		if ctx.Err() == nil {
			i.logger.Error("poll failed", "outcome", outcome, "error", err)
		}
		return err
	}

	if !i.IsReady() {
		i.setReady(true)
		i.logger.Info("ingestor ready", "vehicles", i.tracker.Count())
	}
	return nil
}

func (i *Ingestor) cycle(ctx context.Context) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, i.fetchTimeout)
	raw, err := i.client.Fetch(fetchCtx, i.feedURL)
	cancel()
	if err != nil {
		return metrics.OutcomeFetchError, fmt.Errorf("fetch vehicle positions: %w", err)
	}

	feed, err := gtfsrt.Decode(raw)
	if err != nil {
		return metrics.OutcomeDecodeError, err
	}

	updates := feed.VehicleUpdates()
	observations, err := i.resolve(ctx, updates)
	if err != nil {
		return metrics.OutcomeStoreError, err
	}

	changes := i.tracker.Diff(observations, i.now())
	count := i.tracker.Count()
	if i.metrics != nil {
		i.metrics.SetTrackedVehicles(count)
	}

	i.logger.Debug("poll completed",
		"entities", len(feed.Entities),
		"vehicles", len(updates),
		"resolved", len(observations),
		"changed", changes.Changed,
		"total", count,
	)

	if !changes.Changed {
		return metrics.OutcomeUnchanged, nil
	}
	i.broadcast(changes.Positions)
	return metrics.OutcomeChanged, nil
}

// resolve joins vehicle updates with their route through one batched lookup.
// Updates without a vehicle id or whose trip is unknown are dropped.
func (i *Ingestor) resolve(ctx context.Context, updates []domain.VehicleUpdate) ([]domain.Observation, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	tripIDs := make([]string, 0, len(updates))
	for _, u := range updates {
		if u.TripID != "" {
			tripIDs = append(tripIDs, u.TripID)
		}
	}

	routes, err := i.resolver.RoutesForTrips(ctx, tripIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve routes: %w", err)
	}

	observations := make([]domain.Observation, 0, len(updates))
	skipped := 0
	for _, u := range updates {
		route, ok := routes[u.TripID]
		if u.VehicleID == "" || !ok {
			skipped++
			continue
		}
		observations = append(observations, domain.Observation{VehicleUpdate: u, Route: route})
	}

	if skipped > 0 {
		i.logger.Debug("skipped unresolved vehicles", "count", skipped)
		if i.metrics != nil {
			i.metrics.VehiclesSkipped(skipped)
		}
	}
	return observations, nil
}

func (i *Ingestor) prune() {
	removed := i.tracker.Prune(i.now())
	if len(removed) == 0 {
		return
	}

	if i.metrics != nil {
		i.metrics.VehiclesEvicted(len(removed))
		i.metrics.SetTrackedVehicles(i.tracker.Count())
	}
	i.broadcast(i.tracker.Snapshot())
	i.logger.Info("pruned stale vehicles", "count", len(removed))
}

func (i *Ingestor) broadcast(positions []domain.Position) {
	payload := domain.PositionsPayload{Positions: positions}
	for _, b := range i.broadcasters {
		b.Broadcast(payload)
	}
}

func (i *Ingestor) State() State {
	return State(i.state.Load())
}

func (i *Ingestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *Ingestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}
