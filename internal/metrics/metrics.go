package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll outcomes used as the "outcome" label.
const (
	OutcomeChanged     = "changed"
	OutcomeUnchanged   = "unchanged"
	OutcomeFetchError  = "fetch_error"
	OutcomeDecodeError = "decode_error"
	OutcomeStoreError  = "store_error"
)

type Collector struct {
	reg *prometheus.Registry

	Polls           *prometheus.CounterVec // outcome label
	PollDuration    prometheus.Histogram
	TrackedVehicles prometheus.Gauge
	SkippedVehicles prometheus.Counter
	EvictedVehicles prometheus.Counter

	Subscribers       prometheus.Gauge
	BroadcastsSent    prometheus.Counter
	DeliveredMessages prometheus.Counter
	DroppedClients    prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	RateLimitedReqs prometheus.Counter

	PollInterval prometheus.Gauge // seconds
}

func NewCollector(pollInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitlive_polls_total",
			Help: "Feed fetch cycles by outcome.",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitlive_poll_duration_seconds",
			Help:    "Duration of one fetch, decode, diff and broadcast cycle.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitlive_tracked_vehicles",
			Help: "Number of vehicles with a known position.",
		}),
		SkippedVehicles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitlive_skipped_vehicles_total",
			Help: "Vehicle observations dropped because their trip has no route.",
		}),
		EvictedVehicles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitlive_evicted_vehicles_total",
			Help: "Vehicles evicted after going stale.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitlive_ws_subscribers",
			Help: "Number of connected position stream subscribers.",
		}),
		BroadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitlive_broadcasts_total",
			Help: "Position payloads fanned out to subscribers.",
		}),
		DeliveredMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitlive_ws_messages_delivered_total",
			Help: "Messages queued to subscriber send buffers.",
		}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitlive_ws_clients_dropped_total",
			Help: "Subscribers removed because their send buffer was full.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitlive_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitlive_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitlive_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		RateLimitedReqs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitlive_http_rate_limited_total",
			Help: "HTTP requests rejected by the rate limiter.",
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitlive_poll_interval_seconds",
			Help: "Configured feed poll interval in seconds.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Polls, c.PollDuration, c.TrackedVehicles, c.SkippedVehicles, c.EvictedVehicles,
		c.Subscribers, c.BroadcastsSent, c.DeliveredMessages, c.DroppedClients,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.RateLimitedReqs, c.PollInterval,
	)

	c.PollInterval.Set(pollInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Fetch loop

func (c *Collector) PollCompleted(outcome string, d time.Duration) {
	c.Polls.WithLabelValues(outcome).Inc()
	c.PollDuration.Observe(d.Seconds())
}

func (c *Collector) SetTrackedVehicles(n int) { c.TrackedVehicles.Set(float64(n)) }
func (c *Collector) VehiclesSkipped(n int)    { c.SkippedVehicles.Add(float64(n)) }
func (c *Collector) VehiclesEvicted(n int)    { c.EvictedVehicles.Add(float64(n)) }

// Hub

func (c *Collector) SetSubscribers(n int) { c.Subscribers.Set(float64(n)) }

func (c *Collector) BroadcastSent(delivered, dropped int) {
	c.BroadcastsSent.Inc()
	c.DeliveredMessages.Add(float64(delivered))
	c.DroppedClients.Add(float64(dropped))
}

// NATS publisher

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

// HTTP

func (c *Collector) RateLimited() { c.RateLimitedReqs.Inc() }
