package publisher

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"transitlive/internal/domain"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATSPublisher mirrors every broadcast positions payload onto a NATS subject.
type NATSPublisher struct {
	nc      Conn
	subject string
	metrics PublisherMetrics
	logger  *slog.Logger
}

func NewNATSPublisher(url, subject string, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With("component", "nats_publisher")
	setConnected := func(connected bool) {
		if m != nil {
			m.NATSSetConnected(connected)
		}
	}

	nc, err := nats.Connect(url,
		nats.Name("transitlive"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(false)
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			setConnected(true)
			logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	setConnected(true)

	return newPublisher(nc, subject, m, logger), nil
}

func newPublisher(nc Conn, subject string, m PublisherMetrics, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{
		nc:      nc,
		subject: SubjectToken(subject),
		metrics: m,
		logger:  logger,
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Broadcast publishes the payload. Failures are logged and counted, never returned,
// so a NATS outage cannot stall the fetch loop.
func (p *NATSPublisher) Broadcast(payload domain.PositionsPayload) {
	if payload.Positions == nil {
		payload.Positions = []domain.Position{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal positions", "error", err)
		return
	}

	err = p.nc.Publish(p.subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		p.logger.Error("nats publish failed", "subject", p.subject, "error", err)
		return
	}
	p.logger.Debug("nats published", "subject", p.subject, "positions", len(payload.Positions), "size_bytes", len(b))
}

// SubjectToken sanitises a configured subject. Dots separate tokens and are kept.
func SubjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = strings.Trim(repl.Replace(s), ".")
	if s == "" {
		s = "_"
	}
	return s
}
