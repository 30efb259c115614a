package publisher

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitlive/internal/domain"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}
func (f *fakeConn) Drain() error { return nil }
func (f *fakeConn) Close()       {}

type fakeMetrics struct{ published, errs int }

func (m *fakeMetrics) NATSPublishedInc()     { m.published++ }
func (m *fakeMetrics) NATSPublishErrInc()    { m.errs++ }
func (m *fakeMetrics) NATSSetConnected(bool) {}

func TestBroadcastPublishesJSON(t *testing.T) {
	conn := &fakeConn{}
	m := &fakeMetrics{}
	p := newPublisher(conn, "transit.positions", m, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.Broadcast(domain.PositionsPayload{Positions: []domain.Position{{VehicleID: "v1", RouteID: "R1"}}})

	assert.Equal(t, "transit.positions", conn.subject)
	var got domain.PositionsPayload
	require.NoError(t, json.Unmarshal(conn.data, &got))
	require.Len(t, got.Positions, 1)
	assert.Equal(t, "v1", got.Positions[0].VehicleID)
	assert.Equal(t, 1, m.published)
}

func TestBroadcastCountsErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("no responders")}
	m := &fakeMetrics{}
	p := newPublisher(conn, "x", m, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.Broadcast(domain.PositionsPayload{})

	assert.JSONEq(t, `{"positions":[]}`, string(conn.data))
	assert.Equal(t, 1, m.errs)
	assert.Equal(t, 0, m.published)
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "transit.positions", SubjectToken(" transit.positions "))
	assert.Equal(t, "a_b.c_", SubjectToken("a b.c*"))
	assert.Equal(t, "_", SubjectToken(""))
}
