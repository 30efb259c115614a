package handler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitlive/internal/domain"
)

func dial(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/bus-positions"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

func readPayload(t *testing.T, conn *websocket.Conn) domain.PositionsPayload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	var payload domain.PositionsPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	return payload
}

func payload(ids ...string) domain.PositionsPayload {
	p := domain.PositionsPayload{}
	for _, id := range ids {
		p.Positions = append(p.Positions, domain.Position{VehicleID: id})
	}
	return p
}

func TestWebsocketSubscribersReceiveBroadcasts(t *testing.T) {
	ts := newTestServer(t, true, nil)

	a := dial(t, ts)
	defer a.CloseNow()
	b := dial(t, ts)
	defer b.CloseNow()
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	ts.hub.Broadcast(payload("bus-1", "bus-2"))

	for _, conn := range []*websocket.Conn{a, b} {
		got := readPayload(t, conn)
		require.Len(t, got.Positions, 2)
		assert.Equal(t, "bus-1", got.Positions[0].VehicleID)
	}
}

func TestWebsocketDisconnectDoesNotAffectOthers(t *testing.T) {
	ts := newTestServer(t, true, nil)

	a := dial(t, ts)
	b := dial(t, ts)
	defer b.CloseNow()
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.CloseNow())
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.hub.Broadcast(payload("bus-9"))
	got := readPayload(t, b)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, "bus-9", got.Positions[0].VehicleID)
}

func TestWebsocketNoSnapshotOnConnect(t *testing.T) {
	ts := newTestServer(t, true, nil)

	conn := dial(t, ts)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err, "nothing is sent before the first broadcast")
}
