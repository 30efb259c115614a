package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitlive/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, c *Client) ([]byte, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		return msg, ok
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return nil, false
	}
}

func TestBroadcastDeliversSameSnapshotToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(testLogger(), nil)
	go h.Run(ctx)

	a, b := NewClient("a", 4), NewClient("b", 4)
	require.True(t, h.Register(a))
	require.True(t, h.Register(b))
	assert.Equal(t, 2, h.ClientCount())

	h.Broadcast(domain.PositionsPayload{Positions: []domain.Position{{VehicleID: "v1", Latitude: 1, Longitude: 2}}})

	msgA, ok := receive(t, a)
	require.True(t, ok)
	msgB, ok := receive(t, b)
	require.True(t, ok)
	assert.Equal(t, msgA, msgB)

	var payload domain.PositionsPayload
	require.NoError(t, json.Unmarshal(msgA, &payload))
	require.Len(t, payload.Positions, 1)
	assert.Equal(t, "v1", payload.Positions[0].VehicleID)
}

func TestSlowClientIsRemovedWithoutAffectingOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(testLogger(), nil)
	go h.Run(ctx)

	slow, fast := NewClient("slow", 1), NewClient("fast", 4)
	h.Register(slow)
	h.Register(fast)

	h.Broadcast(domain.PositionsPayload{})
	h.Broadcast(domain.PositionsPayload{})

	_, ok := receive(t, fast)
	require.True(t, ok)
	_, ok = receive(t, fast)
	require.True(t, ok)

	_, ok = receive(t, slow)
	require.True(t, ok, "first payload fits in the buffer")
	_, ok = receive(t, slow)
	assert.False(t, ok, "slow client channel is closed after overflow")
	assert.Equal(t, 1, h.ClientCount())
}

func TestLateClientGetsNoBacklog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(testLogger(), nil)
	go h.Run(ctx)

	early := NewClient("early", 4)
	h.Register(early)
	h.Broadcast(domain.PositionsPayload{Positions: []domain.Position{{VehicleID: "first"}}})
	receive(t, early)

	late := NewClient("late", 4)
	h.Register(late)
	select {
	case <-late.Send:
		t.Fatal("late client must not receive earlier payloads")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShutdownClosesClientsAndRejectsNewOnes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(testLogger(), nil)
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := NewClient("c", 1)
	h.Register(c)
	cancel()
	<-done

	_, ok := <-c.Send
	assert.False(t, ok)
	h.ConnClosed()

	late := NewClient("late", 1)
	assert.False(t, h.Register(late))
	_, ok = <-late.Send
	assert.False(t, ok)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.NoError(t, h.Wait(waitCtx))
}

func TestWaitBlocksUntilConnectionsClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(testLogger(), nil)
	go h.Run(ctx)

	c := NewClient("c", 1)
	require.True(t, h.Register(c))
	cancel()

	short, done := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer done()
	assert.ErrorIs(t, h.Wait(short), context.DeadlineExceeded)

	h.ConnClosed()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.NoError(t, h.Wait(waitCtx))
}

func TestRegisterAndUnregisterDuringBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(testLogger(), nil)
	go h.Run(ctx)

	const broadcasts = 50
	stable := NewClient("stable", broadcasts)
	require.True(t, h.Register(stable))

	stop := make(chan struct{})
	var churn sync.WaitGroup
	for w := 0; w < 4; w++ {
		churn.Add(1)
		go func(w int) {
			defer churn.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				c := NewClient(fmt.Sprintf("churn-%d-%d", w, i), 2)
				if !h.Register(c) {
					return
				}
				drained := make(chan struct{})
				go func() {
					for range c.Send {
					}
					close(drained)
				}()
				h.Unregister(c)
				<-drained
				h.ConnClosed()
			}
		}(w)
	}

	for i := 0; i < broadcasts; i++ {
		h.Broadcast(domain.PositionsPayload{Positions: []domain.Position{{VehicleID: fmt.Sprintf("v%02d", i)}}})
	}

	for i := 0; i < broadcasts; i++ {
		msg, ok := receive(t, stable)
		require.True(t, ok)
		var payload domain.PositionsPayload
		require.NoError(t, json.Unmarshal(msg, &payload))
		require.Len(t, payload.Positions, 1)
		assert.Equal(t, fmt.Sprintf("v%02d", i), payload.Positions[0].VehicleID)
	}

	close(stop)
	churn.Wait()
	assert.Equal(t, 1, h.ClientCount())

	cancel()
	_, ok := receive(t, stable)
	assert.False(t, ok)
	h.ConnClosed()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.NoError(t, h.Wait(waitCtx))
}
