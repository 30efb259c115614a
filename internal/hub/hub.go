package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"transitlive/internal/domain"
)

// Client is one live subscriber. The hub closes Send when the client is removed.
type Client struct {
	ID   string
	Send chan []byte
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, bufferSize),
	}
}

// Metrics receives hub events. A nil Metrics is allowed.
type Metrics interface {
	SetSubscribers(n int)
	BroadcastSent(delivered, dropped int)
}

// Hub owns the subscriber set. Register, Unregister and Broadcast are safe to
// call from any goroutine, including while a broadcast is being delivered.
// Payloads are serialized and fanned out by the Run goroutine only.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
	done    chan struct{}

	broadcast chan domain.PositionsPayload

	conns   sync.WaitGroup
	logger  *slog.Logger
	metrics Metrics
}

func NewHub(logger *slog.Logger, metrics Metrics) *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		done:      make(chan struct{}),
		broadcast: make(chan domain.PositionsPayload, 64),
		logger:    logger.With("component", "hub"),
		metrics:   metrics,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case payload := <-h.broadcast:
			h.fanout(payload)
		}
	}
}

// Broadcast queues a payload for delivery to every subscriber registered when
// the hub processes it. Payloads are delivered in call order.
func (h *Hub) Broadcast(payload domain.PositionsPayload) {
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("broadcast channel full, dropping payload", "positions", len(payload.Positions))
	}
}

// Register adds a client. It returns false, with client.Send already closed,
// when the hub has shut down. Every successful Register must be paired with
// ConnClosed once the client's socket is closed so Wait can return.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(client.Send)
		return false
	}
	h.conns.Add(1)
	h.clients[client] = struct{}{}
	h.setSubscribers(len(h.clients))
	h.logger.Debug("client registered", "client_id", client.ID, "total", len(h.clients))
	return true
}

func (h *Hub) Unregister(client *Client) {
	h.removeClient(client, "unregistered")
}

// ConnClosed marks the connection of a registered client as fully closed.
func (h *Hub) ConnClosed() {
	h.conns.Done()
}

// Wait blocks until the hub has shut down and every registered connection
// reported ConnClosed, or until ctx ends.
func (h *Hub) Wait(ctx context.Context) error {
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(payload domain.PositionsPayload) {
	if payload.Positions == nil {
		payload.Positions = []domain.Position{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode positions payload", "error", err)
		return
	}

	h.mu.RLock()
	var slow []*Client
	delivered := 0
	for client := range h.clients {
		select {
		case client.Send <- data:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.removeClient(client, "send buffer full")
	}

	if h.metrics != nil {
		h.metrics.BroadcastSent(delivered, len(slow))
	}
	h.logger.Debug("broadcast delivered", "clients", delivered, "dropped", len(slow), "bytes", len(data))
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.setSubscribers(len(h.clients))
	h.logger.Debug("client removed", "client_id", client.ID, "reason", reason, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	close(h.done)
	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.setSubscribers(0)
	h.logger.Info("closed all clients")
}

func (h *Hub) setSubscribers(n int) {
	if h.metrics != nil {
		h.metrics.SetSubscribers(n)
	}
}
