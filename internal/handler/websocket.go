package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"transitlive/internal/hub"
)

const pingInterval = 30 * time.Second

// WSHandler streams position payloads to subscribers. The stream is push only:
// nothing is sent on connect and client messages are read and discarded.
type WSHandler struct {
	hub            *hub.Hub
	sendBuffer     int
	writeTimeout   time.Duration
	originPatterns []string
	logger         *slog.Logger
}

func NewWSHandler(h *hub.Hub, sendBuffer int, writeTimeout time.Duration, originPatterns []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:            h,
		sendBuffer:     sendBuffer,
		writeTimeout:   writeTimeout,
		originPatterns: originPatterns,
		logger:         logger.With("handler", "websocket"),
	}
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	// Server read/write timeouts must not apply to the long lived stream.
	rc := http.NewResponseController(w)
	rc.SetReadDeadline(time.Time{})
	rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), h.sendBuffer)
	if !h.hub.Register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.ConnClosed()
	h.logger.Debug("client connected", "client_id", client.ID, "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.readLoop(ctx, cancel, conn, client)

	status, reason := h.writeLoop(ctx, conn, client)
	h.hub.Unregister(client)
	conn.Close(status, reason)

	h.logger.Debug("client disconnected", "client_id", client.ID, "reason", reason)
}

// readLoop drains client frames so control frames are processed and a closed
// socket is noticed promptly.
func (h *WSHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, client *hub.Client) {
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) (websocket.StatusCode, string) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "client closed"

		case msg, ok := <-client.Send:
			if !ok {
				return websocket.StatusGoingAway, "stream closed by server"
			}
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.logger.Debug("websocket write failed", "client_id", client.ID, "error", err)
				return websocket.StatusInternalError, "write failed"
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return websocket.StatusInternalError, "ping failed"
			}
		}
	}
}
