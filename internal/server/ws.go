package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PlatformNetwork/term-executor/internal/batch"
)

// upgrader accepts any origin; this endpoint is polled by validator
// tooling, not embedded in a browser page that would need a CORS check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsPingInterval  = 30 * time.Second
	wsWriteDeadline = 10 * time.Second
	wsReadDeadline  = 60 * time.Second
)

// HandleWebSocket answers WS /ws?batch_id={id}: upgrades the connection,
// sends a snapshot event if the batch is still registered, then streams
// live events until the batch completes or the client disconnects.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	batchID := r.URL.Query().Get("batch_id")
	if batchID == "" {
		http.Error(w, "batch_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnectionsActive.Inc()
		defer h.metrics.WSConnectionsActive.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.wsReadPump(conn, cancel)

	bus := h.engine.BusFor(batchID)
	sub := bus.Subscribe()
	defer sub.Close()

	if b, ok := h.registry.Get(batchID); ok {
		conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
		if err := conn.WriteJSON(batch.WsEvent{Kind: batch.EventSnapshot, BatchID: batchID, Data: b.Snapshot()}); err != nil {
			return
		}
	}

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if event.Kind == batch.EventBatchComplete {
				return
			}
		case lag := <-sub.Lag:
			conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteJSON(map[string]any{"kind": "lag", "batch_id": batchID, "dropped": lag.Dropped}); err != nil {
				return
			}
		}
	}
}

// wsReadPump drains client frames so pong control frames refresh the read
// deadline; a disconnect or any read error cancels the write loop above.
func (h *Handler) wsReadPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
