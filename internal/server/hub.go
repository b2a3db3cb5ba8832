package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/driftlab/driftboard/internal/pipeline"
)

// hub fans progress events out to every connected websocket client. A
// client that cannot keep up is dropped; the pipeline never waits on it.
type hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan pipeline.ProgressEvent
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan pipeline.ProgressEvent),
	}
}

// handleWS upgrades the connection and streams events until the client
// goes away.
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	events := make(chan pipeline.ProgressEvent, 16)
	h.mu.Lock()
	h.clients[conn] = events
	h.mu.Unlock()

	go h.writeLoop(conn, events)
	go h.readLoop(conn)
}

func (h *hub) writeLoop(conn *websocket.Conn, events chan pipeline.ProgressEvent) {
	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.Close()
}

// readLoop exists to notice the client hanging up; inbound messages are
// ignored.
func (h *hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

// Broadcast delivers ev to every connected client without blocking.
func (h *hub) Broadcast(ev pipeline.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, events := range h.clients {
		select {
		case events <- ev:
		default:
			h.log.Debug("dropping slow websocket client")
			delete(h.clients, conn)
			close(events)
		}
	}
}

func (h *hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if events, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(events)
	}
	conn.Close()
}

// Close disconnects every client.
func (h *hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, events := range h.clients {
		delete(h.clients, conn)
		close(events)
		conn.Close()
	}
}
