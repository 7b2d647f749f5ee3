package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/cultivar/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 64
	maxWSConns   = 32
)

// Hub fans flushed engine events out to websocket spectators. Broadcast
// satisfies events.Sink, so the hub plugs straight into the engine's sink
// list; a slow client is dropped rather than allowed to stall the tick.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan events.Event
}

// NewHub creates an empty spectator hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Broadcast queues an event to every connected client. It never blocks: a
// client whose buffer is full is disconnected.
func (h *Hub) Broadcast(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount reports connected spectators.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	full := len(h.clients) >= maxWSConns
	h.mu.Unlock()
	if full {
		http.Error(w, "too many spectators", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan events.Event, wsSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *wsClient) {
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump drains the connection so close frames are processed, then
// unregisters the client.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
