package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8
)

// Message is one frame pushed to websocket clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans page snapshots out to websocket clients. Updates are coalesced: a burst of
// poll results produces one broadcast.
type Hub struct {
	upgrader websocket.Upgrader
	build    func() []Message

	mu      sync.RWMutex
	clients map[string]*wsClient
	stopped bool

	pending chan struct{}
}

// NewHub builds a hub whose broadcasts carry the messages returned by build
func NewHub(build func() []Message) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		build:   build,
		clients: make(map[string]*wsClient),
		pending: make(chan struct{}, 1),
	}
}

// Notify schedules a broadcast. It never blocks.
func (h *Hub) Notify() {
	select {
	case h.pending <- struct{}{}:
	default:
	}
}

// Run broadcasts scheduled updates until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.pending:
			h.broadcast()
		}
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) encode() [][]byte {
	msgs := h.build()
	frames := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			slog.Error("failed to encode websocket message", "type", m.Type, "error", err)
			continue
		}
		frames = append(frames, b)
	}
	return frames
}

func (h *Hub) broadcast() {
	if h.Count() == 0 {
		return
	}
	frames := h.encode()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.push(c, frames)
	}
}

// push queues frames without blocking. h.mu must be held, so send is still open.
func (h *Hub) push(c *wsClient, frames [][]byte) {
	for _, f := range frames {
		select {
		case c.send <- f:
		default:
			slog.Warn("websocket client too slow, dropping frame", "client", c.id)
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// ServeHTTP upgrades the connection and sends the current snapshots right away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade websocket connection", "error", err)
		return
	}

	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	// registered before the first frames are built, so every later Notify reaches it
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	frames := h.encode()
	h.mu.RLock()
	if _, ok := h.clients[c.id]; ok {
		h.push(c, frames)
	}
	h.mu.RUnlock()

	slog.Info("websocket client connected", "client", c.id, "remote_addr", r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		slog.Info("websocket client disconnected", "client", c.id)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error", "client", c.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
