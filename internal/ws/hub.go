// Package ws streams trigger events and detector state changes to WebSocket
// subscribers.
package ws

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scarecrow/internal/sink"
)

// client wraps a subscriber connection. The mutex serializes writes; gorilla
// allows at most one concurrent writer per connection, and broadcasts race
// keepalive pings without it. done is closed on unregister so the ping
// goroutine can exit.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

// Hub manages WebSocket subscribers to the detector feed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
	logger  *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		logger:  logger,
	}
}

// Register adds a subscriber connection.
func (h *Hub) Register(conn *websocket.Conn) *client {
	cl := &client{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.clients[conn] = cl
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("[WS] client registered (total: %d)", total)
	return cl
}

// Unregister removes a subscriber connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if cl, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(cl.done)
		h.logger.Printf("[WS] client unregistered (total: %d)", len(h.clients))
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a raw message to every subscriber, dropping connections
// whose writes fail.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		conns = append(conns, cl)
	}
	h.mu.RUnlock()

	for _, cl := range conns {
		if err := cl.write(websocket.TextMessage, message); err != nil {
			h.logger.Printf("[WS] send failed: %v", err)
			h.Unregister(cl.conn)
			cl.conn.Close()
		}
	}
}

// Fire implements sink.Sink, pushing each trigger to all subscribers.
func (h *Hub) Fire(event sink.Event) {
	if h.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(NewTriggerMessage(event))
	if err != nil {
		h.logger.Printf("[WS] marshal trigger message: %v", err)
		return
	}
	h.Broadcast(data)
}

// BroadcastState notifies subscribers of a detector state change.
func (h *Hub) BroadcastState(state string) {
	if h.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(NewStateMessage(state))
	if err != nil {
		h.logger.Printf("[WS] marshal state message: %v", err)
		return
	}
	h.Broadcast(data)
}
