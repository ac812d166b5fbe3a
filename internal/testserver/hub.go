package testserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub tracks the sockets connected to the fake server.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zerolog.Logger

	recvMu   sync.Mutex
	received []map[string]any
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop. It closes every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("total_clients", total).Msg("Test socket connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends v as JSON to every client.
func (h *Hub) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Kick drops every connection without a close handshake.
func (h *Hub) Kick() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		_ = client.conn.Close()
	}
}

// Received returns every frame the server has read from clients.
func (h *Hub) Received() []map[string]any {
	h.recvMu.Lock()
	defer h.recvMu.Unlock()
	return append([]map[string]any{}, h.received...)
}

// ReceivedOfType filters Received by the frame's type field.
func (h *Hub) ReceivedOfType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range h.Received() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (h *Hub) record(m map[string]any) {
	h.recvMu.Lock()
	h.received = append(h.received, m)
	h.recvMu.Unlock()
}

// Client is one server-side socket.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 64 << 10
)

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, 64)}
}

// readPump records inbound frames and unregisters the client when the socket fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			c.hub.logger.Debug().Err(err).Msg("Test socket got non-JSON frame")
			continue
		}
		c.hub.record(m)
		if m["type"] == "ping" {
			c.reply(map[string]any{"type": "pong", "timestamp": time.Now()})
		}
	}
}

func (c *Client) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	defer func() { _ = recover() }() // send may already be closed
	select {
	case c.send <- data:
	default:
	}
}

// writePump writes queued frames until the hub closes send.
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
