package telemetry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/opensourceleg/go-osl/internal/log"
)

// FrameType indicates the websocket frame format for a broadcast payload.
type FrameType int

const (
	// JSONFrame is a JSON-encoded payload.
	JSONFrame FrameType = iota
	// BinaryFrame is raw binary data.
	BinaryFrame
)

// Frame is one payload to broadcast to connected clients.
type Frame struct {
	Type FrameType
	Data []byte
}

// Hub maintains the set of active websocket clients and broadcasts frames
// to them. Slow clients are dropped rather than allowed to apply
// backpressure.
type Hub struct {
	// Name for logging
	name string

	// Registered clients
	clients map[*Client]bool

	// Inbound frames to broadcast
	broadcast chan Frame

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for client count (read-only access from outside)
	mu sync.RWMutex
}

// NewHub creates a hub.
func NewHub(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Frame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run is the hub's main loop. Call in a goroutine; returns when ctx is
// canceled, closing every client's send channel on the way out.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Info("client connected", "hub", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Info("client disconnected", "hub", h.name, "clients", count)

		case frame := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// Client's buffer is full: too slow, drop them.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a frame for all connected clients.
func (h *Hub) Broadcast(f Frame) {
	select {
	case h.broadcast <- f:
	default:
		log.Warn("broadcast channel full, dropping frame", "hub", h.name)
	}
}

// BroadcastJSON encodes and broadcasts a JSON payload.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Frame{Type: JSONFrame, Data: data})
	return nil
}

// BroadcastMessage wraps v in an envelope and broadcasts it.
func (h *Hub) BroadcastMessage(msgType MessageType, v interface{}) error {
	msg, err := NewMessage(msgType, v)
	if err != nil {
		return err
	}
	return h.BroadcastJSON(msg)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
