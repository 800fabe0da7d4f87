// Package web is the bot's control surface: a REST API for run control and
// history, plus a WebSocket feed of live worker events.
package web

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"paperbot/internal/worker"
)

// Hub manages WebSocket clients and fans worker events out to them.
type Hub struct {
	buffers *worker.Buffers

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub over the worker's run buffers.
func NewHub(buffers *worker.Buffers) *Hub {
	return &Hub{
		buffers: buffers,
		clients: make(map[*Client]bool),
	}
}

// Run consumes worker events and broadcasts them. Blocks until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	events := h.buffers.Subscribe(256)
	defer h.buffers.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			h.broadcast(payload)
		}
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// slow client, drop the event
		}
	}
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[web] ws client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
