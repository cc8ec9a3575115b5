package notifications

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// client wraps a socket with its own write lock. The websocket protocol
// allows a single writer per connection at a time, and Publish runs from
// many request goroutines at once.
type client struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks open WebSocket connections per user so a notification can be
// pushed to every tab the user has open. It replaces nothing in the
// persistence path: a user with no connection simply reads the row later.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]*client // userID -> connections
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]*client)}
}

// Register adds a connection to the user's group.
func (h *Hub) Register(userID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]*client)
	}
	h.conns[userID][c] = &client{ws: c}
}

// Unregister removes a connection; empty groups are dropped.
func (h *Hub) Unregister(userID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
}

// Publish sends payload to every open connection of the user. Write errors
// are logged and the connection is left for the read loop to reap.
func (h *Hub) Publish(userID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notifications: marshal payload for %s: %v", userID, err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns[userID]))
	for _, cl := range h.conns[userID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		if err := cl.send(data); err != nil {
			log.Printf("notifications: push to %s failed: %v", userID, err)
		}
	}
}
