package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Inbound frame types.
const (
	FrameAsk   = "ask"
	FrameClear = "clear"
	FrameHelp  = "help"
)

// Outbound frame types.
const (
	FrameStatus = "status"
	FrameAnswer = "answer"
	FrameInfo   = "info"
	FrameError  = "error"
)

// ClientFrame is a message from a chat client.
type ClientFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// ServerFrame is a message to a chat client.
type ServerFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Cost string `json:"cost,omitempty"`
}

// Client is one connected chat peer. Writes share the connection, so they
// go through writeMu.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time

	writeMu sync.Mutex
}

// Send writes a frame to the client.
func (c *Client) Send(frame ServerFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(frame)
}

// ClientRegistry tracks connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// Add registers a client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Remove drops a client.
func (r *ClientRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// GetAll returns all connected clients.
func (r *ClientRegistry) GetAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len reports the number of connected clients.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
