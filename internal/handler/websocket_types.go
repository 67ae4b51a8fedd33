// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"haptic-bridge/internal/model"
)

// Client represents an events WebSocket client
type Client struct {
	ID            string
	Connection    *websocket.Conn
	Send          chan []byte
	UserAgent     string
	RemoteAddr    string
	ConnectedAt   time.Time
	Subscriptions map[model.EventType]bool

	mutex  sync.Mutex
	closed bool
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// wants reports whether the client asked for events of this type; no
// subscriptions means every event
func (c *Client) wants(eventType model.EventType) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.Subscriptions) == 0 {
		return true
	}
	return c.Subscriptions[eventType]
}

func (c *Client) subscribe(eventType model.EventType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.Subscriptions == nil {
		c.Subscriptions = make(map[model.EventType]bool)
	}
	c.Subscriptions[eventType] = true
}

func (c *Client) unsubscribe(eventType model.EventType) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.Subscriptions, eventType)
}

// enqueue queues an outgoing frame without blocking; false when the client
// is closed or its buffer is full
func (c *Client) enqueue(payload []byte) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister removes a client and closes its send queue; repeated calls are no-ops
func (cm *ConnectionManager) Unregister(client *Client) bool {
	cm.mutex.Lock()
	_, ok := cm.clients[client.ID]
	delete(cm.clients, client.ID)
	cm.mutex.Unlock()

	client.close()
	return ok
}

// CloseAll unregisters every client
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.Lock()
	clients := cm.clients
	cm.clients = make(map[string]*Client)
	cm.mutex.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		Clients:          make([]ClientInfo, 0, len(cm.clients)),
	}
	for _, client := range cm.clients {
		stats.Clients = append(stats.Clients, ClientInfo{
			ID:          client.ID,
			RemoteAddr:  client.RemoteAddr,
			ConnectedAt: client.ConnectedAt,
		})
	}
	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int          `json:"total_connections"`
	Clients          []ClientInfo `json:"clients"`
}

// ClientInfo is the public view of a connected client
type ClientInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}
