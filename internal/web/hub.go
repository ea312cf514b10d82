package web

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"Inkbound/server/internal/narrative"
)

// Client represents a WebSocket client connection
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *NotificationHub
	mu     sync.Mutex
	closed bool
}

// Notification is the JSON envelope for the core's one-way signals.
type Notification struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Notification types emitted by the narrative core.
const (
	NotificationBeatChanged     = "beat_changed"
	NotificationContentUnlocked = "content_unlocked"
	NotificationQueueDrained    = "queue_drained"
)

// NotificationHub manages WebSocket connections and broadcasts narrative
// notifications to every connected client. It implements the core's
// Notifier seam; the core keeps working when nobody is connected.
type NotificationHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Notification
	mu         sync.RWMutex
}

// NewNotificationHub creates a new notification hub
func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan Notification, 1000),
	}
}

// Run starts the hub's event loop
func (h *NotificationHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case notification := <-h.broadcast:
			h.broadcastNotification(notification)
		}
	}
}

// registerClient adds a new client to the hub
func (h *NotificationHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[Hub] Client connected: %s (total: %d)", client.ID, len(h.clients))

	// Start the client's write pump
	go client.writePump()
}

// unregisterClient removes a client from the hub
func (h *NotificationHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		log.Printf("[Hub] Client disconnected: %s (total: %d)", client.ID, len(h.clients))
	}
}

// broadcastNotification sends a notification to all connected clients
func (h *NotificationHub) broadcastNotification(notification Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(map[string]interface{}{
		"type":       notification.Type,
		"session_id": notification.SessionID,
		"data":       notification.Data,
		"time":       time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[Hub] Failed to marshal notification: %v", err)
		return
	}

	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// Client send buffer full, skip
			log.Printf("[Hub] Client send buffer full: %s", client.ID)
		}
	}
}

// Broadcast queues a notification for all connected clients. Drops the
// notification rather than blocking the narrative core.
func (h *NotificationHub) Broadcast(notification Notification) {
	select {
	case h.broadcast <- notification:
	default:
		log.Printf("[Hub] Broadcast channel full, dropping %s", notification.Type)
	}
}

// BeatChanged implements interfaces.Notifier.
func (h *NotificationHub) BeatChanged(sessionID string, previous, current narrative.Beat) {
	h.Broadcast(Notification{
		Type:      NotificationBeatChanged,
		SessionID: sessionID,
		Data: map[string]interface{}{
			"previous": string(previous),
			"current":  string(current),
		},
	})
}

// ContentUnlocked implements interfaces.Notifier.
func (h *NotificationHub) ContentUnlocked(sessionID, contentID, trigger string) {
	h.Broadcast(Notification{
		Type:      NotificationContentUnlocked,
		SessionID: sessionID,
		Data: map[string]interface{}{
			"content_id": contentID,
			"trigger":    trigger,
		},
	})
}

// QueueDrained implements interfaces.Notifier.
func (h *NotificationHub) QueueDrained(sessionID string) {
	h.Broadcast(Notification{
		Type:      NotificationQueueDrained,
		SessionID: sessionID,
	})
}

// GetClientCount returns the number of connected clients
func (h *NotificationHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				// Hub closed the channel
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Client] Error writing to %s: %v", c.ID, err)
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			// Send ping
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[Client] Error sending ping to %s: %v", c.ID, err)
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.Conn.Close()
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Client] Unexpected close from %s: %v", c.ID, err)
			}
			break
		}
	}
}
