package service

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/gorilla/websocket"
)

const (
	hubSendBuffer  = 256
	hubPingPeriod  = 30 * time.Second
	hubCleanup     = 5 * time.Minute
	hubStaleAfter  = 2 * time.Minute
	clientPongWait = 60 * time.Second
	clientWriteMax = 10 * time.Second
)

// HubMessage is the envelope written to websocket clients
type HubMessage struct {
	// "new_alert", "ping"
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HubClient is one websocket subscriber
type HubClient struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte

	lastSeen atomic.Int64
}

// NewHubClient wraps conn as a client of hub
func NewHubClient(hub *Hub, conn *websocket.Conn) *HubClient {
	c := &HubClient{
		ID:   model.NewID(),
		Conn: conn,
		Hub:  hub,
		Send: make(chan []byte, hubSendBuffer),
	}
	c.touch()
	return c
}

func (c *HubClient) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen is when the client last answered a ping
func (c *HubClient) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Hub fans alert messages out to every connected websocket client
type Hub struct {
	clients    map[string]*HubClient
	clientsMux sync.RWMutex

	register   chan *HubClient
	unregister chan *HubClient
	broadcast  chan []byte

	logger   *utils.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub. Call Run in a goroutine before use.
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &Hub{
		clients:    make(map[string]*HubClient),
		register:   make(chan *HubClient, 10),
		unregister: make(chan *HubClient, 10),
		broadcast:  make(chan []byte, 100),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called
func (h *Hub) Run() {
	pingTicker := time.NewTicker(hubPingPeriod)
	defer pingTicker.Stop()

	cleanupTicker := time.NewTicker(hubCleanup)
	defer cleanupTicker.Stop()

	for {
		select {
		case client := <-h.register:
			h.clientsMux.Lock()
			h.clients[client.ID] = client
			n := len(h.clients)
			h.clientsMux.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.logger.Debug("WebSocket client registered: %s (total: %d)", client.ID, n)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.sendToAll(message)

		case <-pingTicker.C:
			h.pingClients()

		case <-cleanupTicker.C:
			h.cleanupStaleConnections(time.Now())

		case <-h.done:
			h.logger.Info("WebSocket hub shutting down")
			return
		}
	}
}

// Stop stops the hub and closes every client connection
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.clientsMux.Lock()
		for id, client := range h.clients {
			delete(h.clients, id)
			close(client.Send)
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
		h.clientsMux.Unlock()
		metrics.WebSocketClients.Set(0)
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *HubClient) {
	select {
	case h.register <- client:
	case <-h.done:
		if client.Conn != nil {
			client.Conn.Close()
		}
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *HubClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for every connected client
func (h *Hub) Broadcast(msgType string, data interface{}) error {
	payload, err := json.Marshal(&HubMessage{Type: msgType, Data: data})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*HubClient {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	clients := make([]*HubClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// remove drops client if it is still registered. Send is closed exactly
// once, here or in Stop.
func (h *Hub) remove(client *HubClient) bool {
	h.clientsMux.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	n := len(h.clients)
	h.clientsMux.Unlock()

	if ok {
		metrics.WebSocketClients.Set(float64(n))
		h.logger.Debug("WebSocket client unregistered: %s (total: %d)", client.ID, n)
	}
	return ok
}

// sendToAll never blocks. Sends happen under the read lock because Send
// is only closed under the write lock.
func (h *Hub) sendToAll(message []byte) {
	var slow []*HubClient

	h.clientsMux.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.clientsMux.RUnlock()

	for _, client := range slow {
		if h.remove(client) {
			metrics.WebSocketDropped.Inc()
			h.logger.Warn("WebSocket client %s dropped: send buffer full", client.ID)
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
	}
}

func (h *Hub) pingClients() {
	payload, err := json.Marshal(&HubMessage{
		Type: "ping",
		Data: map[string]interface{}{"timestamp": time.Now().Unix()},
	})
	if err != nil {
		return
	}
	h.sendToAll(payload)
}

// cleanupStaleConnections removes clients that have not answered a ping
// within hubStaleAfter.
func (h *Hub) cleanupStaleConnections(now time.Time) int {
	removed := 0
	for _, client := range h.snapshot() {
		if now.Sub(client.LastSeen()) <= hubStaleAfter {
			continue
		}
		if h.remove(client) {
			removed++
			if client.Conn != nil {
				client.Conn.Close()
			}
			h.logger.Debug("Removed stale WebSocket connection: %s", client.ID)
		}
	}
	return removed
}

// ReadPump reads from the connection until it fails. Clients only send
// pongs; anything else is ignored.
func (c *HubClient) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(clientPongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(clientPongWait))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Debug("WebSocket error: %v", err)
			}
			return
		}

		var msg HubMessage
		if err := json.Unmarshal(message, &msg); err == nil && msg.Type == "pong" {
			c.touch()
		}
	}
}

// WritePump writes queued messages, one websocket frame per message, and
// sends protocol pings between them.
func (c *HubClient) WritePump() {
	ticker := time.NewTicker(clientPongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(clientWriteMax))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(clientWriteMax))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
