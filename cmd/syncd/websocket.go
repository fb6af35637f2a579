// WebSocket server re-broadcasting sync lifecycle events to local UIs.
package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmaraujo/retrosync/internal/events"
	"github.com/dmaraujo/retrosync/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Only allow connections from localhost
		host := r.Host
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		return host == "localhost" || host == "127.0.0.1"
	},
}

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	subMu         sync.Mutex
	subscriptions map[string]bool
}

// wants reports whether the client should receive the event. A client that
// never subscribed to anything receives everything.
func (c *WSClient) wants(event string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[event]
}

// wsMessage is a broadcast payload tagged with its event type so the hub can
// filter per-client subscriptions.
type wsMessage struct {
	event string
	data  []byte
}

// WSHub maintains active client connections and broadcasts messages.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan wsMessage
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
	logger     *logging.Logger
}

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

const (
	EventSyncStarted   = "sync.started"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
	EventEntryDropped  = "sync.entry_dropped"
	EventMergeApplied  = "sync.merge_applied"
)

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *logging.Logger) *WSHub {
	if logger == nil {
		logger = logging.Get()
	}
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan wsMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		logger:     logger,
	}
	go hub.run()
	return hub
}

// AttachBus subscribes the hub to engine events and re-broadcasts them to
// connected clients.
func (h *WSHub) AttachBus(bus *events.Bus) {
	bus.SubscribeSyncStarted(func(e events.SyncStarted) {
		h.Broadcast(EventSyncStarted, map[string]interface{}{
			"status": "started",
		})
	})
	bus.SubscribeSyncCompleted(func(e events.SyncCompleted) {
		h.Broadcast(EventSyncCompleted, map[string]interface{}{
			"status":   "completed",
			"pushed":   e.Pushed,
			"pulled":   e.Pulled,
			"duration": e.Duration.Milliseconds(),
		})
	})
	bus.SubscribeSyncFailed(func(e events.SyncFailed) {
		h.Broadcast(EventSyncFailed, map[string]interface{}{
			"status":     "failed",
			"error_code": e.Code,
			"error":      e.Err.Error(),
		})
	})
	bus.SubscribeEntryDropped(func(e events.EntryDropped) {
		h.Broadcast(EventEntryDropped, map[string]interface{}{
			"key":     e.Key,
			"action":  e.Action,
			"retries": e.Retries,
		})
	})
	bus.SubscribeMergeApplied(func(e events.MergeApplied) {
		h.Broadcast(EventMergeApplied, map[string]interface{}{
			"key":      e.Key,
			"added":    e.Added,
			"replaced": e.Replaced,
		})
	})
}

// run manages client connections and broadcasts.
func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected",
				map[string]interface{}{"client_id": client.id, "total": total})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected",
				map[string]interface{}{"client_id": client.id, "total": total})

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if !client.wants(message.event) {
					continue
				}
				select {
				case client.send <- message.data:
				default:
					// Client send buffer is full, close connection
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(messageType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Warn("failed to marshal websocket message",
			map[string]interface{}{"type": messageType, "error": err.Error()})
		return
	}

	h.broadcast <- wsMessage{event: messageType, data: bytes}
}

// readPump pumps messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error",
					map[string]interface{}{"error": err.Error()})
			}
			break
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		action, ok := msg["action"].(string)
		if !ok {
			continue
		}

		switch action {
		case "subscribe":
			if evts, ok := msg["events"].([]interface{}); ok {
				c.subMu.Lock()
				for _, e := range evts {
					if eventStr, ok := e.(string); ok {
						c.subscriptions[eventStr] = true
					}
				}
				c.subMu.Unlock()
				c.sendAck("subscribe_ack", evts)
			}

		case "unsubscribe":
			if evts, ok := msg["events"].([]interface{}); ok {
				c.subMu.Lock()
				for _, e := range evts {
					if eventStr, ok := e.(string); ok {
						delete(c.subscriptions, eventStr)
					}
				}
				c.subMu.Unlock()
			}

		case "ping":
			c.sendPong()
		}
	}
}

// writePump pumps messages to the WebSocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendAck sends a subscription acknowledgment.
func (c *WSClient) sendAck(action string, evts []interface{}) {
	envelope := map[string]interface{}{
		"action":     action,
		"subscribed": evts,
		"timestamp":  time.Now().Unix(),
	}

	bytes, _ := json.Marshal(envelope)
	c.send <- bytes
}

// sendPong sends a pong response.
func (c *WSClient) sendPong() {
	envelope := map[string]interface{}{
		"action":    "pong",
		"timestamp": time.Now().Unix(),
	}

	bytes, _ := json.Marshal(envelope)
	c.send <- bytes
}

// HandleWebSocket handles WebSocket connections.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed",
				map[string]interface{}{"error": err.Error()})
			return
		}

		clientID := time.Now().Format("20060102150405") + "-" + r.RemoteAddr

		client := &WSClient{
			id:            clientID,
			conn:          conn,
			send:          make(chan []byte, 256),
			hub:           hub,
			subscriptions: make(map[string]bool),
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
