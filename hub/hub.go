// Package hub streams session messages to websocket clients.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wandcaster/session"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards are served from other origins during development
	},
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub manages connected websocket clients and broadcasts to all of them.
type Hub struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New returns an empty hub.
func New(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:     log.WithField("component", "hub"),
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues payload for every client. Slow clients drop frames.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Publish broadcasts msg as JSON.
func (h *Hub) Publish(msg session.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Warn("WS: marshal failed")
		return
	}
	h.Broadcast(data)
}

// ServeHTTP upgrades the request and streams messages until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WS: upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	h.log.WithField("remote", conn.RemoteAddr().String()).Info("WS: client connected")

	go h.writePump(c)

	// Read pump: consume frames to detect client disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("WS: read failed")
			}
			break
		}
	}
	h.unregister(c)
}

func (h *Hub) writePump(c *client) {
	defer func() {
		c.conn.Close()
		h.log.WithField("remote", c.conn.RemoteAddr().String()).Info("WS: client disconnected")
	}()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
