// Package stream pushes health monitor events to console clients over
// WebSocket.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/health"
)

// MessageSnapshot is the first message on every connection. It carries the
// latest published cycle.
const MessageSnapshot = "snapshot"

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxInboundBytes     = 512
)

// Message is one frame sent to a client.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Source is the monitor the hub relays.
type Source interface {
	Subscribe(buffer int) (<-chan health.Event, func())
	Latest() health.Cycle
}

// HubConfig holds configuration for the hub.
type HubConfig struct {
	Source Source
	Logger zerolog.Logger

	// SendBuffer is the per-client queue length. A client whose queue is
	// full is disconnected. Default: 64
	SendBuffer int

	// PingInterval is the keepalive period. Default: 30 seconds
	PingInterval time.Duration

	// WriteTimeout bounds each frame write. Default: 10 seconds
	WriteTimeout time.Duration

	// CheckOrigin is passed to the upgrader. Nil allows any origin.
	CheckOrigin func(r *http.Request) bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Hub fans monitor events out to connected clients.
type Hub struct {
	source       Source
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration
	writeTimeout time.Duration

	register   chan *client
	unregister chan string
	done       chan struct{}

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a hub. Call Run to start relaying.
func NewHub(cfg HubConfig) *Hub {
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		source: cfg.Source,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sendBuffer:   sendBuffer,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		register:     make(chan *client),
		unregister:   make(chan string),
		done:         make(chan struct{}),
		clients:      make(map[string]*client),
	}
}

// Run relays events until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.source.Subscribe(h.sendBuffer)
	defer unsubscribe()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Str("client_id", c.id).Int("clients", total).Msg("stream client connected")

		case id := <-h.unregister:
			h.drop(id, "disconnected")

		case ev, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(Message{Type: string(ev.Type), Timestamp: time.Now().UTC(), Data: ev})
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	var slow []string

	h.mu.RLock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.drop(id, "send queue full")
	}
}

func (h *Hub) drop(id, reason string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Debug().Str("client_id", id).Str("reason", reason).Int("clients", total).Msg("stream client removed")
	}
}

// ServeHTTP upgrades the request and streams events to it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	latest := h.source.Latest()
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, h.sendBuffer),
	}
	c.send <- Message{Type: MessageSnapshot, Timestamp: time.Now().UTC(), Data: &latest}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c.id:
		case <-h.done:
		}
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", c.id).Msg("stream read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}
