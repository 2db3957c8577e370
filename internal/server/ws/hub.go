// Package ws bridges the signal bus to websocket clients. The hub holds one
// pattern subscription covering every event channel and fans frames out to
// clients by the channels they asked for.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds incoming control frames.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outgoing buffer.
	sendBufferSize = 256
)

// frame is the envelope every client receives: the short channel name
// ("book:101", "trades:0xc1", "stats:0xc1", "orders:0x..") and the raw
// event payload.
type frame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// subscribeMsg is the control message clients send to manage their channel
// set. Channel names may end in * to match a prefix.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// client is one websocket connection.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// Hub manages the connected clients and routes bus events to them.
type Hub struct {
	bus      domain.SignalBus
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client

	logger *slog.Logger
}

// NewHub creates a Hub. An empty origin list allows upgrades from any
// origin.
func NewHub(bus domain.SignalBus, allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				for _, o := range allowedOrigins {
					if o == "*" || strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
	}
}

// Run pumps bus events to subscribed clients until the context is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	events, err := h.bus.Subscribe(ctx, domain.EventChannelPattern)
	if err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", domain.EventChannelPattern, err)
	}
	h.logger.Info("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client connected",
				slog.String("client_id", c.id),
				slog.Int("clients", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client disconnected",
				slog.String("client_id", c.id),
				slog.Int("clients", total))

		case msg, ok := <-events:
			if !ok {
				h.closeAll()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("ws: signal bus subscription closed")
			}
			h.fanOut(msg)
		}
	}
}

// fanOut wraps one bus event in the client envelope and delivers it to
// every client subscribed to its channel. Slow clients drop the frame
// rather than stall the hub.
func (h *Hub) fanOut(msg domain.StreamMessage) {
	name := domain.ShortChannel(msg.Channel)
	payload, err := json.Marshal(frame{Channel: name, Data: msg.Payload})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(name) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("ws dropping frame for slow client",
				slog.String("client_id", c.id),
				slog.String("channel", name))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Handle upgrades the request and starts the connection's pumps. Clients
// begin with no subscriptions and send subscribe control frames for the
// channels they want.
// GET /ws
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}

	h.register <- c
	c.hello()

	go c.writePump()
	go c.readPump()
}

// hello confirms the connection on the system channel.
func (c *client) hello() {
	data, err := json.Marshal(map[string]any{
		"status":      "connected",
		"client_id":   c.id,
		"server_time": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	payload, err := json.Marshal(frame{Channel: "system", Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// readPump consumes control frames until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws unexpected close",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()))
			}
			return
		}

		var msg subscribeMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.apply(msg)
	}
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

func (c *client) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if matchChannel(sub, channel) {
			return true
		}
	}
	return false
}

// matchChannel reports whether a subscription pattern covers a channel
// name. A trailing * matches any suffix, so "book:*" covers "book:101".
func matchChannel(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, pattern[:len(pattern)-1])
	}
	return false
}

// writePump writes queued frames and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
