package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Authenticator resolves the caller of an upgrade request.
type Authenticator func(r *http.Request) (Identity, bool)

// Stats is the hub summary exposed by /health.
type Stats struct {
	TotalClients     int64 `json:"totalClients"`
	ConnectedClients int   `json:"connectedClients"`
}

type outbound struct {
	env Envelope
	// to targets a single client; otherwise match filters recipients.
	to    *Client
	match func(*Client) bool
}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithSendBuffer sets the per-client queue length. A client whose queue is
// full when a frame is due is disconnected.
func WithSendBuffer(n int) Option {
	return func(h *Hub) { h.buffer = n }
}

func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = f }
}

// Hub owns every relay connection. The Run loop is the only writer of the
// client map and the only sender on client queues.
type Hub struct {
	log      *zap.Logger
	auth     Authenticator
	upgrader websocket.Upgrader
	buffer   int
	now      func() time.Time

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}

	mu      sync.RWMutex
	clients map[string]*Client
	total   atomic.Int64
}

func NewHub(auth Authenticator, opts ...Option) *Hub {
	h := &Hub{
		log:  zap.NewNop(),
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		buffer:     sendBuffer,
		now:        time.Now,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer h.cleanup()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("relay hub shutting down")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.total.Add(1)
			h.log.Info("websocket client connected",
				zap.String("client_id", c.ID),
				zap.String("username", c.Identity.Username),
				zap.Int("clients", n))
			h.deliver(c, h.encode(Envelope{Type: TypeConnectionEstablished, ClientID: c.ID}))

		case c := <-h.unregister:
			if h.remove(c) {
				h.log.Info("websocket client disconnected", zap.String("client_id", c.ID))
			}

		case out := <-h.broadcast:
			frame := h.encode(out.env)
			if frame == nil {
				continue
			}
			if out.to != nil {
				if h.connected(out.to) {
					h.deliver(out.to, frame)
				}
				continue
			}
			for _, c := range h.snapshot() {
				if out.match == nil || out.match(c) {
					h.deliver(c, frame)
				}
			}
		}
	}
}

// ServeHTTP authenticates and upgrades a relay connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.auth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":"Authentication required"}`))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), conn, ident, h.buffer, h.log)
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump(h)
}

// PublishAMI relays a manager event to clients subscribed to its name or to
// every event.
func (h *Hub) PublishAMI(name string, fields map[string]string) {
	h.enqueue(outbound{
		env:   Envelope{Type: TypeAMIEvent, Event: name, Data: fields},
		match: func(c *Client) bool { return c.Subscribed(name) },
	})
}

// BroadcastSystem sends a system_event to every client.
func (h *Hub) BroadcastSystem(event string, data any) {
	h.enqueue(outbound{env: Envelope{Type: TypeSystemEvent, Event: event, Data: data}})
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{TotalClients: h.total.Load(), ConnectedClients: len(h.clients)}
}

func (h *Hub) enqueue(out outbound) {
	select {
	case h.broadcast <- out:
	default:
		h.log.Warn("relay queue full, dropping frame",
			zap.String("type", out.env.Type),
			zap.String("event", out.env.Event))
	}
}

func (h *Hub) reply(c *Client, env Envelope) {
	select {
	case h.broadcast <- outbound{env: env, to: c}:
	case <-h.done:
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// deliver queues frame for c without blocking; a full queue drops the client.
func (h *Hub) deliver(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		if h.remove(c) {
			c.close()
			h.log.Warn("dropping slow websocket client", zap.String("client_id", c.ID))
		}
	}
}

func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.ID]; !ok || cur != c {
		return false
	}
	delete(h.clients, c.ID)
	close(c.send)
	return true
}

func (h *Hub) connected(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[c.ID] == c
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) encode(env Envelope) []byte {
	env.Timestamp = h.now().UTC()
	frame, err := json.Marshal(env)
	if err != nil {
		h.log.Error("failed to encode relay frame", zap.String("type", env.Type), zap.Error(err))
		return nil
	}
	return frame
}

func (h *Hub) cleanup() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		c.close()
		delete(h.clients, id)
	}
	h.log.Info("relay hub cleanup completed")
}
