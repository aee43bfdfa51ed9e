package relay

import (
	"encoding/json"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID   int64
	Username string
}

// Client is one WebSocket connection. Only the hub loop sends on or closes
// send.
type Client struct {
	ID       string
	Identity Identity

	conn *websocket.Conn
	send chan []byte
	subs mapset.Set[string]
	log  *zap.Logger
}

func newClient(id string, conn *websocket.Conn, ident Identity, buffer int, log *zap.Logger) *Client {
	return &Client{
		ID:       id,
		Identity: ident,
		conn:     conn,
		send:     make(chan []byte, buffer),
		subs:     mapset.NewSet[string](),
		log:      log.With(zap.String("client_id", id)),
	}
}

// Subscribed reports whether the client wants events named name.
func (c *Client) Subscribed(name string) bool {
	return c.subs.Contains(name) || c.subs.Contains(AllEvents)
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.leave(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("invalid websocket message", zap.Error(err))
			continue
		}
		c.handle(h, msg)
	}
}

func (c *Client) handle(h *Hub, msg inbound) {
	switch msg.Type {
	case TypeSubscribeEvents:
		names := msg.eventNames()
		for _, n := range names {
			c.subs.Add(n)
		}
		h.reply(c, Envelope{Type: TypeSubscriptionConfirmed, Events: names})
	case TypeUnsubscribeEvents:
		names := msg.eventNames()
		for _, n := range names {
			c.subs.Remove(n)
		}
		h.reply(c, Envelope{Type: TypeUnsubscriptionConfirmed, Events: names})
	case TypePing:
		h.reply(c, Envelope{Type: TypePong})
	default:
		c.log.Info("unknown websocket message type", zap.String("type", msg.Type))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
