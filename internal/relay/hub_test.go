package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asteriskgui/internal/ami"
)

func tokenAuth(r *http.Request) (Identity, bool) {
	if r.URL.Query().Get("token") != "good" {
		return Identity{}, false
	}
	return Identity{UserID: 1, Username: "admin"}, true
}

func startHub(t *testing.T, opts ...Option) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(tokenAuth, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=good"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type     string          `json:"type"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
	Events   []string        `json:"events"`
	ClientID string          `json:"clientId"`
	Stamp    time.Time       `json:"timestamp"`
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestRejectsUnauthenticatedUpgrade(t *testing.T) {
	_, srv := startHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectionEstablished(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)

	f := next(t, conn)
	assert.Equal(t, TypeConnectionEstablished, f.Type)
	assert.NotEmpty(t, f.ClientID)
	assert.False(t, f.Stamp.IsZero())

	assert.Eventually(t, func() bool {
		return hub.Stats() == Stats{TotalClients: 1, ConnectedClients: 1}
	}, time.Second, 10*time.Millisecond)
}

func TestPingPong(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	send(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, TypePong, next(t, conn).Type)
}

func TestSubscriptionFiltersAMIEvents(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	send(t, conn, map[string]any{"type": "subscribe_events", "data": []string{"Hangup"}})
	confirm := next(t, conn)
	assert.Equal(t, TypeSubscriptionConfirmed, confirm.Type)
	assert.Equal(t, []string{"Hangup"}, confirm.Events)

	hub.HandleEvent(ami.Event{Name: ami.EventDial, Fields: map[string]string{"Channel": "PJSIP/1001-1"}})
	hub.HandleEvent(ami.Event{Name: ami.EventHangup, Fields: map[string]string{"Channel": "PJSIP/1001-1"}})

	f := next(t, conn)
	assert.Equal(t, TypeAMIEvent, f.Type)
	assert.Equal(t, "Hangup", f.Event)
	var data map[string]string
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "PJSIP/1001-1", data["Channel"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	send(t, conn, map[string]any{"type": "subscribe_events", "data": []string{AllEvents}})
	next(t, conn)
	send(t, conn, map[string]any{"type": "unsubscribe_events", "data": []string{AllEvents}})
	assert.Equal(t, TypeUnsubscriptionConfirmed, next(t, conn).Type)

	hub.HandleEvent(ami.Event{Name: ami.EventHangup})
	hub.BroadcastSystem("snapshot_restored", map[string]string{"id": "x"})

	f := next(t, conn)
	assert.Equal(t, TypeSystemEvent, f.Type)
	assert.Equal(t, "snapshot_restored", f.Event)
}

func TestUnknownMessageIgnored(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	send(t, conn, map[string]string{"type": "teleport"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, TypePong, next(t, conn).Type)
}

func TestNotificationsBecomeSystemEvents(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	next(t, conn)

	hub.HandleNotification(ami.Notification{Kind: ami.NotifyReconnectScheduled})
	hub.HandleNotification(ami.Notification{Kind: ami.NotifyDisconnected, Err: errors.New("connection reset")})
	hub.HandleNotification(ami.Notification{Kind: ami.NotifyReconnectFailed, Attempt: 10})
	hub.HandleNotification(ami.Notification{Kind: ami.NotifyReloaded, Module: "pjsip"})

	f := next(t, conn)
	assert.Equal(t, EventAMIDisconnected, f.Event)
	assert.JSONEq(t, `{"connected":false,"error":"connection reset"}`, string(f.Data))

	f = next(t, conn)
	assert.Equal(t, EventAMIReconnectFailed, f.Event)
	assert.JSONEq(t, `{"attempts":10}`, string(f.Data))

	f = next(t, conn)
	assert.Equal(t, EventConfigReloaded, f.Event)
	assert.JSONEq(t, `{"module":"pjsip"}`, string(f.Data))
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub(tokenAuth)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// A queue of one is filled by connection_established.
	slow := newClient("slow", nil, Identity{}, 1, hub.log)
	fast := newClient("fast", nil, Identity{}, 8, hub.log)
	hub.register <- slow
	hub.register <- fast

	hub.BroadcastSystem("ami_connected", nil)

	assert.Eventually(t, func() bool {
		return hub.Stats().ConnectedClients == 1
	}, time.Second, 10*time.Millisecond)

	var got []string
	for msg := range slow.send {
		got = append(got, string(msg))
	}
	require.Len(t, got, 1)
	assert.Contains(t, got[0], TypeConnectionEstablished)

	require.Eventually(t, func() bool { return len(fast.send) == 2 }, time.Second, 10*time.Millisecond)
	<-fast.send
	assert.Contains(t, string(<-fast.send), "ami_connected")
}
