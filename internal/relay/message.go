package relay

import (
	"encoding/json"
	"time"
)

// Message types exchanged over /ws.
const (
	TypeConnectionEstablished   = "connection_established"
	TypeSubscribeEvents         = "subscribe_events"
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscribeEvents       = "unsubscribe_events"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypePing                    = "ping"
	TypePong                    = "pong"
	TypeAMIEvent                = "ami_event"
	TypeSystemEvent             = "system_event"
)

// AllEvents subscribes a client to every AMI event.
const AllEvents = "event"

// System event names published by the server.
const (
	EventAMIConnected       = "ami_connected"
	EventAMIDisconnected    = "ami_disconnected"
	EventAMIReconnectFailed = "ami_reconnect_failed"
	EventConfigReloaded     = "config_reloaded"
	EventConfigReloadFailed = "config_reload_failed"
)

// Envelope is the single frame shape sent to clients.
type Envelope struct {
	Type      string    `json:"type"`
	Event     string    `json:"event,omitempty"`
	Data      any       `json:"data,omitempty"`
	Events    []string  `json:"events,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// inbound is what clients send. Subscription lists arrive in data, or in
// events for clients that mirror the confirmation shape.
type inbound struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Events []string        `json:"events,omitempty"`
}

func (m inbound) eventNames() []string {
	if len(m.Data) > 0 {
		var names []string
		if err := json.Unmarshal(m.Data, &names); err == nil {
			return names
		}
		var one string
		if err := json.Unmarshal(m.Data, &one); err == nil && one != "" {
			return []string{one}
		}
	}
	return m.Events
}
