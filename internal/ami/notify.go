package ami

import (
	"sync"
	"time"
)

type NotificationKind int

const (
	NotifyConnected NotificationKind = iota + 1
	NotifyDisconnected
	NotifyError
	NotifyReconnectScheduled
	NotifyReconnectFailed
	NotifyReloaded
	NotifyReloadFailed
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyConnected:
		return "connected"
	case NotifyDisconnected:
		return "disconnected"
	case NotifyError:
		return "error"
	case NotifyReconnectScheduled:
		return "reconnect_scheduled"
	case NotifyReconnectFailed:
		return "reconnect_failed"
	case NotifyReloaded:
		return "reloaded"
	case NotifyReloadFailed:
		return "reload_failed"
	default:
		return "unknown"
	}
}

// Notification reports a lifecycle change of the manager connection or the
// outcome of a reload.
type Notification struct {
	Kind    NotificationKind
	Err     error
	Attempt int
	// Module is set for reload notifications: "pjsip", "queues" or "all".
	Module string
	Time   time.Time
}

// Notifier accepts notifications from components layered on a Client.
type Notifier interface {
	Notify(n Notification)
}

type notifier struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]func(Notification)
}

func (n *notifier) subscribe(h func(Notification)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.handlers == nil {
		n.handlers = make(map[uint64]func(Notification))
	}
	n.next++
	id := n.next
	n.handlers[id] = h

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.handlers, id)
	}
}

func (n *notifier) emit(note Notification) {
	n.mu.RLock()
	handlers := make([]func(Notification), 0, len(n.handlers))
	for _, h := range n.handlers {
		handlers = append(handlers, h)
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		h(note)
	}
}
