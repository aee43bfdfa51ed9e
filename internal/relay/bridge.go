package relay

import "asteriskgui/internal/ami"

// HandleEvent is an ami.Handler that relays manager events.
func (h *Hub) HandleEvent(ev ami.Event) {
	h.PublishAMI(string(ev.Name), ev.Fields)
}

// HandleNotification turns manager lifecycle changes into system events.
// Notifications without a client-facing meaning are ignored.
func (h *Hub) HandleNotification(n ami.Notification) {
	switch n.Kind {
	case ami.NotifyConnected:
		h.BroadcastSystem(EventAMIConnected, map[string]any{"connected": true})
	case ami.NotifyDisconnected:
		data := map[string]any{"connected": false}
		if n.Err != nil {
			data["error"] = n.Err.Error()
		}
		h.BroadcastSystem(EventAMIDisconnected, data)
	case ami.NotifyReconnectFailed:
		h.BroadcastSystem(EventAMIReconnectFailed, map[string]any{"attempts": n.Attempt})
	case ami.NotifyReloaded:
		h.BroadcastSystem(EventConfigReloaded, map[string]any{"module": n.Module})
	case ami.NotifyReloadFailed:
		data := map[string]any{"module": n.Module}
		if n.Err != nil {
			data["error"] = n.Err.Error()
		}
		h.BroadcastSystem(EventConfigReloadFailed, data)
	}
}
