package handlers

import (
	"net/http"
	"time"

	"asteriskgui/internal/ami"
	"asteriskgui/internal/relay"
)

type HealthHandler struct {
	service string
	ami     func() ami.ConnectionStatus
	relay   func() relay.Stats
}

func NewHealthHandler(service string, amiStatus func() ami.ConnectionStatus, relayStats func() relay.Stats) *HealthHandler {
	return &HealthHandler{service: service, ami: amiStatus, relay: relayStats}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
		"service":   h.service,
		"ami":       h.ami(),
		"websocket": h.relay(),
	})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"error":   "Route not found",
		"path":    r.URL.Path,
		"method":  r.Method,
	})
}
