package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"asteriskgui/internal/ami"
	"asteriskgui/internal/services"
)

// Manager is the connection side of the AMI client.
type Manager interface {
	Status() ami.ConnectionStatus
	Connect(ctx context.Context) error
}

// AsteriskCLI answers status queries and reloads.
type AsteriskCLI interface {
	SIPPeers(ctx context.Context) ([]ami.Peer, error)
	Queues(ctx context.Context) ([]ami.QueueStatus, error)
	SystemInfo(ctx context.Context) ami.SystemInfo
	ReloadPJSIP(ctx context.Context) error
	ReloadQueues(ctx context.Context) error
	ReloadAll(ctx context.Context) error
}

type AsteriskHandler struct {
	manager Manager
	cli     AsteriskCLI
	audit   *services.AuditService
	log     *zap.Logger
}

func NewAsteriskHandler(manager Manager, cli AsteriskCLI, audit *services.AuditService, log *zap.Logger) *AsteriskHandler {
	return &AsteriskHandler{manager: manager, cli: cli, audit: audit, log: log}
}

func (h *AsteriskHandler) Status(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.manager.Status(), "")
}

func (h *AsteriskHandler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.cli.SystemInfo(r.Context()), "")
}

func (h *AsteriskHandler) SIPPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := h.cli.SIPPeers(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to get SIP peers")
		return
	}
	respondList(w, peers, len(peers))
}

func (h *AsteriskHandler) Queues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.cli.Queues(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to get queues status")
		return
	}
	respondList(w, queues, len(queues))
}

func (h *AsteriskHandler) ReloadPJSIP(w http.ResponseWriter, r *http.Request) {
	h.reload(w, r, "pjsip", h.cli.ReloadPJSIP, "PJSIP reloaded successfully", "Failed to reload PJSIP")
}

func (h *AsteriskHandler) ReloadQueues(w http.ResponseWriter, r *http.Request) {
	h.reload(w, r, "queues", h.cli.ReloadQueues, "Queues reloaded successfully", "Failed to reload queues")
}

func (h *AsteriskHandler) ReloadAll(w http.ResponseWriter, r *http.Request) {
	h.reload(w, r, "all", h.cli.ReloadAll, "All modules reloaded successfully", "Failed to reload all modules")
}

func (h *AsteriskHandler) reload(w http.ResponseWriter, r *http.Request, module string, fn func(context.Context) error, ok, failed string) {
	err := fn(r.Context())
	details := map[string]any{"module": module, "success": err == nil}
	if err != nil {
		details["error"] = err.Error()
	}
	h.audit.Log(r.Context(), actor(r), services.ActionAsteriskReload, details)

	if err != nil {
		fail(w, h.log, err, failed)
		return
	}
	respond(w, http.StatusOK, nil, ok)
}

func (h *AsteriskHandler) Connect(w http.ResponseWriter, r *http.Request) {
	err := h.manager.Connect(r.Context())
	h.audit.Log(r.Context(), actor(r), services.ActionAsteriskConnect, map[string]any{"success": err == nil})

	switch {
	case err == nil:
		respond(w, http.StatusOK, h.manager.Status(), "AMI connection established")
	case errors.Is(err, ami.ErrConnecting):
		respond(w, http.StatusAccepted, h.manager.Status(), "AMI connection already in progress")
	default:
		h.log.Warn("manual AMI connect failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to connect to AMI: "+err.Error())
	}
}
