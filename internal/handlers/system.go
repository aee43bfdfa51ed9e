package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"asteriskgui/internal/models"
	"asteriskgui/internal/services"
)

type SystemHandler struct {
	system     *services.SystemService
	interfaces *services.InterfaceService
	host       *services.HostService
	log        *zap.Logger
}

func NewSystemHandler(system *services.SystemService, interfaces *services.InterfaceService, host *services.HostService, log *zap.Logger) *SystemHandler {
	return &SystemHandler{
		system:     system,
		interfaces: interfaces,
		host:       host,
		log:        log,
	}
}

type settingsRequest struct {
	Asterisk map[string]any `json:"asterisk"`
	Security map[string]any `json:"security"`
	Paths    map[string]any `json:"paths"`
}

type restoreRequest struct {
	BackupPath string `json:"backupPath" validate:"required"`
}

func (h *SystemHandler) Config(w http.ResponseWriter, r *http.Request) {
	settings, err := h.system.Settings(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to fetch system configuration")
		return
	}
	respond(w, http.StatusOK, settings, "")
}

func (h *SystemHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decode(w, r, &req) {
		return
	}
	settings, err := h.system.UpdateSettings(r.Context(), actor(r), models.SystemSettings{
		Asterisk: req.Asterisk,
		Security: req.Security,
		Paths:    req.Paths,
	})
	if err != nil {
		fail(w, h.log, err, "Failed to update system configuration")
		return
	}
	respond(w, http.StatusOK, settings, "System configuration updated successfully")
}

func (h *SystemHandler) Backup(w http.ResponseWriter, r *http.Request) {
	path, err := h.system.Backup(r.Context(), actor(r))
	if err != nil {
		fail(w, h.log, err, "Failed to create backup")
		return
	}
	respond(w, http.StatusOK, map[string]string{"backupPath": path}, "Backup created successfully")
}

func (h *SystemHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.system.ListBackups()
	if err != nil {
		fail(w, h.log, err, "Failed to list backups")
		return
	}
	respondList(w, backups, len(backups))
}

func (h *SystemHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.system.Restore(r.Context(), actor(r), req.BackupPath); err != nil {
		fail(w, h.log, err, "Failed to restore backup")
		return
	}
	respond(w, http.StatusOK, nil, "Backup restored successfully")
}

func (h *SystemHandler) Interfaces(w http.ResponseWriter, r *http.Request) {
	ifaces, err := h.interfaces.List()
	if err != nil {
		fail(w, h.log, err, "Failed to list network interfaces")
		return
	}
	respondList(w, ifaces, len(ifaces))
}

func (h *SystemHandler) Host(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.host.Info(), "")
}
