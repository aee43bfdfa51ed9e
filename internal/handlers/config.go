package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"asteriskgui/internal/services"
)

type ConfigHandler struct {
	snapshots   *services.SnapshotService
	provisioner *services.Provisioner
	raw         *services.RawConfigService
	log         *zap.Logger
}

func NewConfigHandler(snapshots *services.SnapshotService, provisioner *services.Provisioner, raw *services.RawConfigService, log *zap.Logger) *ConfigHandler {
	return &ConfigHandler{
		snapshots:   snapshots,
		provisioner: provisioner,
		raw:         raw,
		log:         log,
	}
}

type snapshotRequest struct {
	Comment string `json:"comment" validate:"max=500"`
}

type rawConfigRequest struct {
	Content *string `json:"content" validate:"required"`
	Comment string  `json:"comment" validate:"max=500"`
}

func (h *ConfigHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.snapshots.List()
	if err != nil {
		fail(w, h.log, err, "Failed to list snapshots")
		return
	}
	respondList(w, snaps, len(snaps))
}

func (h *ConfigHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.provisioner.CreateSnapshot(r.Context(), actor(r), req.Comment)
	if err != nil {
		fail(w, h.log, err, "Failed to create snapshot")
		return
	}
	respond(w, http.StatusCreated, snap, "Snapshot created successfully")
}

func (h *ConfigHandler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.provisioner.RestoreSnapshot(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, h.log, err, "Failed to restore snapshot")
		return
	}
	respond(w, http.StatusOK, snap, "Snapshot restored successfully")
}

func (h *ConfigHandler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.provisioner.DeleteSnapshot(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		fail(w, h.log, err, "Failed to delete snapshot")
		return
	}
	respond(w, http.StatusOK, nil, "Snapshot deleted successfully")
}

func (h *ConfigHandler) ListRaw(w http.ResponseWriter, r *http.Request) {
	files, err := h.raw.List()
	if err != nil {
		fail(w, h.log, err, "Failed to list config files")
		return
	}
	respondList(w, files, len(files))
}

func (h *ConfigHandler) ReadRaw(w http.ResponseWriter, r *http.Request) {
	file, err := h.raw.Read(chi.URLParam(r, "filename"))
	if err != nil {
		fail(w, h.log, err, "Failed to read config file")
		return
	}
	respond(w, http.StatusOK, file, "")
}

func (h *ConfigHandler) WriteRaw(w http.ResponseWriter, r *http.Request) {
	var req rawConfigRequest
	if !decode(w, r, &req) {
		return
	}
	file, err := h.raw.Write(r.Context(), actor(r), chi.URLParam(r, "filename"), *req.Content, req.Comment)
	if err != nil {
		fail(w, h.log, err, "Failed to update config file")
		return
	}
	respond(w, http.StatusOK, file, "Config file updated successfully")
}

func (h *ConfigHandler) DeleteRaw(w http.ResponseWriter, r *http.Request) {
	if err := h.raw.Delete(r.Context(), actor(r), chi.URLParam(r, "filename")); err != nil {
		fail(w, h.log, err, "Failed to delete config file")
		return
	}
	respond(w, http.StatusOK, nil, "Config file deleted successfully")
}
