package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"asteriskgui/internal/models"
	"asteriskgui/internal/services"
)

type TrunkHandler struct {
	trunks *services.TrunkService
	log    *zap.Logger
}

func NewTrunkHandler(trunks *services.TrunkService, log *zap.Logger) *TrunkHandler {
	return &TrunkHandler{trunks: trunks, log: log}
}

type createTrunkRequest struct {
	// ID defaults to Name.
	ID               string `json:"id" validate:"omitempty,max=64,identifier"`
	Name             string `json:"name" validate:"required,max=64"`
	Type             string `json:"type" validate:"omitempty,oneof=peer friend user"`
	Host             string `json:"host" validate:"required"`
	Port             int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	FromUser         string `json:"fromuser"`
	FromDomain       string `json:"fromdomain"`
	Context          string `json:"context"`
	Qualify          string `json:"qualify"`
	QualifyFrequency int    `json:"qualify_frequency" validate:"min=0"`
	Insecure         string `json:"insecure"`
	Protocol         string `json:"protocol" validate:"omitempty,oneof=udp tcp tls"`
	Register         string `json:"register" validate:"omitempty,oneof=yes no"`
	Status           string `json:"status" validate:"omitempty,oneof=active inactive"`
}

type updateTrunkRequest struct {
	services.TrunkUpdate
	Port     *int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Protocol *string `json:"protocol" validate:"omitempty,oneof=udp tcp tls"`
	Register *string `json:"register" validate:"omitempty,oneof=yes no"`
	Status   *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (h *TrunkHandler) List(w http.ResponseWriter, r *http.Request) {
	trunks, err := h.trunks.List(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to fetch trunks")
		return
	}
	respondList(w, trunks, len(trunks))
}

func (h *TrunkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.trunks.Stats(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to fetch trunk stats")
		return
	}
	respond(w, http.StatusOK, stats, "")
}

func (h *TrunkHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.trunks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, h.log, err, "Failed to fetch trunk")
		return
	}
	respond(w, http.StatusOK, t, "")
}

func (h *TrunkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTrunkRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = req.Name
	}

	t, err := h.trunks.Create(r.Context(), actor(r), models.Trunk{
		ID:               req.ID,
		Name:             req.Name,
		Type:             req.Type,
		Host:             req.Host,
		Port:             req.Port,
		Username:         req.Username,
		Password:         req.Password,
		FromUser:         req.FromUser,
		FromDomain:       req.FromDomain,
		Context:          req.Context,
		Qualify:          req.Qualify,
		QualifyFrequency: req.QualifyFrequency,
		Insecure:         req.Insecure,
		Protocol:         req.Protocol,
		Register:         req.Register,
		Status:           req.Status,
	})
	if err != nil {
		fail(w, h.log, err, "Failed to create trunk")
		return
	}
	respond(w, http.StatusCreated, t, "Trunk created successfully")
}

func (h *TrunkHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateTrunkRequest
	if !decode(w, r, &req) {
		return
	}
	in := req.TrunkUpdate
	in.Port = req.Port
	in.Protocol = req.Protocol
	in.Register = req.Register
	in.Status = req.Status

	t, err := h.trunks.Update(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		fail(w, h.log, err, "Failed to update trunk")
		return
	}
	respond(w, http.StatusOK, t, "Trunk updated successfully")
}

func (h *TrunkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, err := h.trunks.Delete(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, h.log, err, "Failed to delete trunk")
		return
	}
	respond(w, http.StatusOK, t, "Trunk deleted successfully")
}
