package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"asteriskgui/internal/models"
	"asteriskgui/internal/services"
)

type SIPHandler struct {
	sip *services.SIPService
	log *zap.Logger
}

func NewSIPHandler(sip *services.SIPService, log *zap.Logger) *SIPHandler {
	return &SIPHandler{sip: sip, log: log}
}

type createSIPRequest struct {
	ID          string `json:"id" validate:"required,max=64,identifier"`
	Password    string `json:"password" validate:"required"`
	Context     string `json:"context"`
	Codecs      string `json:"codecs"`
	Status      string `json:"status" validate:"omitempty,oneof=active inactive"`
	Description string `json:"description"`
	CallerID    string `json:"callerid"`
}

type updateSIPRequest struct {
	services.SIPAccountUpdate
	Status *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (h *SIPHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.sip.List(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to fetch SIP accounts")
		return
	}
	respondList(w, accounts, len(accounts))
}

func (h *SIPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sip.Stats(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to fetch SIP stats")
		return
	}
	respond(w, http.StatusOK, stats, "")
}

func (h *SIPHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc, err := h.sip.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, h.log, err, "Failed to fetch SIP account")
		return
	}
	respond(w, http.StatusOK, acc, "")
}

func (h *SIPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSIPRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.sip.Create(r.Context(), actor(r), models.SIPAccount{
		ID:          req.ID,
		Password:    req.Password,
		Context:     req.Context,
		Codecs:      req.Codecs,
		Status:      req.Status,
		Description: req.Description,
		CallerID:    req.CallerID,
	})
	if err != nil {
		fail(w, h.log, err, "Failed to create SIP account")
		return
	}
	respond(w, http.StatusCreated, acc, "SIP account created successfully")
}

func (h *SIPHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSIPRequest
	if !decode(w, r, &req) {
		return
	}
	in := req.SIPAccountUpdate
	in.Status = req.Status

	acc, err := h.sip.Update(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		fail(w, h.log, err, "Failed to update SIP account")
		return
	}
	respond(w, http.StatusOK, acc, "SIP account updated successfully")
}

func (h *SIPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	acc, err := h.sip.Delete(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, h.log, err, "Failed to delete SIP account")
		return
	}
	respond(w, http.StatusOK, acc, "SIP account deleted successfully")
}
