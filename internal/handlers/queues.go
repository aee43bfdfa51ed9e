package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"asteriskgui/internal/models"
	"asteriskgui/internal/services"
)

type QueueHandler struct {
	queues *services.QueueService
	log    *zap.Logger
}

func NewQueueHandler(queues *services.QueueService, log *zap.Logger) *QueueHandler {
	return &QueueHandler{queues: queues, log: log}
}

type memberRequest struct {
	Interface  string `json:"interface" validate:"required"`
	Penalty    int    `json:"penalty" validate:"min=0"`
	MemberName string `json:"membername"`
}

func (m memberRequest) model() models.QueueMember {
	return models.QueueMember{Interface: m.Interface, Penalty: m.Penalty, MemberName: m.MemberName}
}

type createQueueRequest struct {
	// ID defaults to Name.
	ID           string          `json:"id" validate:"omitempty,max=64,identifier"`
	Name         string          `json:"name" validate:"required,max=64"`
	Strategy     string          `json:"strategy" validate:"omitempty,oneof=ringall leastrecent fewestcalls random rrmemory rrordered linear wrandom"`
	Timeout      int             `json:"timeout" validate:"min=0"`
	WrapupTime   int             `json:"wrapuptime" validate:"min=0"`
	MaxLen       int             `json:"maxlen" validate:"min=0"`
	ServiceLevel int             `json:"servicelevel" validate:"min=0"`
	MusicClass   string          `json:"musicclass"`
	Announce     string          `json:"announce"`
	Members      []memberRequest `json:"members" validate:"dive"`
}

type updateQueueRequest struct {
	Name         *string          `json:"name" validate:"omitempty,max=64"`
	Strategy     *string          `json:"strategy" validate:"omitempty,oneof=ringall leastrecent fewestcalls random rrmemory rrordered linear wrandom"`
	Timeout      *int             `json:"timeout" validate:"omitempty,min=0"`
	WrapupTime   *int             `json:"wrapuptime" validate:"omitempty,min=0"`
	MaxLen       *int             `json:"maxlen" validate:"omitempty,min=0"`
	ServiceLevel *int             `json:"servicelevel" validate:"omitempty,min=0"`
	MusicClass   *string          `json:"musicclass"`
	Announce     *string          `json:"announce"`
	Members      *[]memberRequest `json:"members" validate:"omitempty,dive"`
}

func members(in []memberRequest) []models.QueueMember {
	out := make([]models.QueueMember, 0, len(in))
	for _, m := range in {
		out = append(out, m.model())
	}
	return out
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	queues, err := h.queues.List(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to fetch queues")
		return
	}
	respondList(w, queues, len(queues))
}

func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queues.Stats(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to fetch queue stats")
		return
	}
	respond(w, http.StatusOK, stats, "")
}

func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.queues.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, h.log, err, "Failed to fetch queue")
		return
	}
	respond(w, http.StatusOK, q, "")
}

func (h *QueueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = req.Name
	}

	q, err := h.queues.Create(r.Context(), actor(r), models.Queue{
		ID:           req.ID,
		Name:         req.Name,
		Strategy:     req.Strategy,
		Timeout:      req.Timeout,
		WrapupTime:   req.WrapupTime,
		MaxLen:       req.MaxLen,
		ServiceLevel: req.ServiceLevel,
		MusicClass:   req.MusicClass,
		Announce:     req.Announce,
		Members:      members(req.Members),
	})
	if err != nil {
		fail(w, h.log, err, "Failed to create queue")
		return
	}
	respond(w, http.StatusCreated, q, "Queue created successfully")
}

func (h *QueueHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateQueueRequest
	if !decode(w, r, &req) {
		return
	}

	in := services.QueueUpdate{
		Name:         req.Name,
		Strategy:     req.Strategy,
		Timeout:      req.Timeout,
		WrapupTime:   req.WrapupTime,
		MaxLen:       req.MaxLen,
		ServiceLevel: req.ServiceLevel,
		MusicClass:   req.MusicClass,
		Announce:     req.Announce,
	}
	if req.Members != nil {
		m := members(*req.Members)
		in.Members = &m
	}

	q, err := h.queues.Update(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		fail(w, h.log, err, "Failed to update queue")
		return
	}
	respond(w, http.StatusOK, q, "Queue updated successfully")
}

func (h *QueueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q, err := h.queues.Delete(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, h.log, err, "Failed to delete queue")
		return
	}
	respond(w, http.StatusOK, q, "Queue deleted successfully")
}

func (h *QueueHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !decode(w, r, &req) {
		return
	}

	q, err := h.queues.AddMember(r.Context(), actor(r), chi.URLParam(r, "id"), req.model())
	if err != nil {
		fail(w, h.log, err, "Failed to add queue member")
		return
	}
	respond(w, http.StatusCreated, q, "Member added to queue successfully")
}

// RemoveMember takes the interface path-escaped, since it contains a slash.
func (h *QueueHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	iface, err := url.PathUnescape(chi.URLParam(r, "iface"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid member interface")
		return
	}

	q, err := h.queues.RemoveMember(r.Context(), actor(r), chi.URLParam(r, "id"), iface)
	if err != nil {
		fail(w, h.log, err, "Failed to remove queue member")
		return
	}
	respond(w, http.StatusOK, q, "Member removed from queue successfully")
}
