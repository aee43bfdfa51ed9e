package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"asteriskgui/internal/services"
)

type AuditHandler struct {
	audit *services.AuditService
	log   *zap.Logger
}

func NewAuditHandler(audit *services.AuditService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, log: log}
}

// parseDate accepts RFC 3339 or a bare date.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if t, err = time.Parse(time.DateOnly, s); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (h *AuditHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := services.AuditFilter{Action: q.Get("action")}

	var err error
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
	}
	if v := q.Get("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "userId must be an integer")
			return
		}
		f.UserID = &id
	}
	if f.StartDate, err = parseDate(q.Get("startDate")); err != nil {
		respondError(w, http.StatusBadRequest, "startDate must be a date")
		return
	}
	if f.EndDate, err = parseDate(q.Get("endDate")); err != nil {
		respondError(w, http.StatusBadRequest, "endDate must be a date")
		return
	}

	page, err := h.audit.Query(r.Context(), f)
	if err != nil {
		fail(w, h.log, err, "Failed to fetch audit logs")
		return
	}
	respond(w, http.StatusOK, page, "")
}

func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audit.Stats(r.Context())
	if err != nil {
		fail(w, h.log, err, "Failed to fetch audit stats")
		return
	}
	respond(w, http.StatusOK, stats, "")
}

func (h *AuditHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.audit.Clear(r.Context(), actor(r)); err != nil {
		fail(w, h.log, err, "Failed to clear audit logs")
		return
	}
	respond(w, http.StatusOK, nil, "Audit logs cleared successfully")
}
