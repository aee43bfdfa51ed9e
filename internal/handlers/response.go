package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"asteriskgui/internal/ami"
	"asteriskgui/internal/auth"
	"asteriskgui/internal/middleware"
	"asteriskgui/internal/services"
)

const maxBodyBytes = 1 << 20

// envelope is the shape of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Total: &total})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}

// fail maps a service error to a status. Client errors expose the error
// text; anything unexpected is logged and answered with fallback.
func fail(w http.ResponseWriter, log *zap.Logger, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(fallback, zap.Error(err))
		respondError(w, status, fallback)
		return
	}
	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrMemberNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrExists),
		errors.Is(err, services.ErrMemberExists),
		errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidName),
		errors.Is(err, services.ErrInvalidID),
		errors.Is(err, services.ErrInvalidValue),
		errors.Is(err, services.ErrInvalidBackup),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrSelfAction),
		errors.Is(err, auth.ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ami.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	if msg := validate(dst); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// actor describes the caller for audit entries.
func actor(r *http.Request) services.Actor {
	a := services.Actor{IP: getClientIP(r)}
	if user := middleware.GetUser(r); user != nil {
		a.ID = user.ID
		a.Username = user.Username
	}
	return a
}

func getClientIP(r *http.Request) string {
	return middleware.ClientIP(r)
}
