package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"asteriskgui/internal/auth"
	"asteriskgui/internal/middleware"
	"asteriskgui/internal/models"
	"asteriskgui/internal/services"
)

type AuthHandler struct {
	users    *auth.UserService
	tokens   *auth.TokenManager
	sessions *auth.SessionManager
	audit    *services.AuditService
	log      *zap.Logger
}

func NewAuthHandler(users *auth.UserService, tokens *auth.TokenManager, sessions *auth.SessionManager, audit *services.AuditService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		audit:    audit,
		log:      log,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	ip := getClientIP(r)
	user, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		h.loginFailed(w, r, req.Username, ip, user, err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		fail(w, h.log, err, "Login failed")
		return
	}
	if err := h.sessions.SetUser(w, r, user.ID, string(user.Role)); err != nil {
		h.log.Warn("failed to set session cookie", zap.String("username", user.Username), zap.Error(err))
	}

	h.audit.Log(r.Context(), services.Actor{ID: user.ID, Username: user.Username, IP: ip},
		services.ActionLoginSuccess, map[string]any{"username": user.Username, "ip": ip})
	h.log.Info("login succeeded", zap.String("username", user.Username), zap.String("ip", ip))

	respond(w, http.StatusOK, loginResponse{Token: token, User: user}, "Login successful")
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, username, ip string, user *models.User, err error) {
	who := services.Actor{Username: username, IP: ip}
	if user != nil {
		who.ID = user.ID
	}
	details := map[string]any{"username": username, "ip": ip}
	status, msg := http.StatusUnauthorized, "Invalid credentials"

	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		details["reason"] = "User not found"
	case errors.Is(err, auth.ErrAccountLocked):
		details["reason"] = "Account locked"
		details["lockedUntil"] = user.LockedUntil
		msg = "Account is temporarily locked due to failed login attempts"
	case errors.Is(err, auth.ErrUserInactive):
		details["reason"] = "Account inactive"
		msg = "Account is disabled"
	case errors.Is(err, auth.ErrInvalidPassword):
		details["reason"] = "Invalid password"
		details["failedAttempts"] = user.FailedLoginAttempts
	default:
		fail(w, h.log, err, "Login failed")
		return
	}

	h.audit.Log(r.Context(), who, services.ActionLoginFailed, details)
	h.log.Warn("login failed", zap.String("username", username), zap.String("ip", ip), zap.Any("reason", details["reason"]))
	respondError(w, status, msg)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "Refresh token required")
		return
	}

	fresh, err := h.tokens.Refresh(token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	respond(w, http.StatusOK, map[string]string{"token": fresh}, "Token refreshed successfully")
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, middleware.GetUser(r), "")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r); user != nil {
		h.audit.Log(r.Context(), actor(r), services.ActionLogout, map[string]any{"username": user.Username})
	}
	if err := h.sessions.Clear(w, r); err != nil {
		h.log.Warn("failed to clear session", zap.Error(err))
	}
	respond(w, http.StatusOK, nil, "Logged out successfully")
}
