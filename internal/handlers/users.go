package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"asteriskgui/internal/auth"
	"asteriskgui/internal/middleware"
	"asteriskgui/internal/models"
	"asteriskgui/internal/services"
)

type UserHandler struct {
	users *auth.UserService
	audit *services.AuditService
	log   *zap.Logger
}

func NewUserHandler(users *auth.UserService, audit *services.AuditService, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, audit: audit, log: log}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,identifier"`
	Password string `json:"password" validate:"required,min=8"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required,oneof=admin operator viewer"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin operator viewer"`
	IsActive *bool   `json:"isActive"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return 0, false
	}
	return id, true
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List()
	if err != nil {
		fail(w, h.log, err, "Failed to fetch users")
		return
	}
	respondList(w, users, len(users))
}

func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats()
	if err != nil {
		fail(w, h.log, err, "Failed to fetch user stats")
		return
	}
	respond(w, http.StatusOK, stats, "")
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(id)
	if err != nil {
		fail(w, h.log, err, "Failed to fetch user")
		return
	}
	respond(w, http.StatusOK, user, "")
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.users.Create(auth.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		fail(w, h.log, err, "Failed to create user")
		return
	}

	h.audit.Log(r.Context(), actor(r), services.ActionUserCreated, map[string]any{
		"targetUserId": user.ID,
		"username":     user.Username,
		"role":         user.Role,
	})
	respond(w, http.StatusCreated, user, "User created successfully")
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !decode(w, r, &req) {
		return
	}

	in := auth.UpdateUserInput{Email: req.Email, IsActive: req.IsActive}
	if req.Role != nil {
		role := models.Role(*req.Role)
		in.Role = &role
	}
	user, err := h.users.Update(id, in)
	if err != nil {
		fail(w, h.log, err, "Failed to update user")
		return
	}

	h.audit.Log(r.Context(), actor(r), services.ActionUserUpdated, map[string]any{
		"targetUserId": id,
		"changes":      req,
	})
	respond(w, http.StatusOK, user, "User updated successfully")
}

// ChangePassword lets users change their own password. Admins may change
// anyone else's without the current password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	caller := middleware.GetUser(r)
	self := caller.ID == id
	if !self && caller.Role != models.RoleAdmin {
		respondError(w, http.StatusForbidden, "You can only change your own password")
		return
	}

	var err error
	if self {
		if req.CurrentPassword == "" {
			respondError(w, http.StatusBadRequest, "currentPassword is required")
			return
		}
		err = h.users.ChangePassword(id, req.CurrentPassword, req.NewPassword)
	} else {
		_, err = h.users.ResetPassword(id, req.NewPassword)
	}
	if errors.Is(err, auth.ErrInvalidPassword) {
		respondError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if err != nil {
		fail(w, h.log, err, "Failed to change password")
		return
	}

	h.audit.Log(r.Context(), actor(r), services.ActionPasswordChanged, map[string]any{"targetUserId": id})
	respond(w, http.StatusOK, nil, "Password changed successfully")
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if _, err := h.users.ResetPassword(id, req.NewPassword); err != nil {
		fail(w, h.log, err, "Failed to reset password")
		return
	}

	h.audit.Log(r.Context(), actor(r), services.ActionPasswordReset, map[string]any{"targetUserId": id})
	respond(w, http.StatusOK, nil, "Password reset successfully")
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	target, err := h.users.GetByID(id)
	if err != nil {
		fail(w, h.log, err, "Failed to delete user")
		return
	}
	if err := h.users.Delete(id, middleware.GetUser(r).ID); err != nil {
		if errors.Is(err, auth.ErrSelfAction) {
			respondError(w, http.StatusBadRequest, "Cannot delete your own account")
			return
		}
		fail(w, h.log, err, "Failed to delete user")
		return
	}

	h.audit.Log(r.Context(), actor(r), services.ActionUserDeleted, map[string]any{
		"targetUserId": id,
		"username":     target.Username,
	})
	respond(w, http.StatusOK, nil, "User deleted successfully")
}

func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := h.users.Deactivate(id, middleware.GetUser(r).ID)
	if err != nil {
		if errors.Is(err, auth.ErrSelfAction) {
			respondError(w, http.StatusBadRequest, "Cannot deactivate your own account")
			return
		}
		fail(w, h.log, err, "Failed to deactivate user")
		return
	}

	h.audit.Log(r.Context(), actor(r), services.ActionUserDeactivated, map[string]any{
		"targetUserId": id,
		"username":     user.Username,
	})
	respond(w, http.StatusOK, user, "User deactivated successfully")
}
