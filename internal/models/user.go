package models

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

type User struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	PasswordHash        string     `json:"-"`
	Email               string     `json:"email"`
	Role                Role       `json:"role"`
	IsActive            bool       `json:"isActive"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	Permissions         []string   `json:"permissions,omitempty"`
}

// Locked reports whether the account is inside a lockout window at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

type UserStats struct {
	Total    int          `json:"total"`
	Active   int          `json:"active"`
	Inactive int          `json:"inactive"`
	ByRole   map[Role]int `json:"byRole"`
	Locked   int          `json:"locked"`
}

type AuditLog struct {
	ID        int64           `json:"id"`
	UserID    *int64          `json:"userId"`
	Username  string          `json:"username,omitempty"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	IPAddress string          `json:"ipAddress,omitempty"`
	CreatedAt time.Time       `json:"timestamp"`
}

type AuditPage struct {
	Logs    []AuditLog `json:"logs"`
	Total   int        `json:"total"`
	HasMore bool       `json:"hasMore"`
}

type AuditStats struct {
	TotalEntries   int            `json:"totalEntries"`
	Actions        map[string]int `json:"actions"`
	Users          map[string]int `json:"users"`
	RecentActivity int            `json:"recentActivity"`
	MostActiveUser string         `json:"mostActiveUser,omitempty"`
}
