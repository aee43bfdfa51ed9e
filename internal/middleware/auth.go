package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"asteriskgui/internal/auth"
	"asteriskgui/internal/models"
	"asteriskgui/internal/relay"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserLookup loads the account behind a token or session.
type UserLookup interface {
	GetByID(id int64) (*models.User, error)
}

type AuthMiddleware struct {
	tokens   *auth.TokenManager
	sessions *auth.SessionManager
	users    UserLookup
}

func NewAuthMiddleware(tokens *auth.TokenManager, sessions *auth.SessionManager, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
	}
}

// authFailure carries the message returned with a 401.
type authFailure string

func (f authFailure) Error() string { return string(f) }

const (
	errNoCredentials   authFailure = "Access token required"
	errBadToken        authFailure = "Invalid or expired token"
	errUnknownAccount  authFailure = "User not found"
	errAccountDisabled authFailure = "Account is disabled"
)

// Authenticate resolves the caller from a bearer token, then from the
// session cookie.
func (m *AuthMiddleware) Authenticate(r *http.Request) (*models.User, error) {
	if token := BearerToken(r); token != "" {
		return m.fromToken(token)
	}
	if m.sessions != nil {
		if userID, ok := m.sessions.GetUserID(r); ok {
			return m.load(userID)
		}
	}
	return nil, errNoCredentials
}

func (m *AuthMiddleware) fromToken(token string) (*models.User, error) {
	claims, err := m.tokens.Verify(token)
	if err != nil {
		return nil, errBadToken
	}
	return m.load(claims.ID)
}

func (m *AuthMiddleware) load(id int64) (*models.User, error) {
	user, err := m.users.GetByID(id)
	if err != nil {
		return nil, errUnknownAccount
	}
	if !user.IsActive {
		return nil, errAccountDisabled
	}
	return user, nil
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RelayAuth authenticates WebSocket upgrades. Browsers cannot set headers
// on an upgrade, so a ?token= parameter is accepted as well.
func (m *AuthMiddleware) RelayAuth(r *http.Request) (relay.Identity, bool) {
	var (
		user *models.User
		err  error
	)
	if token := r.URL.Query().Get("token"); token != "" && BearerToken(r) == "" {
		user, err = m.fromToken(token)
	} else {
		user, err = m.Authenticate(r)
	}
	if err != nil {
		return relay.Identity{}, false
	}
	return relay.Identity{UserID: user.ID, Username: user.Username}, true
}

// RequirePermission admits users holding any of perms.
func RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			for _, p := range perms {
				if auth.HasPermission(user.Role, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !slices.Contains(roles, user.Role) {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func GetUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(UserContextKey).(*models.User)
	return user
}
