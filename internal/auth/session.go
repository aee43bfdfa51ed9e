package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	SessionName   = "asteriskgui-session"
	SessionUserID = "user_id"
	SessionRole   = "role"
)

// SessionManager keeps the browser session cookie issued at login. It lets
// the WebSocket upgrade authenticate without a bearer header.
type SessionManager struct {
	store *sessions.CookieStore
}

func NewSessionManager(secret string, maxAge int, secure bool) *SessionManager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

func (m *SessionManager) Get(r *http.Request) (*sessions.Session, error) {
	return m.store.Get(r, SessionName)
}

func (m *SessionManager) SetUser(w http.ResponseWriter, r *http.Request, userID int64, role string) error {
	session, err := m.Get(r)
	if err != nil {
		// A cookie signed with an old secret still yields a fresh session.
		session, _ = m.store.New(r, SessionName)
	}

	session.Values[SessionUserID] = userID
	session.Values[SessionRole] = role
	return session.Save(r, w)
}

func (m *SessionManager) GetUserID(r *http.Request) (int64, bool) {
	session, err := m.Get(r)
	if err != nil {
		return 0, false
	}

	userID, ok := session.Values[SessionUserID].(int64)
	return userID, ok
}

func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	session, err := m.Get(r)
	if err != nil {
		session, _ = m.store.New(r, SessionName)
	}

	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1

	return session.Save(r, w)
}
