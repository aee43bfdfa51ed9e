package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSetGetClear(t *testing.T) {
	m := NewSessionManager("0123456789abcdef0123456789abcdef", 3600, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	require.NoError(t, m.SetUser(rec, req, 42, "admin"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionName, cookies[0].Name)

	next := httptest.NewRequest(http.MethodGet, "/ws", nil)
	next.AddCookie(cookies[0])
	id, ok := m.GetUserID(next)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	cleared := httptest.NewRecorder()
	require.NoError(t, m.Clear(cleared, next))
	out := cleared.Result().Cookies()
	require.Len(t, out, 1)
	assert.Negative(t, out[0].MaxAge)

	_, ok = m.GetUserID(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.False(t, ok)
}
