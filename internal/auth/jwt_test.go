package auth

import (
	"testing"
	"time"

	"asteriskgui/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	token, err := m.Issue(&models.User{ID: 7, Username: "ops", Role: models.RoleOperator})
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.ID)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, models.RoleOperator, claims.Role)
}

func TestTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	issuer := NewTokenManager("secret", time.Hour)
	token, err := issuer.Issue(&models.User{ID: 1, Username: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = NewTokenManager("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewTokenManager("secret", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshKeepsIdentity(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	token, err := m.Issue(&models.User{ID: 3, Username: "viewer", Role: models.RoleViewer})
	require.NoError(t, err)

	refreshed, err := m.Refresh(token)
	require.NoError(t, err)
	claims, err := m.Verify(refreshed)
	require.NoError(t, err)
	assert.Equal(t, int64(3), claims.ID)
	assert.Equal(t, models.RoleViewer, claims.Role)
}

func TestPermissionTable(t *testing.T) {
	assert.True(t, HasPermission(models.RoleAdmin, PermAuditDelete))
	assert.True(t, HasPermission(models.RoleOperator, PermSystemReload))
	assert.False(t, HasPermission(models.RoleOperator, PermSystemRestart))
	assert.False(t, HasPermission(models.RoleOperator, PermSIPDelete))
	assert.True(t, HasPermission(models.RoleViewer, PermConfigRead))
	assert.False(t, HasPermission(models.RoleViewer, PermSIPWrite))
	assert.False(t, HasPermission("ghost", PermSIPRead))
	assert.Len(t, Permissions(models.RoleAdmin), 19)

	perms := Permissions(models.RoleViewer)
	perms[0] = "mutated"
	assert.Equal(t, PermUsersRead, Permissions(models.RoleViewer)[0])
}
