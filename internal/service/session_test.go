package service

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/pkg/jwt"
	"github.com/qs3c/guitar_dice_server/internal/repository"
	"github.com/qs3c/guitar_dice_server/internal/testutil"
)

func TestTokenSessionResolver_Resolve(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	cfg := &config.SessionConfig{CookieName: "gd_session", Secret: "session-secret"}
	resolver := NewSessionResolver(repository.NewUserRepository(db), cfg)

	user := testutil.TestUser(t, db, testutil.WithUsername("picker"))
	require.NoError(t, db.Model(user).Update("avatar_url", "https://cdn.example.com/a.png").Error)
	token, err := jwt.GenerateToken(user.ID, cfg.Secret, 1)
	require.NoError(t, err)

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "gd_session", Value: token})

		identity, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, user.ID, identity.ID)
		assert.Equal(t, user.DisplayName, identity.DisplayName)
		assert.Equal(t, "https://cdn.example.com/a.png", identity.AvatarURL)
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		identity, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, user.ID, identity.ID)
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := resolver.Resolve(req)
		assert.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		forged, err := jwt.GenerateToken(user.ID, "other-secret", 1)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		_, err = resolver.Resolve(req)
		assert.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("expired cookie", func(t *testing.T) {
		expired, err := jwt.GenerateToken(user.ID, cfg.Secret, 0)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "gd_session", Value: expired})
		_, err = resolver.Resolve(req)
		assert.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghostToken, err := jwt.GenerateToken(99999, cfg.Secret, 1)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "gd_session", Value: ghostToken})
		_, err = resolver.Resolve(req)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(req, "gd_session"))

	req.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(req, "gd_session"))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(req, "gd_session"))

	// cookie 优先
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: "gd_session", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(req, "gd_session"))
}
