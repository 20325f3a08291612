package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/pkg/jwt"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/repository"
	"github.com/qs3c/guitar_dice_server/internal/service"
	"github.com/qs3c/guitar_dice_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSessionSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func setupResolver(t *testing.T) (service.SessionResolver, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := config.Default()
	cfg.Session.Secret = testSessionSecret

	resolver := service.NewSessionResolver(repository.NewUserRepository(db), &cfg.Session)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return resolver, db, cleanup
}

func authRouter(resolver service.SessionResolver) *gin.Engine {
	router := gin.New()
	router.Use(Auth(resolver))
	router.GET("/test", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		identity, _ := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "display_name": identity.DisplayName})
	})
	return router
}

func TestAuth_BearerToken(t *testing.T) {
	resolver, db, cleanup := setupResolver(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	token, err := jwt.GenerateToken(user.ID, testSessionSecret, 24)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	authRouter(resolver).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(user.ID), body["user_id"])
	assert.Equal(t, user.DisplayName, body["display_name"])
}

func TestAuth_SessionCookie(t *testing.T) {
	resolver, db, cleanup := setupResolver(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	token, err := jwt.GenerateToken(user.ID, testSessionSecret, 24)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: config.Default().Session.CookieName, Value: token})
	w := httptest.NewRecorder()
	authRouter(resolver).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Rejections(t *testing.T) {
	resolver, _, cleanup := setupResolver(t)
	defer cleanup()

	otherSecret, err := jwt.GenerateToken(1, "another-secret", 24)
	require.NoError(t, err)
	unknownUser, err := jwt.GenerateToken(99999, testSessionSecret, 24)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "some-token-without-bearer"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + otherSecret},
		{"unknown user", "Bearer " + unknownUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			authRouter(resolver).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
		})
	}
}

type staticResolver struct {
	identity *model.Identity
}

func (r staticResolver) Resolve(req *http.Request) (*model.Identity, error) {
	if r.identity == nil {
		return nil, service.ErrSessionInvalid
	}
	return r.identity, nil
}

func TestOptionalAuth(t *testing.T) {
	handler := func(c *gin.Context) {
		_, ok := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	}

	for _, tt := range []struct {
		name     string
		resolver staticResolver
		want     bool
	}{
		{"anonymous", staticResolver{}, false},
		{"signed in", staticResolver{identity: &model.Identity{ID: 7, DisplayName: "Ada"}}, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(OptionalAuth(tt.resolver))
			router.GET("/test", handler)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			var body map[string]bool
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["authenticated"])
		})
	}
}

func TestGetUserID_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetUserID(c)
	assert.False(t, ok)

	_, ok = GetIdentity(c)
	assert.False(t, ok)
}
