package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/repository"
	"github.com/qs3c/guitar_dice_server/internal/service"
	"github.com/qs3c/guitar_dice_server/internal/testutil"
)

func setupQuotaService(t *testing.T) (*service.QuotaService, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	quotaService := service.NewQuotaService(repository.NewUserRepository(db), config.Default())

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return quotaService, db, cleanup
}

func quotaRouter(quotaService *service.QuotaService, userID int64) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID > 0 {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	})
	router.Use(QuotaCheck(quotaService))
	router.POST("/roll", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	return router
}

func TestQuotaCheck_Success(t *testing.T) {
	quotaService, db, cleanup := setupQuotaService(t)
	defer cleanup()

	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(0))

	w := httptest.NewRecorder()
	quotaRouter(quotaService, user.ID).ServeHTTP(w, httptest.NewRequest("POST", "/roll", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuotaCheck_Exhausted(t *testing.T) {
	quotaService, db, cleanup := setupQuotaService(t)
	defer cleanup()

	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(5))

	w := httptest.NewRecorder()
	quotaRouter(quotaService, user.ID).ServeHTTP(w, httptest.NewRequest("POST", "/roll", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeQuotaExceeded, resp.Code)
	assert.Equal(t, map[string]interface{}{"limit_reached": true}, resp.Data)
}

func TestQuotaCheck_TokensLeft(t *testing.T) {
	quotaService, db, cleanup := setupQuotaService(t)
	defer cleanup()

	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(5), testutil.WithTokens(1))

	w := httptest.NewRecorder()
	quotaRouter(quotaService, user.ID).ServeHTTP(w, httptest.NewRequest("POST", "/roll", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuotaCheck_TestUserBypasses(t *testing.T) {
	quotaService, db, cleanup := setupQuotaService(t)
	defer cleanup()

	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(5), testutil.WithTestUser())

	w := httptest.NewRecorder()
	quotaRouter(quotaService, user.ID).ServeHTTP(w, httptest.NewRequest("POST", "/roll", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuotaCheck_NoUser(t *testing.T) {
	quotaService, _, cleanup := setupQuotaService(t)
	defer cleanup()

	w := httptest.NewRecorder()
	quotaRouter(quotaService, 0).ServeHTTP(w, httptest.NewRequest("POST", "/roll", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuotaCheck_UnknownUser(t *testing.T) {
	quotaService, _, cleanup := setupQuotaService(t)
	defer cleanup()

	w := httptest.NewRecorder()
	quotaRouter(quotaService, 424242).ServeHTTP(w, httptest.NewRequest("POST", "/roll", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
