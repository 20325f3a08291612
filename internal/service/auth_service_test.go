package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/email"
	"github.com/qs3c/guitar_dice_server/internal/pkg/jwt"
	"github.com/qs3c/guitar_dice_server/internal/pkg/oauth"
	"github.com/qs3c/guitar_dice_server/internal/repository"
	"github.com/qs3c/guitar_dice_server/internal/testutil"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Session.Secret = "test-secret-key-for-testing"
	cfg.Session.ExpireHours = 24
	cfg.Quota.TestUserEmails = []string{"QA@guitardice.test"}
	cfg.OAuth.Github = config.GithubOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURI:  "http://localhost:8080/callback",
	}
	return cfg
}

func setupAuthService(t *testing.T) (*AuthService, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := testConfig()
	userRepo := repository.NewUserRepository(db)
	mailer := email.NewService(&cfg.Email)
	referrals := NewReferralService(repository.NewReferralRepository(db), userRepo, nil, mailer, cfg)

	service := NewAuthService(userRepo, referrals, mailer, cfg)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return service, db, cleanup
}

func TestAuthService_Register_Success(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	req := &dto.RegisterRequest{
		Email:       "NewUser@Example.com",
		Username:    "newuser",
		Password:    "password123",
		DisplayName: "New User",
	}

	resp, err := service.Register(context.Background(), req)
	require.NoError(t, err)
	require.NotZero(t, resp.UserID)

	user := reloadUser(t, db, resp.UserID)
	require.NotNil(t, user.Email)
	assert.Equal(t, "newuser@example.com", *user.Email)
	assert.Equal(t, "New User", user.DisplayName)
	assert.Equal(t, 5, user.DiceRollsLimit)
	assert.False(t, user.IsTestUser)
	require.NotNil(t, user.ReferralCode)
	assert.Len(t, *user.ReferralCode, 8)
	require.NotNil(t, user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte("password123")))
}

func TestAuthService_Register_TestUserEmail(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	resp, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:    "qa@guitardice.test",
		Username: "qa",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.True(t, reloadUser(t, db, resp.UserID).IsTestUser)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	service, _, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:    "duplicate@example.com",
		Username: "user1",
		Password: "password123",
	})
	require.NoError(t, err)

	_, err = service.Register(context.Background(), &dto.RegisterRequest{
		Email:    "duplicate@example.com",
		Username: "user2",
		Password: "password123",
	})
	assert.Equal(t, ErrEmailExists, err)
}

func TestAuthService_Register_DuplicateUsername(t *testing.T) {
	service, _, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:    "user1@example.com",
		Username: "sameusername",
		Password: "password123",
	})
	require.NoError(t, err)

	_, err = service.Register(context.Background(), &dto.RegisterRequest{
		Email:    "user2@example.com",
		Username: "sameusername",
		Password: "password123",
	})
	assert.Equal(t, ErrUsernameExists, err)
}

func TestAuthService_Register_WithReferralCode(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	referrer := testutil.TestUser(t, db, testutil.WithReferralCode("FRIEND88"))

	resp, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:        "invited@example.com",
		Username:     "invited",
		Password:     "password123",
		ReferralCode: "friend88",
	})
	require.NoError(t, err)

	referral, err := repository.NewReferralRepository(db).GetByReferee(resp.UserID)
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, referral.ReferrerUserID)
}

func TestAuthService_Register_InvalidReferralCode(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:        "invited@example.com",
		Username:     "invited",
		Password:     "password123",
		ReferralCode: "MISSING1",
	})
	assert.ErrorIs(t, err, ErrReferralCodeInvalid)

	var count int64
	require.NoError(t, db.Model(&model.User{}).Where("username = ?", "invited").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestAuthService_Login_Success(t *testing.T) {
	service, _, cleanup := setupAuthService(t)
	defer cleanup()

	reg, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:    "login@example.com",
		Username: "loginuser",
		Password: "password123",
	})
	require.NoError(t, err)

	resp, err := service.Login(&dto.LoginRequest{Email: "LOGIN@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, resp.User.ID)
	assert.Equal(t, "loginuser", resp.User.Username)

	claims, err := jwt.ParseToken(resp.Token, "test-secret-key-for-testing")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, claims.UserID)
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := service.Register(context.Background(), &dto.RegisterRequest{
		Email:    "login@example.com",
		Username: "loginuser",
		Password: "password123",
	})
	require.NoError(t, err)

	_, err = service.Login(&dto.LoginRequest{Email: "login@example.com", Password: "wrong-password"})
	assert.Equal(t, ErrInvalidCredentials, err)

	_, err = service.Login(&dto.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.Equal(t, ErrInvalidCredentials, err)

	// GitHub 账号没有密码
	githubOnly := testutil.TestUser(t, db, testutil.WithEmail("gh@example.com"))
	require.NoError(t, db.Model(githubOnly).Update("password_hash", nil).Error)
	_, err = service.Login(&dto.LoginRequest{Email: "gh@example.com", Password: "password123"})
	assert.Equal(t, ErrInvalidCredentials, err)
}

func TestAuthService_LoginGithubUser_CreatesOnce(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	ghUser := &oauth.GithubUser{
		ID:        4242,
		Login:     "strummer",
		Name:      "Joe Strummer",
		Email:     "joe@example.com",
		AvatarURL: "https://avatars.example.com/u/4242",
	}

	first, err := service.LoginGithubUser(context.Background(), ghUser, "")
	require.NoError(t, err)
	assert.Equal(t, "strummer", first.User.Username)
	assert.Equal(t, "Joe Strummer", first.User.DisplayName)
	assert.Equal(t, "joe@example.com", first.User.Email)
	assert.NotEmpty(t, first.User.ReferralCode)

	second, err := service.LoginGithubUser(context.Background(), ghUser, "")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)

	var count int64
	require.NoError(t, db.Model(&model.User{}).Where("github_id = ?", "4242").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAuthService_LoginGithubUser_Collisions(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	testutil.TestUser(t, db, testutil.WithUsername("taken"), testutil.WithEmail("taken@example.com"))

	resp, err := service.LoginGithubUser(context.Background(), &oauth.GithubUser{
		ID:    77,
		Login: "taken",
		Email: "taken@example.com",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "taken_77", resp.User.Username)
	// 邮箱被占用时不绑定
	assert.Empty(t, resp.User.Email)
}

func TestAuthService_LoginGithubUser_RedeemsReferral(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	referrer := testutil.TestUser(t, db, testutil.WithReferralCode("GH2024"))

	resp, err := service.LoginGithubUser(context.Background(), &oauth.GithubUser{ID: 9, Login: "newbie"}, "gh2024")
	require.NoError(t, err)

	referral, err := repository.NewReferralRepository(db).GetByReferee(resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, referral.ReferrerUserID)
}

func TestAuthService_GetUserByID(t *testing.T) {
	service, db, cleanup := setupAuthService(t)
	defer cleanup()

	user := testutil.TestUser(t, db, testutil.WithUsername("findme"))

	found, err := service.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "findme", found.Username)

	_, err = service.GetUserByID(99999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAuthService_GetGithubAuthURL(t *testing.T) {
	service, _, cleanup := setupAuthService(t)
	defer cleanup()

	assert.True(t, service.GithubEnabled())
	url := service.GetGithubAuthURL("test-state")
	assert.Contains(t, url, "client_id=test-client-id")
	assert.Contains(t, url, "state=test-state")
}

func TestAuthService_GithubCallback_Disabled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	cfg := config.Default()
	userRepo := repository.NewUserRepository(db)
	service := NewAuthService(userRepo, nil, nil, cfg)

	_, err := service.GithubCallback(context.Background(), "code", "")
	assert.ErrorIs(t, err, ErrGithubDisabled)
}

func TestRandomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := randomCode(referralCodeLength)
		require.NoError(t, err)
		assert.Len(t, code, referralCodeLength)
		for _, r := range code {
			assert.Contains(t, referralCodeAlphabet, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
}
