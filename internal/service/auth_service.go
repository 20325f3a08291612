package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/email"
	"github.com/qs3c/guitar_dice_server/internal/pkg/jwt"
	"github.com/qs3c/guitar_dice_server/internal/pkg/oauth"
	"github.com/qs3c/guitar_dice_server/internal/repository"
)

var (
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrUsernameExists     = errors.New("用户名已被使用")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrGithubDisabled     = errors.New("未配置 GitHub 登录")
)

const (
	referralCodeLength   = 8
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // 去掉易混淆的 0/O/1/I
)

type AuthService struct {
	userRepo    *repository.UserRepository
	referrals   *ReferralService
	mailer      *email.Service
	cfg         *config.Config
	githubOAuth *oauth.GithubOAuth
}

func NewAuthService(
	userRepo *repository.UserRepository,
	referrals *ReferralService,
	mailer *email.Service,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		referrals: referrals,
		mailer:    mailer,
		cfg:       cfg,
		githubOAuth: oauth.NewGithubOAuth(
			cfg.OAuth.Github.ClientID,
			cfg.OAuth.Github.ClientSecret,
			cfg.OAuth.Github.RedirectURI,
		),
	}
}

// Register 用户注册，可同时填写邀请码
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))

	exists, err := s.userRepo.ExistsByEmail(emailAddr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	exists, err = s.userRepo.ExistsByUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameExists
	}

	// 邀请码先校验，避免账号创建后才发现填错
	code := NormalizeReferralCode(req.ReferralCode)
	if code != "" {
		ok, err := s.userRepo.ExistsByReferralCode(code)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrReferralCodeInvalid
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	passwordStr := string(hashedPassword)

	user := s.newUser(req.Username, req.DisplayName, emailAddr)
	user.PasswordHash = &passwordStr
	if err := s.createUser(user); err != nil {
		return nil, err
	}

	if code != "" {
		if _, err := s.referrals.Redeem(ctx, user.ID, code); err != nil {
			log.Warn().Err(err).Int64("user_id", user.ID).Msg("redeem referral on register failed")
		}
	}
	s.sendWelcome(user)

	return &dto.RegisterResponse{
		UserID: user.ID,
	}, nil
}

// Login 用户登录
func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// GitHub 注册的账号没有密码
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(user)
}

// GetUserByID 根据 ID 获取用户
func (s *AuthService) GetUserByID(id int64) (*model.User, error) {
	return s.userRepo.GetByID(id)
}

// GithubEnabled 是否可以使用 GitHub 登录
func (s *AuthService) GithubEnabled() bool {
	return s.githubOAuth.Enabled()
}

// GetGithubAuthURL 获取 GitHub 授权 URL
func (s *AuthService) GetGithubAuthURL(state string) string {
	return s.githubOAuth.GetAuthURL(state)
}

// GithubCallback 处理 GitHub OAuth 回调，referralCode 来自授权前保存的 state
func (s *AuthService) GithubCallback(ctx context.Context, code, referralCode string) (*dto.LoginResponse, error) {
	if !s.GithubEnabled() {
		return nil, ErrGithubDisabled
	}

	token, err := s.githubOAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	githubUser, err := s.githubOAuth.GetUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get github user: %w", err)
	}

	return s.LoginGithubUser(ctx, githubUser, referralCode)
}

// LoginGithubUser 查找或创建 GitHub 对应的本地用户并签发会话
func (s *AuthService) LoginGithubUser(ctx context.Context, githubUser *oauth.GithubUser, referralCode string) (*dto.LoginResponse, error) {
	githubID := githubUser.IDString()

	user, err := s.userRepo.GetByGithubID(githubID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if user == nil {
		emailAddr := strings.ToLower(strings.TrimSpace(githubUser.Email))
		// 邮箱已被密码账号占用时不绑定邮箱，避免冒领
		if emailAddr != "" {
			if exists, _ := s.userRepo.ExistsByEmail(emailAddr); exists {
				emailAddr = ""
			}
		}

		user = s.newUser(githubUser.Login, githubUser.DisplayName(), emailAddr)
		user.GithubID = &githubID
		user.AvatarURL = githubUser.AvatarURL

		// 确保用户名唯一
		if exists, _ := s.userRepo.ExistsByUsername(user.Username); exists {
			user.Username = fmt.Sprintf("%s_%d", githubUser.Login, githubUser.ID)
		}

		if err := s.createUser(user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}

		if code := NormalizeReferralCode(referralCode); code != "" {
			if _, err := s.referrals.Redeem(ctx, user.ID, code); err != nil {
				log.Warn().Err(err).Int64("user_id", user.ID).Msg("redeem referral on github signup failed")
			}
		}
		s.sendWelcome(user)
	}

	return s.issueSession(user)
}

func (s *AuthService) newUser(username, displayName, emailAddr string) *model.User {
	today := time.Now().UTC().Format(dayLayout)
	user := &model.User{
		Username:           username,
		DisplayName:        strings.TrimSpace(displayName),
		DiceRollsLimit:     s.cfg.Quota.DailyRollLimit,
		RollsResetDate:     &today,
		SubscriptionStatus: model.SubscriptionFree,
	}
	if emailAddr != "" {
		user.Email = &emailAddr
		user.IsTestUser = s.isTestEmail(emailAddr)
	}
	return user
}

// createUser 生成唯一邀请码后写入
func (s *AuthService) createUser(user *model.User) error {
	code, err := s.generateReferralCode()
	if err != nil {
		return err
	}
	user.ReferralCode = &code
	return s.userRepo.Create(user)
}

func (s *AuthService) generateReferralCode() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := randomCode(referralCodeLength)
		if err != nil {
			return "", err
		}
		exists, err := s.userRepo.ExistsByReferralCode(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("failed to generate unique referral code")
}

func (s *AuthService) isTestEmail(emailAddr string) bool {
	for _, e := range s.cfg.Quota.TestUserEmails {
		if strings.EqualFold(strings.TrimSpace(e), emailAddr) {
			return true
		}
	}
	return false
}

func (s *AuthService) issueSession(user *model.User) (*dto.LoginResponse, error) {
	token, err := jwt.GenerateToken(user.ID, s.cfg.Session.Secret, s.cfg.Session.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user),
	}, nil
}

func (s *AuthService) sendWelcome(user *model.User) {
	if !s.mailer.Enabled() || user.Email == nil || user.ReferralCode == nil {
		return
	}
	if err := s.mailer.SendWelcome(*user.Email, user.Name(), *user.ReferralCode); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("send welcome email failed")
	}
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = referralCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func buildUserInfo(user *model.User) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:                 user.ID,
		Username:           user.Username,
		DisplayName:        user.Name(),
		AvatarURL:          user.AvatarURL,
		SubscriptionStatus: user.SubscriptionStatus,
		IsTestUser:         user.IsTestUser,
		CreatedAt:          user.CreatedAt.UTC().Format(time.RFC3339),
	}

	if user.Email != nil {
		info.Email = *user.Email
	}
	if user.ReferralCode != nil {
		info.ReferralCode = *user.ReferralCode
	}
	if user.SubscriptionExpiry != nil {
		info.SubscriptionExpiry = user.SubscriptionExpiry.UTC().Format(time.RFC3339)
	}

	return info
}
