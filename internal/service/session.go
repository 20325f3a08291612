package service

import (
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/pkg/jwt"
	"github.com/qs3c/guitar_dice_server/internal/repository"
)

var ErrSessionInvalid = errors.New("登录状态无效或已过期")

// SessionResolver 从请求中解析已登录身份，REST 与 websocket 握手共用
type SessionResolver interface {
	Resolve(r *http.Request) (*model.Identity, error)
}

// TokenSessionResolver 读取 session cookie 或 Bearer token 并校验 JWT
type TokenSessionResolver struct {
	userRepo *repository.UserRepository
	cfg      *config.SessionConfig
}

func NewSessionResolver(userRepo *repository.UserRepository, cfg *config.SessionConfig) *TokenSessionResolver {
	return &TokenSessionResolver{userRepo: userRepo, cfg: cfg}
}

func (s *TokenSessionResolver) Resolve(r *http.Request) (*model.Identity, error) {
	token := TokenFromRequest(r, s.cfg.CookieName)
	if token == "" {
		return nil, ErrSessionInvalid
	}

	claims, err := jwt.ParseToken(token, s.cfg.Secret)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	user, err := s.userRepo.GetByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return model.IdentityOf(user), nil
}

// TokenFromRequest cookie 优先，其次 Authorization: Bearer
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
