package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

const (
	UserIDKey   = "userID"
	IdentityKey = "identity"
)

// Auth 会话认证中间件，身份在请求开始时解析一次
func Auth(resolver service.SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.Resolve(c.Request)
		if err != nil {
			if !errors.Is(err, service.ErrSessionInvalid) && !errors.Is(err, service.ErrUserNotFound) {
				log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("resolve session failed")
			}
			response.AuthError(c, "请先登录")
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// OptionalAuth 可选认证中间件（不强制要求登录）
func OptionalAuth(resolver service.SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity, err := resolver.Resolve(c.Request); err == nil {
			setIdentity(c, identity)
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, identity *model.Identity) {
	c.Set(UserIDKey, identity.ID)
	c.Set(IdentityKey, identity)
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

// GetIdentity 从上下文获取完整身份
func GetIdentity(c *gin.Context) (*model.Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*model.Identity)
	return identity, ok
}
