package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/api/middleware"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/oauth"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	stateStore  *oauth.StateStore
	cfg         *config.Config
}

// NewAuthHandler stateStore 为 nil 时（未配置 Redis）GitHub 登录不可用
func NewAuthHandler(authService *service.AuthService, stateStore *oauth.StateStore, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		stateStore:  stateStore,
		cfg:         cfg,
	}
}

// Register 用户注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailExists):
			response.DuplicateError(c, err.Error())
		case errors.Is(err, service.ErrUsernameExists):
			response.DuplicateError(c, err.Error())
		case errors.Is(err, service.ErrReferralCodeInvalid):
			response.ParamError(c, err.Error())
		default:
			log.Error().Err(err).Msg("register failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "注册成功", resp)
}

// Login 用户登录，token 同时写入 session cookie
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.AuthError(c, err.Error())
		default:
			log.Error().Err(err).Msg("login failed")
			response.ServerError(c, "")
		}
		return
	}

	h.setSessionCookie(c, resp.Token)
	response.SuccessWithMessage(c, "登录成功", resp)
}

// Logout 清除 session cookie
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Session.CookieName, "", -1, "/", "", h.cfg.Session.Secure, true)
	response.SuccessWithMessage(c, "已退出登录", nil)
}

// GithubAuth 跳转到 GitHub 授权页
// GET /api/v1/auth/github?redirect_uri=&referral_code=
func (h *AuthHandler) GithubAuth(c *gin.Context) {
	if !h.authService.GithubEnabled() || h.stateStore == nil {
		response.UnavailableError(c, service.ErrGithubDisabled.Error(), nil)
		return
	}

	state, err := h.stateStore.GenerateState(c.Request.Context(), &oauth.StateData{
		RedirectURI:  h.safeRedirect(c.Query("redirect_uri")),
		ReferralCode: service.NormalizeReferralCode(c.Query("referral_code")),
	})
	if err != nil {
		log.Error().Err(err).Msg("generate oauth state failed")
		response.ServerError(c, "")
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, h.authService.GetGithubAuthURL(state))
}

// GithubCallback GitHub 授权回调
// GET /api/v1/auth/github/callback?code=&state=
func (h *AuthHandler) GithubCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "缺少授权码")
		return
	}
	if h.stateStore == nil {
		response.UnavailableError(c, service.ErrGithubDisabled.Error(), nil)
		return
	}

	stateData, err := h.stateStore.ValidateState(c.Request.Context(), c.Query("state"))
	if err != nil {
		if errors.Is(err, oauth.ErrEmptyState) || errors.Is(err, oauth.ErrInvalidState) {
			response.ParamError(c, "授权已过期，请重新登录")
			return
		}
		log.Error().Err(err).Msg("validate oauth state failed")
		response.ServerError(c, "")
		return
	}

	resp, err := h.authService.GithubCallback(c.Request.Context(), code, stateData.ReferralCode)
	if err != nil {
		if errors.Is(err, service.ErrGithubDisabled) {
			response.UnavailableError(c, err.Error(), nil)
			return
		}
		log.Error().Err(err).Msg("github callback failed")
		response.AuthError(c, "GitHub 登录失败")
		return
	}

	h.setSessionCookie(c, resp.Token)
	if stateData.RedirectURI != "" {
		c.Redirect(http.StatusFound, stateData.RedirectURI)
		return
	}
	response.SuccessWithMessage(c, "登录成功", resp)
}

// GetMe 当前登录身份
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	response.Success(c, identity)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Session.CookieName, token, h.cfg.Session.ExpireHours*3600, "/", "", h.cfg.Session.Secure, true)
}

// safeRedirect 只允许站内路径或白名单内的前端地址，防止开放重定向
func (h *AuthHandler) safeRedirect(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.HasPrefix(raw, "/\\") {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	if middleware.OriginAllowed(h.cfg.CORS.AllowedOrigins, u.Scheme+"://"+u.Host) {
		return raw
	}
	return ""
}
