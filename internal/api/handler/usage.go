package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/api/middleware"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

type UsageHandler struct {
	quotaService *service.QuotaService
	cfg          *config.QuotaConfig
}

func NewUsageHandler(quotaService *service.QuotaService, cfg *config.QuotaConfig) *UsageHandler {
	return &UsageHandler{
		quotaService: quotaService,
		cfg:          cfg,
	}
}

// GetStatus 获取当前用户的掷骰配额
// GET /api/v1/usage/status
func (h *UsageHandler) GetStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	status, err := h.quotaService.GetStatus(userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, status)
}

// IncrementDiceRoll 掷骰一次
// POST /api/v1/usage/increment-dice-roll
func (h *UsageHandler) IncrementDiceRoll(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	result, err := h.quotaService.Consume(userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if result.Denied {
		response.ErrorWithData(c, response.CodeQuotaExceeded, "今日掷骰次数已用完", &dto.LimitReached{LimitReached: true})
		return
	}

	response.Success(c, result.Status)
}

// WatchAdReward 观看广告奖励一次掷骰。
// 客户端上报无法证明广告真的看完，开关打开前始终返回 503。
// POST /api/v1/usage/watch-ad-reward
func (h *UsageHandler) WatchAdReward(c *gin.Context) {
	if !h.cfg.AdRewardsEnabled {
		response.UnavailableError(c, "广告奖励暂时关闭", &dto.AdRewardDisabled{Success: false, TemporarilyDisabled: true})
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	status, err := h.quotaService.GrantBonusToken(userID)
	if err != nil {
		if errors.Is(err, service.ErrAdLimitReached) {
			response.RateLimitError(c, err.Error())
			return
		}
		h.handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "奖励已发放", status)
}

func (h *UsageHandler) handleError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrUserNotFound) {
		response.NotFoundError(c, err.Error())
		return
	}
	response.ServerError(c, "")
}
