package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/guitar_dice_server/internal/api/middleware"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

type ReferralHandler struct {
	referralService *service.ReferralService
}

func NewReferralHandler(referralService *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{
		referralService: referralService,
	}
}

// GetMine 我的邀请码与邀请统计
// GET /api/v1/referrals/me
func (h *ReferralHandler) GetMine(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	stats, err := h.referralService.GetStats(userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, stats)
}

// Redeem 填写邀请码
// POST /api/v1/referrals/redeem
func (h *ReferralHandler) Redeem(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.RedeemReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	referral, err := h.referralService.Redeem(c.Request.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReferralCodeInvalid), errors.Is(err, service.ErrSelfReferral):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrAlreadyReferred):
			response.DuplicateError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "邀请码已生效", referral)
}
