package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

// QuotaCheck 配额检查中间件，只读不扣减
func QuotaCheck(quotaService *service.QuotaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			return
		}

		hasQuota, err := quotaService.CanConsume(userID)
		if err != nil {
			response.ServerError(c, "配额检查失败")
			return
		}

		if !hasQuota {
			response.ErrorWithData(c, response.CodeQuotaExceeded, "今日掷骰次数已用完", &dto.LimitReached{LimitReached: true})
			return
		}

		c.Next()
	}
}
