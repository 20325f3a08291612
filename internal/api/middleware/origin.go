package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
)

// OriginCheck 会话 cookie 随跨站请求自动携带，写操作拒绝白名单之外的 Origin。
// 没有 Origin 头的请求（非浏览器客户端）放行。
func OriginCheck(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin != "" && !OriginAllowed(allowed, origin) {
			response.PermissionError(c, "不允许的来源")
			return
		}
		c.Next()
	}
}
