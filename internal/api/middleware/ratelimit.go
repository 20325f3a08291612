package middleware

import (
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/guitar_dice_server/internal/pkg/ratelimit"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
)

// KeyFunc 限流计数的 key
type KeyFunc func(c *gin.Context) string

// RateLimit 超过窗口上限直接返回 429，不排队
func RateLimit(limiter ratelimit.Limiter, keyFunc KeyFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = UserOrIPKey
	}
	return func(c *gin.Context) {
		key := keyFunc(c)
		if !limiter.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(limiter.ResetTime(key))))
			response.RateLimitError(c, "")
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))
		c.Next()
	}
}

// UserOrIPKey 已登录按用户计数，否则按客户端 IP
func UserOrIPKey(c *gin.Context) string {
	if userID, ok := GetUserID(c); ok {
		return "user:" + strconv.FormatInt(userID, 10)
	}
	return "ip:" + ClientIP(c)
}

// IPKey 只按客户端 IP 计数
func IPKey(c *gin.Context) string {
	return "ip:" + ClientIP(c)
}

// ClientIP 优先取 X-Forwarded-For 中第一个合法 IP
func ClientIP(c *gin.Context) string {
	if xf := c.GetHeader("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	remote := c.Request.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

func retryAfterSeconds(reset time.Time) int {
	secs := int(math.Ceil(time.Until(reset).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
