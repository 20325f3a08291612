// Package ratelimit 固定窗口限流，用于连接和事件级别的防刷，不参与业务配额。
package ratelimit

import "time"

// Limiter 以 key（用户 ID 或 IP）为单位的窗口计数
type Limiter interface {
	// Allow 计数未达上限时放行并计数 +1
	Allow(key string) bool
	// Remaining 当前窗口剩余可用次数
	Remaining(key string) int
	// ResetTime 当前窗口结束时间，无记录时返回当前时间
	ResetTime(key string) time.Time
}
