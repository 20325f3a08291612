package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// extendExpiryExpr 订阅到期时间 = max(now, coalesce(expiry, now)) + months，
// 日期运算交给数据库完成，不同驱动语法不同。
func extendExpiryExpr(db *gorm.DB, now time.Time, months int) clause.Expr {
	now = now.UTC()

	switch db.Dialector.Name() {
	case "postgres":
		return gorm.Expr(
			"GREATEST(COALESCE(subscription_expiry, ?), ?) + (? * INTERVAL '1 month')",
			now, now, months)
	case "sqlite":
		return gorm.Expr(
			fmt.Sprintf("datetime(MAX(datetime(COALESCE(subscription_expiry, ?)), datetime(?)), '+%d months')", months),
			now, now)
	default:
		return gorm.Expr(
			"DATE_ADD(GREATEST(COALESCE(subscription_expiry, ?), ?), INTERVAL ? MONTH)",
			now, now, months)
	}
}
