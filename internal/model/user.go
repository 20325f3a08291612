package model

import (
	"time"
)

const (
	SubscriptionActive = "active"
	SubscriptionFree   = "free"
)

type User struct {
	ID           int64   `gorm:"primaryKey" json:"id"`
	Username     string  `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email        *string `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	PasswordHash *string `gorm:"size:255" json:"-"`
	DisplayName  string  `gorm:"size:100" json:"display_name"`
	AvatarURL    string  `gorm:"size:500" json:"avatar_url"`
	GithubID     *string `gorm:"column:github_id;size:50;uniqueIndex" json:"-"`
	ReferralCode *string `gorm:"size:20;uniqueIndex" json:"referral_code,omitempty"`

	// 每日配额（Quota Ledger 独占写入）
	DiceRollsUsed   int     `gorm:"not null;default:0" json:"dice_rolls_used"`
	DiceRollsLimit  int     `gorm:"not null;default:5" json:"dice_rolls_limit"`
	ExtraRollTokens int     `gorm:"not null;default:0" json:"extra_roll_tokens"`
	RollsResetDate  *string `gorm:"size:10" json:"rolls_reset_date,omitempty"` // YYYY-MM-DD (UTC)
	AdsWatchedCount int     `gorm:"not null;default:0" json:"ads_watched_count"`
	AdsWatchDate    *string `gorm:"size:10" json:"ads_watch_date,omitempty"` // YYYY-MM-DD (UTC)
	IsTestUser      bool    `gorm:"not null;default:false" json:"is_test_user"`

	SubscriptionStatus    string     `gorm:"size:20;not null;default:free" json:"subscription_status"`
	SubscriptionExpiry    *time.Time `json:"subscription_expiry,omitempty"`
	ReferralRewardsEarned int        `gorm:"not null;default:0" json:"referral_rewards_earned"`

	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsPremium 订阅有效期内的付费用户
func (u *User) IsPremium(now time.Time) bool {
	return u.SubscriptionStatus == SubscriptionActive &&
		u.SubscriptionExpiry != nil &&
		u.SubscriptionExpiry.After(now)
}

// Name 展示名，未设置时回退到用户名
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
