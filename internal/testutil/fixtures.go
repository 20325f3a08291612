package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/internal/model"
)

var fixtureSeq int64

func nextSeq() int64 {
	return atomic.AddInt64(&fixtureSeq, 1)
}

// Today 与 QuotaService 相同的日期格式（UTC）
func Today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// TestUser 创建测试用户，默认今日配额 5 次且已完成当日重置
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	seq := nextSeq()
	email := fmt.Sprintf("test_%d_%d@example.com", time.Now().UnixNano(), seq)
	code := fmt.Sprintf("REF%06d", seq)
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	today := Today()
	user := &model.User{
		Username:           fmt.Sprintf("testuser_%d", seq),
		Email:              &email,
		PasswordHash:       &passwordHash,
		DisplayName:        fmt.Sprintf("Tester %d", seq),
		ReferralCode:       &code,
		DiceRollsUsed:      0,
		DiceRollsLimit:     5,
		RollsResetDate:     &today,
		SubscriptionStatus: model.SubscriptionFree,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// gorm 创建时会跳过零值字段而采用列默认值，这里显式回写
	if err := db.Model(user).Select("dice_rolls_used", "dice_rolls_limit", "extra_roll_tokens", "is_test_user", "ads_watched_count").
		Updates(user).Error; err != nil {
		t.Fatalf("Failed to apply test user fields: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = &email
	}
}

// WithPasswordHash 设置密码哈希
func WithPasswordHash(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithQuotaUsed 设置已使用次数
func WithQuotaUsed(used int) func(*model.User) {
	return func(u *model.User) {
		u.DiceRollsUsed = used
	}
}

// WithRollLimit 设置每日基础次数
func WithRollLimit(limit int) func(*model.User) {
	return func(u *model.User) {
		u.DiceRollsLimit = limit
	}
}

// WithTokens 设置奖励次数
func WithTokens(tokens int) func(*model.User) {
	return func(u *model.User) {
		u.ExtraRollTokens = tokens
	}
}

// WithResetDate 设置上次重置日期，nil 表示从未重置
func WithResetDate(date *string) func(*model.User) {
	return func(u *model.User) {
		u.RollsResetDate = date
	}
}

// WithAdsWatched 设置当日广告观看数
func WithAdsWatched(count int, date string) func(*model.User) {
	return func(u *model.User) {
		u.AdsWatchedCount = count
		u.AdsWatchDate = &date
	}
}

// WithTestUser 标记为测试用户
func WithTestUser() func(*model.User) {
	return func(u *model.User) {
		u.IsTestUser = true
	}
}

// WithSubscription 设置订阅状态
func WithSubscription(status string, expiry *time.Time) func(*model.User) {
	return func(u *model.User) {
		u.SubscriptionStatus = status
		u.SubscriptionExpiry = expiry
	}
}

// WithReferralCode 设置邀请码
func WithReferralCode(code string) func(*model.User) {
	return func(u *model.User) {
		u.ReferralCode = &code
	}
}

// TestReferral 创建邀请记录
func TestReferral(t *testing.T, db *gorm.DB, referrer, referee *model.User) *model.Referral {
	t.Helper()

	code := ""
	if referrer.ReferralCode != nil {
		code = *referrer.ReferralCode
	}
	referral := &model.Referral{
		ReferrerUserID: referrer.ID,
		RefereeUserID:  referee.ID,
		ReferralCode:   code,
		SignupDate:     time.Now().UTC(),
	}

	if err := db.Create(referral).Error; err != nil {
		t.Fatalf("Failed to create test referral: %v", err)
	}

	return referral
}

// TestTextMessage 创建文字消息
func TestTextMessage(t *testing.T, db *gorm.DB, userID int64, roomID, content string) *model.ChatMessage {
	t.Helper()

	msg := &model.ChatMessage{
		RoomID:  roomID,
		UserID:  userID,
		Content: &content,
	}

	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("Failed to create test message: %v", err)
	}

	return msg
}

// TestAudioMessage 创建语音消息
func TestAudioMessage(t *testing.T, db *gorm.DB, userID int64, roomID, audioURL string, duration int) *model.ChatMessage {
	t.Helper()

	mime := "audio/wav"
	msg := &model.ChatMessage{
		RoomID:           roomID,
		UserID:           userID,
		AudioURL:         &audioURL,
		AudioDurationSec: &duration,
		MimeType:         &mime,
	}

	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("Failed to create test audio message: %v", err)
	}

	return msg
}
