package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	var user model.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByGithubID(githubID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("github_id = ?", githubID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByReferralCode(code string) (*model.User, error) {
	var user model.User
	err := r.db.Where("referral_code = ?", code).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *UserRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *UserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ExistsByUsername(username string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ExistsByReferralCode(code string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("referral_code = ?", code).Count(&count).Error
	return count > 0, err
}

// 以下配额相关写入都是带条件的单条 UPDATE，返回受影响行数由调用方判断结果。
// 不做先读后写，并发请求之间只依赖数据库的行级原子性。

// ResetQuotaIfStale 当日首次访问时清零已用次数，同一天内重复调用不会生效
func (r *UserRepository) ResetQuotaIfStale(id int64, today string) (int64, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ? AND (rolls_reset_date IS NULL OR rolls_reset_date < ?)", id, today).
		Updates(map[string]interface{}{
			"dice_rolls_used":  0,
			"rolls_reset_date": today,
		})
	return result.RowsAffected, result.Error
}

// ResetStaleQuotas 批量清零所有过期配额
func (r *UserRepository) ResetStaleQuotas(today string) (int64, error) {
	result := r.db.Model(&model.User{}).
		Where("rolls_reset_date IS NULL OR rolls_reset_date < ?", today).
		Updates(map[string]interface{}{
			"dice_rolls_used":  0,
			"rolls_reset_date": today,
		})
	return result.RowsAffected, result.Error
}

// ConsumeBaseRoll 消耗一次每日基础次数
func (r *UserRepository) ConsumeBaseRoll(id int64) (int64, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ? AND dice_rolls_used < dice_rolls_limit", id).
		Update("dice_rolls_used", gorm.Expr("dice_rolls_used + 1"))
	return result.RowsAffected, result.Error
}

// ConsumeBonusToken 基础次数用完后消耗一个奖励次数
func (r *UserRepository) ConsumeBonusToken(id int64) (int64, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ? AND dice_rolls_used >= dice_rolls_limit AND extra_roll_tokens > 0", id).
		Updates(map[string]interface{}{
			"dice_rolls_used":   gorm.Expr("dice_rolls_used + 1"),
			"extra_roll_tokens": gorm.Expr("extra_roll_tokens - 1"),
		})
	return result.RowsAffected, result.Error
}

// GrantBonusToken 观看广告奖励一次，跨天后观看计数从 1 重新开始。
// SET 子句顺序固定：MySQL 按从左到右求值，计数必须先于日期更新。
func (r *UserRepository) GrantBonusToken(id int64, today string, maxPerDay int, now time.Time) (int64, error) {
	result := r.db.Exec(`UPDATE users SET
			ads_watched_count = CASE WHEN ads_watch_date IS NULL OR ads_watch_date < ? THEN 1 ELSE ads_watched_count + 1 END,
			extra_roll_tokens = extra_roll_tokens + 1,
			ads_watch_date = ?,
			updated_at = ?
		WHERE id = ? AND (ads_watch_date IS NULL OR ads_watch_date < ? OR ads_watched_count < ?)`,
		today, today, now, id, today, maxPerDay)
	return result.RowsAffected, result.Error
}

// TouchLastActive 更新最近活跃时间
func (r *UserRepository) TouchLastActive(id int64, now time.Time) (int64, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ?", id).
		Update("last_active_at", now)
	return result.RowsAffected, result.Error
}

// ExtendSubscription 在 max(now, 当前到期时间) 基础上延长订阅，并累计奖励次数
func (r *UserRepository) ExtendSubscription(id int64, now time.Time, months int) (int64, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"subscription_expiry":     extendExpiryExpr(r.db, now, months),
			"subscription_status":     model.SubscriptionActive,
			"referral_rewards_earned": gorm.Expr("referral_rewards_earned + 1"),
		})
	return result.RowsAffected, result.Error
}
