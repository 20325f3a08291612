package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/internal/model"
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *ReferralRepository) WithTx(tx *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: tx}
}

// Transaction 在同一事务中执行 fn
func (r *ReferralRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// Create 创建邀请记录，被邀请人唯一索引保证每人只能被邀请一次
func (r *ReferralRepository) Create(referral *model.Referral) error {
	return r.db.Create(referral).Error
}

func (r *ReferralRepository) GetByID(id int64) (*model.Referral, error) {
	var referral model.Referral
	err := r.db.Where("id = ?", id).First(&referral).Error
	if err != nil {
		return nil, err
	}
	return &referral, nil
}

// GetByReferee 查询用户作为被邀请人的记录
func (r *ReferralRepository) GetByReferee(refereeID int64) (*model.Referral, error) {
	var referral model.Referral
	err := r.db.Where("referee_user_id = ?", refereeID).First(&referral).Error
	if err != nil {
		return nil, err
	}
	return &referral, nil
}

// ListPendingWithActiveReferee 未发放奖励且被邀请人订阅有效的记录
func (r *ReferralRepository) ListPendingWithActiveReferee(now time.Time) ([]*model.Referral, error) {
	var referrals []*model.Referral
	err := r.db.Model(&model.Referral{}).
		Joins("JOIN users ON users.id = referrals.referee_user_id").
		Where("referrals.reward_granted = ?", false).
		Where("users.subscription_status = ? AND users.subscription_expiry > ?", model.SubscriptionActive, now.UTC()).
		Order("referrals.id ASC").
		Find(&referrals).Error
	return referrals, err
}

// ClaimReward 标记奖励已发放，返回 0 表示已被其他进程领取
func (r *ReferralRepository) ClaimReward(id int64, now time.Time) (int64, error) {
	result := r.db.Model(&model.Referral{}).
		Where("id = ? AND reward_granted = ?", id, false).
		Updates(map[string]interface{}{
			"reward_granted":      true,
			"reward_granted_date": now.UTC(),
		})
	return result.RowsAffected, result.Error
}

// CountByReferrer 邀请人数
func (r *ReferralRepository) CountByReferrer(referrerID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Referral{}).
		Where("referrer_user_id = ?", referrerID).
		Count(&count).Error
	return count, err
}

// CountGrantedByReferrer 已发放奖励的邀请数
func (r *ReferralRepository) CountGrantedByReferrer(referrerID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Referral{}).
		Where("referrer_user_id = ? AND reward_granted = ?", referrerID, true).
		Count(&count).Error
	return count, err
}
