package model

import (
	"time"
)

type Referral struct {
	ID                int64      `gorm:"primaryKey" json:"id"`
	ReferrerUserID    int64      `gorm:"not null;index" json:"referrer_user_id"`
	RefereeUserID     int64      `gorm:"not null;uniqueIndex" json:"referee_user_id"`
	ReferralCode      string     `gorm:"size:20;not null" json:"referral_code"`
	SignupDate        time.Time  `gorm:"not null" json:"signup_date"`
	RewardGranted     bool       `gorm:"not null;default:false;index" json:"reward_granted"`
	RewardGrantedDate *time.Time `json:"reward_granted_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`

	// 关联
	Referrer *User `gorm:"foreignKey:ReferrerUserID;constraint:OnDelete:CASCADE" json:"-"`
	Referee  *User `gorm:"foreignKey:RefereeUserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Referral) TableName() string {
	return "referrals"
}
