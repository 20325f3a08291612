package dto

// RedeemReferralRequest 填写邀请码
type RedeemReferralRequest struct {
	Code string `json:"code" binding:"required,min=4,max=20"`
}

// ReferralStats 我的邀请信息
type ReferralStats struct {
	ReferralCode   string `json:"referral_code"`
	InvitedCount   int64  `json:"invited_count"`
	RewardsGranted int64  `json:"rewards_granted"`
	RewardsEarned  int    `json:"rewards_earned"`
}

// ProcessRewardsResult 一次奖励发放的结果
type ProcessRewardsResult struct {
	Processed int      `json:"processed"`
	Errors    []string `json:"errors"`
}
