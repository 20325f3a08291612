package dto

// UsageStatus 骰子配额状态
type UsageStatus struct {
	DiceRollsUsed       int  `json:"dice_rolls_used"`
	DiceRollsLimit      int  `json:"dice_rolls_limit"`
	ExtraRollTokens     int  `json:"extra_roll_tokens"`
	TotalAvailableRolls int  `json:"total_available_rolls"`
	RemainingRolls      int  `json:"remaining_rolls"`
	AdsWatchedCount     int  `json:"ads_watched_count"`
	CanUseDiceRoll      bool `json:"can_use_dice_roll"`
	IsTestUser          bool `json:"is_test_user"`
	IsPremium           bool `json:"is_premium"`
}

// DiceRollResult 扣减成功后的快照
type DiceRollResult struct {
	DiceRollsUsed   int `json:"dice_rolls_used"`
	DiceRollsLimit  int `json:"dice_rolls_limit"`
	ExtraRollTokens int `json:"extra_roll_tokens"`
	RemainingRolls  int `json:"remaining_rolls"`
}

// LimitReached 配额耗尽时的响应数据
type LimitReached struct {
	LimitReached bool `json:"limit_reached"`
}

// AdRewardDisabled 广告奖励关闭时的响应数据
type AdRewardDisabled struct {
	Success             bool `json:"success"`
	TemporarilyDisabled bool `json:"temporarily_disabled"`
}
