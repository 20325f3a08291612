package dto

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8,max=64"`
	DisplayName string `json:"display_name" binding:"omitempty,max=100"`

	// 选填，注册同时兑换邀请码
	ReferralCode string `json:"referral_code" binding:"omitempty,max=20"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应，token 同时写入 session cookie
type LoginResponse struct {
	Token string    `json:"token"`
	User  *UserInfo `json:"user"`
}

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID                 int64        `json:"id"`
	Username           string       `json:"username"`
	Email              string       `json:"email,omitempty"`
	DisplayName        string       `json:"display_name"`
	AvatarURL          string       `json:"avatar_url"`
	ReferralCode       string       `json:"referral_code,omitempty"`
	SubscriptionStatus string       `json:"subscription_status"`
	SubscriptionExpiry string       `json:"subscription_expiry,omitempty"`
	IsTestUser         bool         `json:"is_test_user"`
	Usage              *UsageStatus `json:"usage,omitempty"`
	CreatedAt          string       `json:"created_at,omitempty"`
}

// UpdateProfileRequest 更新用户信息请求
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" binding:"omitempty,min=1,max=100"`
	AvatarURL   *string `json:"avatar_url,omitempty" binding:"omitempty,url,max=500"`
}
