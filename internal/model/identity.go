package model

// Identity 连接建立时解析一次的认证身份
type Identity struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func IdentityOf(u *User) *Identity {
	return &Identity{
		ID:          u.ID,
		DisplayName: u.Name(),
		AvatarURL:   u.AvatarURL,
	}
}
