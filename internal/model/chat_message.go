package model

import (
	"time"
)

// ChatMessage content 与 audio_url 二者恰有其一
type ChatMessage struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	RoomID           string    `gorm:"size:64;not null;index:idx_chat_room_id" json:"room_id"`
	UserID           int64     `gorm:"not null;index" json:"user_id"`
	Content          *string   `gorm:"type:text" json:"content"`
	AudioURL         *string   `gorm:"size:500" json:"audio_url"`
	AudioDurationSec *int      `json:"audio_duration_sec"`
	MimeType         *string   `gorm:"size:50" json:"mime_type"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`

	// 关联
	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

func (m *ChatMessage) IsAudio() bool {
	return m.AudioURL != nil
}
