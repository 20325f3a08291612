package dto

// SendMessageRequest 发送文字消息
type SendMessageRequest struct {
	RoomID  string `json:"room_id" binding:"required,max=64"`
	Content string `json:"content"`
}

// ChatHistoryQuery 历史消息查询
type ChatHistoryQuery struct {
	Room   string `form:"room"`
	Limit  int    `form:"limit"`
	Before int64  `form:"before"`
}

// ChatMessageItem 广播与历史记录中的消息，带发送者展示字段
type ChatMessageItem struct {
	ID               int64   `json:"id"`
	RoomID           string  `json:"room_id"`
	UserID           int64   `json:"user_id"`
	Content          *string `json:"content"`
	AudioURL         *string `json:"audio_url"`
	AudioDurationSec *int    `json:"audio_duration_sec"`
	MimeType         *string `json:"mime_type"`
	CreatedAt        string  `json:"created_at"`
	DisplayName      string  `json:"display_name"`
	AvatarURL        string  `json:"avatar_url"`
}

// JoinRoomEvent chat:join
type JoinRoomEvent struct {
	RoomID string `json:"room_id"`
}

// ChatMessageEvent chat:message（客户端发送）
type ChatMessageEvent struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

// TypingEvent chat:typing
type TypingEvent struct {
	RoomID      string `json:"room_id"`
	IsTyping    bool   `json:"is_typing"`
	UserID      int64  `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// ChatErrorEvent chat:error
type ChatErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
