package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create 保存消息
func (r *ChatRepository) Create(msg *model.ChatMessage) error {
	return r.db.Create(msg).Error
}

// GetByID 根据 ID 获取消息
func (r *ChatRepository) GetByID(id int64) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetByIDWithUser 获取消息及发送者信息
func (r *ChatRepository) GetByIDWithUser(id int64) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.Preload("User").Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByRoom 房间历史消息，按 ID 倒序；before > 0 时只取更早的消息
func (r *ChatRepository) ListByRoom(roomID string, before int64, limit int) ([]*model.ChatMessage, error) {
	var messages []*model.ChatMessage

	query := r.db.Model(&model.ChatMessage{}).
		Preload("User").
		Where("room_id = ?", roomID)
	if before > 0 {
		query = query.Where("id < ?", before)
	}

	err := query.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// Delete 删除消息
func (r *ChatRepository) Delete(id int64) error {
	return r.db.Delete(&model.ChatMessage{}, id).Error
}

// ListAudioURLs 所有语音消息引用的地址
func (r *ChatRepository) ListAudioURLs() ([]string, error) {
	var urls []string
	err := r.db.Model(&model.ChatMessage{}).
		Where("audio_url IS NOT NULL").
		Pluck("audio_url", &urls).Error
	return urls, err
}
