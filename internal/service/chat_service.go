package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/ws"
	"github.com/qs3c/guitar_dice_server/internal/repository"
)

const maxRoomIDLength = 64

// 与客户端约定的错误码
const (
	ChatInvalidContent = "INVALID_CONTENT"
	ChatInvalidRoom    = "INVALID_ROOM"
	ChatRateLimited    = "RATE_LIMITED"
	ChatStorageFailed  = "STORAGE_ERROR"
)

var (
	ErrInvalidContent   = errors.New("消息内容不能为空且不能超过长度限制")
	ErrInvalidRoom      = errors.New("房间 ID 无效")
	ErrMessageNotFound  = errors.New("消息不存在")
	ErrNotMessageOwner  = errors.New("只能删除自己的消息")
	ErrChatStorageError = errors.New("消息保存失败，请稍后重试")
)

// AudioRemover 删除消息时清理语音文件
type AudioRemover interface {
	Remove(url string) error
}

type ChatService struct {
	chatRepo    *repository.ChatRepository
	broadcaster Broadcaster
	audio       AudioRemover
	cfg         *config.ChatConfig
	policy      *bluemonday.Policy
}

func NewChatService(chatRepo *repository.ChatRepository, broadcaster Broadcaster, audio AudioRemover, cfg *config.ChatConfig) *ChatService {
	return &ChatService{
		chatRepo:    chatRepo,
		broadcaster: broadcaster,
		audio:       audio,
		cfg:         cfg,
		policy:      bluemonday.StrictPolicy(),
	}
}

// DefaultRoom 连接建立后自动加入的房间
func (s *ChatService) DefaultRoom() string {
	if s.cfg.DefaultRoom == "" {
		return "public"
	}
	return s.cfg.DefaultRoom
}

// ValidateRoom 房间对所有登录用户开放，只校验格式
func (s *ChatService) ValidateRoom(roomID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || utf8.RuneCountInString(roomID) > maxRoomIDLength {
		return "", ErrInvalidRoom
	}
	return roomID, nil
}

// PrepareContent NFC 规范化并去掉首尾空白后校验长度，再清除所有 HTML 标签。
// Sanitize 会转义剩余文本，还原成纯文本后保存；清理后为空的内容照常保存。
func (s *ChatService) PrepareContent(raw string) (string, error) {
	content := strings.TrimSpace(norm.NFC.String(raw))
	if content == "" || utf8.RuneCountInString(content) > s.maxContentLength() {
		return "", ErrInvalidContent
	}
	return html.UnescapeString(s.policy.Sanitize(content)), nil
}

func (s *ChatService) maxContentLength() int {
	if s.cfg.MaxContentLength > 0 {
		return s.cfg.MaxContentLength
	}
	return 1000
}

// SendText 保存文字消息并广播给房间内所有连接（包括发送者）
func (s *ChatService) SendText(ctx context.Context, sender *model.Identity, roomID, raw string) (*dto.ChatMessageItem, error) {
	roomID, err := s.ValidateRoom(roomID)
	if err != nil {
		return nil, err
	}
	content, err := s.PrepareContent(raw)
	if err != nil {
		return nil, err
	}

	msg := &model.ChatMessage{
		RoomID:  roomID,
		UserID:  sender.ID,
		Content: &content,
	}
	return s.persistAndBroadcast(ctx, sender, msg)
}

// SendAudio 保存已校验的语音消息并广播
func (s *ChatService) SendAudio(ctx context.Context, sender *model.Identity, roomID string, stored *StoredAudio) (*dto.ChatMessageItem, error) {
	roomID, err := s.ValidateRoom(roomID)
	if err != nil {
		return nil, err
	}

	duration := stored.DurationSec
	mimeType := stored.MimeType
	url := stored.URL
	msg := &model.ChatMessage{
		RoomID:           roomID,
		UserID:           sender.ID,
		AudioURL:         &url,
		AudioDurationSec: &duration,
		MimeType:         &mimeType,
	}
	return s.persistAndBroadcast(ctx, sender, msg)
}

// persistAndBroadcast 先落库再广播，同一发送者的消息按保存顺序送达
func (s *ChatService) persistAndBroadcast(ctx context.Context, sender *model.Identity, msg *model.ChatMessage) (*dto.ChatMessageItem, error) {
	if err := s.chatRepo.Create(msg); err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Str("room", msg.RoomID).Msg("save chat message failed")
		return nil, fmt.Errorf("%w: %v", ErrChatStorageError, err)
	}

	item := messageItem(msg, sender.DisplayName, sender.AvatarURL)
	if err := s.broadcaster.Broadcast(ctx, msg.RoomID, &ws.Message{Type: ws.EventMessage, Data: item}, 0); err != nil {
		// 已保存的消息可以通过历史记录补齐
		log.Error().Err(err).Int64("message_id", msg.ID).Str("room", msg.RoomID).Msg("broadcast chat message failed")
	}
	return item, nil
}

// Typing 输入状态只广播不保存，不发给发送者自己
func (s *ChatService) Typing(ctx context.Context, sender *model.Identity, roomID string, isTyping bool) error {
	roomID, err := s.ValidateRoom(roomID)
	if err != nil {
		return err
	}

	event := &dto.TypingEvent{
		RoomID:      roomID,
		IsTyping:    isTyping,
		UserID:      sender.ID,
		DisplayName: sender.DisplayName,
	}
	return s.broadcaster.Broadcast(ctx, roomID, &ws.Message{Type: ws.EventTyping, Data: event}, sender.ID)
}

// History 房间历史消息，最新的在前；before 为消息 ID 游标
func (s *ChatService) History(query *dto.ChatHistoryQuery) ([]*dto.ChatMessageItem, error) {
	roomID := strings.TrimSpace(query.Room)
	if roomID == "" {
		roomID = s.DefaultRoom()
	}
	roomID, err := s.ValidateRoom(roomID)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.cfg.HistoryDefaultLimit
	}
	if s.cfg.HistoryMaxLimit > 0 && limit > s.cfg.HistoryMaxLimit {
		limit = s.cfg.HistoryMaxLimit
	}
	if limit <= 0 {
		limit = 50
	}

	messages, err := s.chatRepo.ListByRoom(roomID, query.Before, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.ChatMessageItem, 0, len(messages))
	for _, m := range messages {
		displayName, avatar := "", ""
		if m.User != nil {
			displayName, avatar = m.User.Name(), m.User.AvatarURL
		}
		items = append(items, messageItem(m, displayName, avatar))
	}
	return items, nil
}

// Delete 删除自己的消息，语音文件尽力清理
func (s *ChatService) Delete(ctx context.Context, userID, messageID int64) error {
	msg, err := s.chatRepo.GetByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if msg.UserID != userID {
		return ErrNotMessageOwner
	}

	if err := s.chatRepo.Delete(messageID); err != nil {
		return err
	}

	if msg.AudioURL != nil && s.audio != nil {
		if err := s.audio.Remove(*msg.AudioURL); err != nil {
			log.Warn().Err(err).Int64("message_id", messageID).Msg("remove audio file failed")
		}
	}

	payload := map[string]interface{}{"id": messageID, "room_id": msg.RoomID}
	if err := s.broadcaster.Broadcast(ctx, msg.RoomID, &ws.Message{Type: ws.EventDeleted, Data: payload}, 0); err != nil {
		log.Warn().Err(err).Int64("message_id", messageID).Msg("broadcast chat delete failed")
	}
	return nil
}

func messageItem(m *model.ChatMessage, displayName, avatarURL string) *dto.ChatMessageItem {
	return &dto.ChatMessageItem{
		ID:               m.ID,
		RoomID:           m.RoomID,
		UserID:           m.UserID,
		Content:          m.Content,
		AudioURL:         m.AudioURL,
		AudioDurationSec: m.AudioDurationSec,
		MimeType:         m.MimeType,
		CreatedAt:        m.CreatedAt.UTC().Format(time.RFC3339),
		DisplayName:      displayName,
		AvatarURL:        avatarURL,
	}
}
