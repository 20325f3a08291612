package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const (
	ChannelChatEvents = "chat_events"
)

// ChatEvent 跨副本转发的房间事件，每个副本收到后向本地连接广播
type ChatEvent struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"room_id"`
	ExceptUserID int64           `json:"except_user_id,omitempty"`
	Data         json.RawMessage `json:"data"`
}

// NewChatEvent 序列化 data 并构造事件
func NewChatEvent(eventType, roomID string, exceptUserID int64, data interface{}) (*ChatEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat event data: %w", err)
	}
	return &ChatEvent{
		Type:         eventType,
		RoomID:       roomID,
		ExceptUserID: exceptUserID,
		Data:         raw,
	}, nil
}

// Publisher Redis 发布者
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: ChannelChatEvents}
}

// Publish 发布房间事件
func (p *Publisher) Publish(ctx context.Context, event *ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal chat event: %w", err)
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client  *redis.Client
	channel string
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client, channel: ChannelChatEvents}
}

// Subscribe 订阅房间事件，阻塞直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ChatEvent)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// 等待订阅确认，之后发布的消息不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event ChatEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Msg("drop malformed chat event")
				continue
			}

			handler(&event)
		}
	}
}

// Run 持续订阅，订阅失败或连接断开后等待 retryDelay 重新订阅，直到 ctx 结束
func (s *Subscriber) Run(ctx context.Context, handler func(*ChatEvent), retryDelay time.Duration) {
	for {
		err := s.Subscribe(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Dur("retry_in", retryDelay).Msg("chat event subscription lost, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}
