package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/internal/pkg/pubsub"
	"github.com/qs3c/guitar_dice_server/internal/pkg/ws"
)

// Broadcaster 向房间广播事件，exceptUserID 为 0 表示不排除任何人
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, msg *ws.Message, exceptUserID int64) error
}

// HubBroadcaster 单实例部署，直接写本地连接
type HubBroadcaster struct {
	hub *ws.Hub
}

func NewHubBroadcaster(hub *ws.Hub) *HubBroadcaster {
	return &HubBroadcaster{hub: hub}
}

func (b *HubBroadcaster) Broadcast(ctx context.Context, roomID string, msg *ws.Message, exceptUserID int64) error {
	return b.hub.BroadcastToRoom(roomID, msg, exceptUserID)
}

// PubSubBroadcaster 多实例部署，经 Redis 转发，由每个实例的订阅者写本地连接
type PubSubBroadcaster struct {
	publisher *pubsub.Publisher
}

func NewPubSubBroadcaster(publisher *pubsub.Publisher) *PubSubBroadcaster {
	return &PubSubBroadcaster{publisher: publisher}
}

func (b *PubSubBroadcaster) Broadcast(ctx context.Context, roomID string, msg *ws.Message, exceptUserID int64) error {
	event, err := pubsub.NewChatEvent(msg.Type, roomID, exceptUserID, msg.Data)
	if err != nil {
		return err
	}
	return b.publisher.Publish(ctx, event)
}

// RelayToHub 订阅回调：把收到的事件广播给本实例的连接
func RelayToHub(hub *ws.Hub) func(*pubsub.ChatEvent) {
	return func(event *pubsub.ChatEvent) {
		msg := &ws.Message{Type: event.Type, Data: event.Data}
		if err := hub.BroadcastToRoom(event.RoomID, msg, event.ExceptUserID); err != nil {
			log.Error().Err(err).Str("room", event.RoomID).Msg("relay chat event failed")
		}
	}
}
