package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/internal/api/middleware"
	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/model/dto"
	"github.com/qs3c/guitar_dice_server/internal/pkg/ratelimit"
	"github.com/qs3c/guitar_dice_server/internal/pkg/response"
	"github.com/qs3c/guitar_dice_server/internal/pkg/ws"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

const (
	maxFrameSize = 16 * 1024
	eventTimeout = 5 * time.Second
)

type WebSocketHandler struct {
	hub          *ws.Hub
	resolver     service.SessionResolver
	chatService  *service.ChatService
	connLimiter  ratelimit.Limiter
	eventLimiter ratelimit.Limiter
	upgrader     websocket.Upgrader
}

func NewWebSocketHandler(
	hub *ws.Hub,
	resolver service.SessionResolver,
	chatService *service.ChatService,
	connLimiter ratelimit.Limiter,
	eventLimiter ratelimit.Limiter,
	allowedOrigins []string,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          hub,
		resolver:     resolver,
		chatService:  chatService,
		connLimiter:  connLimiter,
		eventLimiter: eventLimiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// 非浏览器客户端不带 Origin
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// clientFrame 客户端发来的事件
type clientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handle WebSocket 连接处理：限流 -> 认证 -> 升级 -> 自动加入默认房间
// GET /api/v1/ws
func (h *WebSocketHandler) Handle(c *gin.Context) {
	if !h.connLimiter.Allow("ws:" + middleware.ClientIP(c)) {
		response.RateLimitError(c, "Too many connection attempts")
		return
	}

	identity, err := h.resolver.Resolve(c.Request)
	if err != nil {
		if !errors.Is(err, service.ErrSessionInvalid) && !errors.Is(err, service.ErrUserNotFound) {
			log.Error().Err(err).Msg("resolve ws session failed")
		}
		response.AuthError(c, "请先登录")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		log.Warn().Err(err).Int64("user_id", identity.ID).Msg("ws upgrade failed")
		return
	}

	client := ws.NewClient(identity.ID, conn)
	client.DisplayName = identity.DisplayName
	client.AvatarURL = identity.AvatarURL
	h.hub.Register(client)

	room := h.chatService.DefaultRoom()
	h.hub.Join(client, room)
	h.send(client, ws.EventJoined, &dto.JoinRoomEvent{RoomID: room})

	h.readLoop(client, identity)
}

func (h *WebSocketHandler) readLoop(client *ws.Client, identity *model.Identity) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxFrameSize)
	limiterKey := "ws-event:" + strconv.FormatInt(identity.ID, 10)

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Int64("user_id", identity.ID).Msg("ws read failed")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(client, "INVALID_EVENT", "无法解析的消息")
			continue
		}

		if !h.eventLimiter.Allow(limiterKey) {
			h.sendError(client, service.ChatRateLimited, "发送过于频繁，请稍后再试")
			continue
		}

		h.dispatch(client, identity, &frame)
	}
}

func (h *WebSocketHandler) dispatch(client *ws.Client, identity *model.Identity, frame *clientFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch frame.Type {
	case ws.EventJoin:
		var event dto.JoinRoomEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			h.sendError(client, service.ChatInvalidRoom, service.ErrInvalidRoom.Error())
			return
		}
		room, err := h.chatService.ValidateRoom(event.RoomID)
		if err != nil {
			h.sendError(client, service.ChatInvalidRoom, err.Error())
			return
		}
		h.hub.Join(client, room)
		h.send(client, ws.EventJoined, &dto.JoinRoomEvent{RoomID: room})

	case ws.EventMessage:
		var event dto.ChatMessageEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			h.sendError(client, service.ChatInvalidContent, service.ErrInvalidContent.Error())
			return
		}
		if _, err := h.chatService.SendText(ctx, identity, h.roomFor(client, event.RoomID), event.Content); err != nil {
			h.sendChatError(client, err)
		}

	case ws.EventTyping:
		var event dto.TypingEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return
		}
		if err := h.chatService.Typing(ctx, identity, h.roomFor(client, event.RoomID), event.IsTyping); err != nil {
			if errors.Is(err, service.ErrInvalidRoom) {
				h.sendError(client, service.ChatInvalidRoom, err.Error())
				return
			}
			log.Warn().Err(err).Int64("user_id", identity.ID).Msg("broadcast typing failed")
		}

	default:
		h.sendError(client, "UNKNOWN_EVENT", "不支持的事件类型")
	}
}

// roomFor 未指定房间时使用连接当前所在的房间
func (h *WebSocketHandler) roomFor(client *ws.Client, roomID string) string {
	if roomID != "" {
		return roomID
	}
	return h.hub.RoomOf(client)
}

func (h *WebSocketHandler) sendChatError(client *ws.Client, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidContent):
		h.sendError(client, service.ChatInvalidContent, err.Error())
	case errors.Is(err, service.ErrInvalidRoom):
		h.sendError(client, service.ChatInvalidRoom, err.Error())
	default:
		h.sendError(client, service.ChatStorageFailed, service.ErrChatStorageError.Error())
	}
}

// sendError 错误只发给触发它的连接
func (h *WebSocketHandler) sendError(client *ws.Client, code, message string) {
	h.send(client, ws.EventError, &dto.ChatErrorEvent{Message: message, Code: code})
}

func (h *WebSocketHandler) send(client *ws.Client, eventType string, data interface{}) {
	if err := client.Send(&ws.Message{Type: eventType, Data: data}); err != nil {
		log.Debug().Err(err).Int64("user_id", client.UserID).Str("type", eventType).Msg("ws send failed")
	}
}
