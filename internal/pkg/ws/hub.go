package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Hub struct {
	// 每个用户可以有多个连接（多标签页、重连等场景）
	clients map[int64]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	UserID      int64
	DisplayName string
	AvatarURL   string
	Conn        *websocket.Conn
	room        string
	mu          sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewClient(userID int64, conn *websocket.Conn) *Client {
	return &Client{UserID: userID, Conn: conn}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	log.Debug().
		Int64("user_id", client.UserID).
		Int("user_conns", len(h.clients[client.UserID])).
		Int("total", h.countLocked()).
		Msg("ws client connected")
}

// Unregister 断开连接，同时退出所在房间
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(client)
	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	log.Debug().Int64("user_id", client.UserID).Msg("ws client disconnected")
}

// Join 离开当前房间并加入新房间，返回之前所在的房间
func (h *Hub) Join(client *Client, room string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.leaveLocked(client)
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.room = room
	return prev
}

// Leave 离开当前房间
func (h *Hub) Leave(client *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(client)
}

func (h *Hub) leaveLocked(client *Client) string {
	prev := client.room
	if prev == "" {
		return ""
	}
	if members, ok := h.rooms[prev]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, prev)
		}
	}
	client.room = ""
	return prev
}

// RoomOf 连接当前所在房间
func (h *Hub) RoomOf(client *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.room
}

// BroadcastToRoom 向房间内所有连接发送消息，exceptUserID 不为 0 时跳过该用户的连接
func (h *Hub) BroadcastToRoom(room string, msg *Message, exceptUserID int64) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	members := h.rooms[room]
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(members))
	for c := range members {
		if exceptUserID == 0 || c.UserID != exceptUserID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			log.Warn().Err(err).Int64("user_id", c.UserID).Str("room", room).Msg("ws broadcast write failed")
		}
	}
	return nil
}

// SendToUser 向指定用户的所有连接发送消息
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("ws send to user failed")
		}
	}
	return nil
}

// Send 向单个连接发送消息
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// IsOnline 检查用户是否在线
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[userID]
	return ok && len(conns) > 0
}

// RoomSize 房间内连接数
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
