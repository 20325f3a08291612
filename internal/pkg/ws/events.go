package ws

// 客户端与服务端之间的事件类型
const (
	EventJoin    = "chat:join"
	EventJoined  = "chat:joined"
	EventMessage = "chat:message"
	EventTyping  = "chat:typing"
	EventDeleted = "chat:deleted"
	EventError   = "chat:error"
)
