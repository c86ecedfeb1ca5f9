package session

import "github.com/gorilla/websocket"

const (
	// CloseSessionIDRequired 缺少会话 ID 时使用的关闭码（1008 policy violation）。
	CloseSessionIDRequired = websocket.ClosePolicyViolation
	// ReasonSessionIDRequired 缺少会话 ID 时的关闭原因。
	ReasonSessionIDRequired = "Session ID is required."
)

// ConnHandle 会话所依附的客户端连接。
// ID 在连接生命周期内必须稳定，注册表以它为键。
type ConnHandle interface {
	ID() string
	RemoteAddr() string
	Close() error
	CloseWithCode(code int, reason string) error
}
