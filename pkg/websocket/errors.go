// pkg/websocket/errors.go
package websocket

import "github.com/cockroachdb/errors"

var (
	// 配置错误
	ErrInvalidConfig = errors.New("websocket: invalid config")
	ErrNilHandler    = errors.New("websocket: message handler is required")

	// 连接错误
	ErrConnectionClosed = errors.New("websocket: connection closed")
	ErrSendQueueFull    = errors.New("websocket: send queue full")

	// 服务端错误
	ErrServerClosed        = errors.New("websocket: server closed")
	ErrAlreadyListening    = errors.New("websocket: server already listening")
	ErrPoolFull            = errors.New("websocket: connection pool full")
	ErrPoolClosed          = errors.New("websocket: connection pool closed")
	ErrMaxConnectionsPerIP = errors.New("websocket: max connections per ip exceeded")
)
