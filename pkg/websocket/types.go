// pkg/websocket/types.go
package websocket

import (
	"time"

	"github.com/cockroachdb/errors"
)

// MessageType 消息类型，取值与 gorilla/websocket 一致
type MessageType int

const (
	MessageTypeText   MessageType = 1
	MessageTypeBinary MessageType = 2
)

// String 返回消息类型的字符串表示
func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ConnectionState 连接状态
type ConnectionState int

const (
	StateConnected ConnectionState = iota
	StateClosed
)

// String 返回连接状态的字符串表示
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText 以字符串形式编码
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 String 的输出
func (s *ConnectionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "connected":
		*s = StateConnected
	case "closed":
		*s = StateClosed
	default:
		return errors.Newf("websocket: unknown connection state %q", text)
	}
	return nil
}

// Stats 统计信息
type Stats struct {
	TotalConnections  int64          `json:"total_connections"`
	ActiveConnections int64          `json:"active_connections"`
	ConnectionsPerIP  map[string]int `json:"connections_per_ip,omitempty"`
}

// ConnectionInfo 连接信息
type ConnectionInfo struct {
	ID          string          `json:"id"`
	Path        string          `json:"path"`
	RemoteAddr  string          `json:"remote_addr"`
	State       ConnectionState `json:"state"`
	ConnectedAt time.Time       `json:"connected_at"`
}
