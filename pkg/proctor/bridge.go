package proctor

import (
	"strings"

	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/session"
	"github.com/lk2023060901/xdooria-proctor/pkg/websocket"
)

// SessionIDFromPath 从请求路径取会话 ID：去掉开头的一个 "/"
func SessionIDFromPath(path string) string {
	return strings.TrimPrefix(path, "/")
}

// bridge 把连接事件转交给会话注册表
type bridge struct {
	registry *session.Registry
	logger   logger.Logger
}

var _ websocket.MessageHandler = (*bridge)(nil)

func (b *bridge) OnConnect(conn *websocket.Connection) error {
	b.registry.StartSession(conn, SessionIDFromPath(conn.Path()))
	return nil
}

func (b *bridge) OnMessage(conn *websocket.Connection, msg *websocket.Message) error {
	s, ok := b.registry.GetSession(conn)
	if !ok {
		return nil
	}
	s.HandleEvent(msg.Data)
	return nil
}

func (b *bridge) OnDisconnect(conn *websocket.Connection, _ error) {
	b.registry.EndSession(conn)
}

func (b *bridge) OnError(conn *websocket.Connection, err error) {
	fields := []interface{}{"error", err, "conn_id", conn.ID(), "remote_addr", conn.RemoteAddr()}
	if s, ok := b.registry.GetSession(conn); ok {
		fields = append(fields, "session_id", s.ID())
	}
	b.logger.Warn("websocket connection error", fields...)
}
