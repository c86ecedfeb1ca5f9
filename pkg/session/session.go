// Package session 维护监考客户端连接与会话的映射，并把客户端上报的事件分发给业务监听器。
package session

import (
	"sync"
	"time"

	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
)

// Info 会话快照。
type Info struct {
	ID         string    `json:"id"`
	ConnID     string    `json:"conn_id"`
	RemoteAddr string    `json:"remote_addr"`
	StartTime  time.Time `json:"start_time"`
}

// Session 一个客户端连接上的监考会话。
// 监听器按注册顺序同步调用，不缓冲也不向晚注册的监听器补发。
type Session struct {
	id        string
	conn      ConnHandle
	startTime time.Time

	logger  logger.Logger
	metrics *Metrics

	mu           sync.RWMutex
	onEvent      []func(Event)
	onViolation  []func(Event)
	onDisconnect []func()
}

func newSession(id string, conn ConnHandle, start time.Time, l logger.Logger, m *Metrics) *Session {
	return &Session{
		id:        id,
		conn:      conn,
		startTime: start,
		logger:    l.WithFields("session_id", id, "conn_id", conn.ID()),
		metrics:   m,
	}
}

// ID 返回会话 ID。
func (s *Session) ID() string {
	return s.id
}

// StartTime 返回会话建立时间。
func (s *Session) StartTime() time.Time {
	return s.startTime
}

// Conn 返回会话所依附的连接。
func (s *Session) Conn() ConnHandle {
	return s.conn
}

// ConnID 返回连接 ID。
func (s *Session) ConnID() string {
	return s.conn.ID()
}

// Info 返回会话快照。
func (s *Session) Info() Info {
	return Info{
		ID:         s.id,
		ConnID:     s.conn.ID(),
		RemoteAddr: s.conn.RemoteAddr(),
		StartTime:  s.startTime,
	}
}

// OnEvent 注册事件监听器，每条合法消息都会触发。
func (s *Session) OnEvent(fn func(Event)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onEvent = append(s.onEvent, fn)
	s.mu.Unlock()
}

// OnViolation 注册违规监听器，仅 status 为 "violation" 的消息触发。
func (s *Session) OnViolation(fn func(Event)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onViolation = append(s.onViolation, fn)
	s.mu.Unlock()
}

// OnDisconnect 注册断开监听器。
func (s *Session) OnDisconnect(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onDisconnect = append(s.onDisconnect, fn)
	s.mu.Unlock()
}

// HandleEvent 解析一帧消息并通知监听器。
// 先通知全部 event 监听器，再在违规时通知 violation 监听器；解析失败只记录日志。
func (s *Session) HandleEvent(raw []byte) {
	ev, err := DecodeEvent(raw)
	if err != nil {
		s.metrics.event("malformed")
		s.logger.Warn("failed to parse client message", "error", err, "size", len(raw))
		return
	}

	s.mu.RLock()
	onEvent := s.onEvent
	onViolation := s.onViolation
	s.mu.RUnlock()

	s.metrics.event("event")
	for _, fn := range onEvent {
		s.safeCall("event", func() { fn(ev) })
	}

	if !ev.IsViolation() {
		return
	}
	s.metrics.event(StatusViolation)
	for _, fn := range onViolation {
		s.safeCall(StatusViolation, func() { fn(ev) })
	}
}

// HandleDisconnect 通知断开监听器，每次调用通知一次。
func (s *Session) HandleDisconnect() {
	s.mu.RLock()
	onDisconnect := s.onDisconnect
	s.mu.RUnlock()

	for _, fn := range onDisconnect {
		s.safeCall("disconnect", fn)
	}
}

// Disconnect 以正常关闭码关闭客户端连接，会话随连接关闭被注册表移除。
func (s *Session) Disconnect() error {
	return s.conn.Close()
}

// safeCall 隔离监听器 panic，其余监听器照常执行。
func (s *Session) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session listener panicked", "listener", kind, "panic", r)
		}
	}()
	fn()
}
