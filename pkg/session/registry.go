package session

import (
	"sync"
	"time"

	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
)

// RegistryOption 注册表选项。
type RegistryOption func(*Registry)

// WithLogger 设置日志。
func WithLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics 设置指标。
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock 设置时间源。
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry 连接到会话的映射，以连接 ID 为键。
// 同一会话 ID 可以出现在多个连接上，不做去重。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	onCreate func(*Session)
	logger   logger.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewRegistry 创建注册表，onCreate 在每个会话注册后同步调用，可以为 nil。
func NewRegistry(onCreate func(*Session), opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		onCreate: onCreate,
		logger:   logger.NewNoop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartSession 为连接注册会话。
// sessionID 为空时以 1008 关闭连接并返回 false；同一连接重复注册时覆盖旧会话。
func (r *Registry) StartSession(conn ConnHandle, sessionID string) (*Session, bool) {
	if sessionID == "" {
		r.metrics.sessionRejected()
		r.logger.Info("rejecting connection without session id",
			"conn_id", conn.ID(), "remote_addr", conn.RemoteAddr())
		if err := conn.CloseWithCode(CloseSessionIDRequired, ReasonSessionIDRequired); err != nil {
			r.logger.Debug("close rejected connection", "error", err, "conn_id", conn.ID())
		}
		return nil, false
	}

	s := newSession(sessionID, conn, r.now(), r.logger, r.metrics)

	r.mu.Lock()
	_, replaced := r.sessions[conn.ID()]
	r.sessions[conn.ID()] = s
	r.mu.Unlock()

	if !replaced {
		r.metrics.sessionStarted()
	}
	r.logger.Debug("session started", "session_id", sessionID, "conn_id", conn.ID())

	if r.onCreate != nil {
		s.safeCall("session", func() { r.onCreate(s) })
	}
	return s, true
}

// EndSession 通知会话断开并从注册表移除，连接未注册时无操作。
func (r *Registry) EndSession(conn ConnHandle) {
	s, ok := r.GetSession(conn)
	if !ok {
		return
	}

	s.HandleDisconnect()

	r.mu.Lock()
	removed := false
	if cur, ok := r.sessions[conn.ID()]; ok && cur == s {
		delete(r.sessions, conn.ID())
		removed = true
	}
	r.mu.Unlock()

	if removed {
		r.metrics.sessionEnded()
		r.logger.Debug("session ended", "session_id", s.ID(), "conn_id", conn.ID(),
			"duration", r.now().Sub(s.StartTime()))
	}
}

// GetSession 查找连接上的会话。
func (r *Registry) GetSession(conn ConnHandle) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[conn.ID()]
	return s, ok
}

// Count 返回当前会话数量。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Range 遍历会话快照，fn 返回 false 时停止。
func (r *Registry) Range(fn func(s *Session) bool) {
	for _, s := range r.Snapshot() {
		if !fn(s) {
			return
		}
	}
}

// Snapshot 返回当前所有会话。
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
