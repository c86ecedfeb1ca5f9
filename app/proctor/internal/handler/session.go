package handler

import (
	"time"

	"github.com/lk2023060901/xdooria-proctor/app/proctor/internal/sink"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/session"
)

// ViolationLoggerName 违规记录使用的具名日志，可在配置 loggers 段单独输出到文件
const ViolationLoggerName = "violations"

// LoggerProvider 按名称获取日志，*app.BaseApp 实现了该接口
type LoggerProvider interface {
	Logger(name string) logger.Logger
}

// SessionHandler 为每个新会话挂载事件、违规与断开监听器
type SessionHandler struct {
	logger  logger.Logger
	loggers LoggerProvider
	sink    *sink.ViolationSink
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(l logger.Logger, loggers LoggerProvider, s *sink.ViolationSink) *SessionHandler {
	return &SessionHandler{
		logger:  l.Named("handler.session"),
		loggers: loggers,
		sink:    s,
	}
}

// Attach 作为 SDK 的 session 监听器注册
func (h *SessionHandler) Attach(sess *session.Session) {
	l := h.logger.WithFields("session_id", sess.ID(), "conn_id", sess.ConnID())
	l.Info("session started", "remote_addr", sess.Conn().RemoteAddr())

	sess.OnEvent(func(ev session.Event) {
		l.Debug("client event", "status", ev.Status(), "event", ev.String())
	})

	sess.OnViolation(func(ev session.Event) {
		h.violationLogger().Warn("violation detected",
			"session_id", sess.ID(),
			"remote_addr", sess.Conn().RemoteAddr(),
			"event", ev.String(),
		)
		if h.sink != nil {
			h.sink.Enqueue(sess, ev)
		}
	})

	sess.OnDisconnect(func() {
		l.Info("session ended", "duration", time.Since(sess.StartTime()).Round(time.Millisecond))
	})
}

// 具名日志在应用 Run 时才初始化，每次使用时再取
func (h *SessionHandler) violationLogger() logger.Logger {
	if h.loggers == nil {
		return h.logger
	}
	if l := h.loggers.Logger(ViolationLoggerName); l != nil {
		return l
	}
	return h.logger
}
