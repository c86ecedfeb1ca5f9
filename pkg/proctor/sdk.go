// Package proctor 接收监考客户端的 WebSocket 连接，按请求路径建立会话，
// 并把客户端上报的事件与违规通知给业务方。
package proctor

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/session"
	"github.com/lk2023060901/xdooria-proctor/pkg/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// defaultStopTimeout Stop 后台关闭的超时
const defaultStopTimeout = 10 * time.Second

// Option SDK 选项
type Option func(*SDK)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(s *SDK) {
		s.logger = l
	}
}

// WithMetricsRegisterer 设置指标注册器，不设置时指标不注册
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *SDK) {
		s.registerer = reg
	}
}

// WithStopTimeout 设置 Stop 的后台关闭超时
func WithStopTimeout(d time.Duration) Option {
	return func(s *SDK) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// SDK 监考会话服务
type SDK struct {
	cfg         *Config
	logger      logger.Logger
	registerer  prometheus.Registerer
	stopTimeout time.Duration

	registry *session.Registry
	server   *websocket.Server

	mu        sync.RWMutex
	onSession []func(*session.Session)

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

// New 创建 SDK
func New(cfg *Config, opts ...Option) (*SDK, error) {
	if cfg == nil {
		return nil, configError("port is required")
	}

	s := &SDK{
		cfg:         cfg,
		logger:      logger.Default(),
		stopTimeout: defaultStopTimeout,
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("proctor")

	s.registry = session.NewRegistry(s.emitSession,
		session.WithLogger(s.logger.Named("session")),
		session.WithMetrics(session.NewMetrics(s.registerer)),
	)

	server, err := websocket.NewServer(cfg.Websocket(),
		&bridge{registry: s.registry, logger: s.logger},
		websocket.WithLogger(s.logger.Named("websocket")),
		websocket.WithMetricsRegisterer(s.registerer),
	)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create websocket server"), ErrConfiguration)
	}
	s.server = server

	return s, nil
}

// OnSession 注册新会话监听器，按注册顺序同步调用
func (s *SDK) OnSession(fn func(*session.Session)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onSession = append(s.onSession, fn)
	s.mu.Unlock()
}

func (s *SDK) emitSession(sess *session.Session) {
	s.mu.RLock()
	listeners := s.onSession
	s.mu.RUnlock()

	for _, fn := range listeners {
		s.safeCall(sess, fn)
	}
}

func (s *SDK) safeCall(sess *session.Session, fn func(*session.Session)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session listener panicked", "session_id", sess.ID(), "panic", r)
		}
	}()
	fn(sess)
}

// Start 绑定配置的地址并开始接受连接
func (s *SDK) Start() error {
	addr, err := s.server.Listen(s.cfg.Addr())
	if err != nil {
		return errors.Wrap(err, "start proctoring websocket server")
	}
	s.logger.Info("proctoring websocket server started", "url", "ws://"+addr.String())
	return nil
}

// Stop 停止接受连接并在后台关闭所有会话，完全关闭后记录日志；Done 可等待完成
func (s *SDK) Stop() error {
	s.stopOnce.Do(func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
			defer cancel()
			s.shutdown(ctx)
		}()
	})
	return nil
}

// GracefulStop 停止并等待所有连接处理结束
func (s *SDK) GracefulStop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.shutdown(ctx)
	})

	select {
	case <-s.stopped:
		return s.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SDK) shutdown(ctx context.Context) {
	s.stopErr = s.server.Shutdown(ctx)
	if s.stopErr != nil {
		s.logger.Warn("proctoring websocket server stopped with error", "error", s.stopErr)
	} else {
		s.logger.Info("proctoring websocket server stopped")
	}
	close(s.stopped)
}

// Done 服务完全关闭后关闭
func (s *SDK) Done() <-chan struct{} {
	return s.stopped
}

// Addr 返回实际监听地址，未启动时返回 nil
func (s *SDK) Addr() net.Addr {
	return s.server.Addr()
}

// Config 返回配置
func (s *SDK) Config() *Config {
	return s.cfg
}

// InstallerLinks 返回客户端安装包下载地址
func (s *SDK) InstallerLinks() map[string]string {
	return s.cfg.InstallerURLs()
}

// SessionCount 返回当前会话数量
func (s *SDK) SessionCount() int {
	return s.registry.Count()
}

// Registry 返回会话注册表
func (s *SDK) Registry() *session.Registry {
	return s.registry
}

// Connection 返回仍在连接池中的连接信息
func (s *SDK) Connection(connID string) (websocket.ConnectionInfo, bool) {
	conn, ok := s.server.GetConnection(connID)
	if !ok {
		return websocket.ConnectionInfo{}, false
	}
	return conn.Info(), true
}

// Handler 返回升级处理器，可挂载到已有的 HTTP 服务上代替 Start
func (s *SDK) Handler() http.Handler {
	return s.server.Handler()
}
