// pkg/websocket/server.go
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// ServerOption 服务端选项
type ServerOption func(*Server)

// WithLogger 设置日志
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetricsRegisterer 设置指标注册器
func WithMetricsRegisterer(reg prometheus.Registerer) ServerOption {
	return func(s *Server) {
		s.metricsRegisterer = reg
	}
}

// Server WebSocket 服务端
// 每个连接由一个读协程驱动，handler 的回调按传输顺序串行执行
type Server struct {
	config   *ServerConfig
	upgrader *websocket.Upgrader
	logger   logger.Logger
	pool     *ConnectionPool
	handler  MessageHandler

	metrics           *ServerMetrics
	metricsRegisterer prometheus.Registerer

	httpServer *http.Server
	listener   net.Listener

	mu      sync.RWMutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewServer 创建服务端
func NewServer(cfg *ServerConfig, handler MessageHandler, opts ...ServerOption) (*Server, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:  cfg,
		handler: handler,
		closeCh: make(chan struct{}),
		logger:  logger.NewNoop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = &websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin:       cfg.checkOrigin(),
	}
	s.pool = NewConnectionPool(cfg.Pool)
	s.metrics = NewServerMetrics(s.metricsRegisterer)

	return s, nil
}

// Listen 绑定地址并在后台开始服务，返回实际监听地址
func (s *Server) Listen(addr string) (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServerClosed
	}
	if s.listener != nil {
		return nil, ErrAlreadyListening
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "websocket: listen on %s", addr)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.config.HandshakeTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server stopped unexpectedly", "error", err, "addr", ln.Addr().String())
		}
	}()

	return ln.Addr(), nil
}

// Addr 返回监听地址，未监听时返回 nil
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler 返回 http.Handler，可挂载到已有的 HTTP 服务上
func (s *Server) Handler() http.Handler {
	return s
}

// ServeHTTP 实现 http.Handler 接口
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.Upgrade(w, r)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	s.handleConnection(conn)
}

// track 登记一个进行中的请求，服务端已关闭时返回 false
func (s *Server) track() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// Upgrade 升级 HTTP 连接为 WebSocket
func (s *Server) Upgrade(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	if s.pool.IsFull() {
		s.metrics.OnUpgradeError("pool_full")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return nil, ErrPoolFull
	}

	if s.pool.IsIPLimitReached(extractIP(r.RemoteAddr)) {
		s.metrics.OnUpgradeError("ip_limit")
		http.Error(w, "too many connections from this IP", http.StatusTooManyRequests)
		return nil, ErrMaxConnectionsPerIP
	}

	// 失败时 upgrader 已写回 HTTP 错误
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.OnUpgradeError("handshake")
		return nil, errors.Wrap(err, "websocket: upgrade")
	}

	conn := NewConnection(wsConn,
		WithConnectionLogger(s.logger),
		WithPath(r.URL.EscapedPath()),
		WithTimeouts(s.config.ReadTimeout, s.config.WriteTimeout),
		WithSendQueueSize(s.config.SendQueueSize),
	)

	if s.config.MaxMessageSize > 0 {
		conn.SetReadLimit(s.config.MaxMessageSize)
	}

	if err := s.pool.Add(conn); err != nil {
		s.metrics.OnUpgradeError("pool_add")
		_ = conn.CloseWithCode(websocket.CloseTryAgainLater, "server busy")
		return nil, err
	}

	s.metrics.OnConnectionOpened()
	return conn, nil
}

// handleConnection 处理连接，阻塞直到连接结束
func (s *Server) handleConnection(conn *Connection) {
	if err := s.handler.OnConnect(conn); err != nil {
		s.logger.Warn("websocket OnConnect error", "error", err, "conn_id", conn.ID())
		_ = conn.Close()
	}

	// 在 OnConnect 中被拒绝
	if conn.IsClosed() {
		s.removeConnection(conn, nil)
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.extendReadDeadline(s.config.PongTimeout)
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn.WriteLoop()
	}()

	if s.config.PingInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pingLoop(conn)
		}()
	}

	readErr := conn.ReadLoop(s.dispatch)
	_ = conn.Close()
	s.removeConnection(conn, readErr)
}

func (s *Server) dispatch(conn *Connection, msg *Message) error {
	s.metrics.OnMessageReceived(msg.Type, msg.Len())
	return s.handler.OnMessage(conn, msg)
}

// pingLoop Ping 循环
func (s *Server) pingLoop(conn *Connection) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				if !errors.Is(err, ErrConnectionClosed) {
					s.logger.Debug("websocket ping error", "error", err, "conn_id", conn.ID())
				}
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		case <-s.closeCh:
			return
		}
	}
}

// removeConnection 移除连接并通知 handler
func (s *Server) removeConnection(conn *Connection, err error) {
	s.pool.Remove(conn.ID())

	if err != nil {
		s.metrics.OnConnectionError("read")
		s.handler.OnError(conn, err)
	}
	s.handler.OnDisconnect(conn, err)

	s.metrics.OnConnectionClosed()
}

// GetConnection 获取指定连接
func (s *Server) GetConnection(connID string) (*Connection, bool) {
	return s.pool.Get(connID)
}

// ConnectionCount 获取连接数
func (s *Server) ConnectionCount() int {
	return s.pool.Count()
}

// Stats 获取统计信息
func (s *Server) Stats() Stats {
	return s.pool.Stats()
}

// Shutdown 停止接受新连接，关闭所有连接并等待处理协程退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeCh)
	srv := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		// 已升级的连接被 hijack，不在 http.Server 的等待范围内
		shutdownErr = srv.Shutdown(ctx)
	}

	s.pool.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return shutdownErr
}

// Close 关闭服务端
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}
