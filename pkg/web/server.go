package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/web/metrics"
	"github.com/lk2023060901/xdooria-proctor/pkg/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Option Server 选项
type Option func(*Server)

// WithMetricsRegisterer 设置 HTTP 指标注册器
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) {
		s.registerer = reg
	}
}

// Server Web 服务核心结构
type Server struct {
	engine     *gin.Engine
	config     *Config
	logger     logger.Logger
	registerer prometheus.Registerer

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer 创建 Web 服务
func NewServer(cfg *Config, l logger.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if l == nil {
		l = logger.Default()
	}

	s := &Server{
		config: cfg,
		logger: l.Named("web"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	engine := gin.New()

	// 挂载基础中间件
	engine.Use(middleware.Recovery(s.logger))
	engine.Use(middleware.Logger(s.logger))
	engine.Use(middleware.CORS(cfg.AllowedOrigins))
	if s.registerer != nil {
		engine.Use(middleware.Metrics(metrics.New(s.registerer)))
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		engine.Use(middleware.RateLimit(middleware.NewRateLimiter(s.logger, &cfg.RateLimit)))
	}

	s.engine = engine
	return s
}

// Router 返回 Gin 引擎，用于注册路由
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Handler 返回 http.Handler 接口
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 绑定地址并在后台服务
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrServerAlreadyStarted
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "web: listen on %s", addr)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped unexpectedly", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Addr 返回监听地址，未启动时返回 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop 立即关闭
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

// GracefulStop 优雅关闭，等待进行中的请求完成
func (s *Server) GracefulStop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "web: server forced to shutdown")
	}
	s.logger.Info("http server stopped")
	return nil
}
