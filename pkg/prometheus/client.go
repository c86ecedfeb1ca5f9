// Package prometheus 提供进程级指标注册表与可选的独立指标服务。
package prometheus

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option 客户端选项
type Option func(*Client)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client Prometheus 客户端
type Client struct {
	config   *Config
	registry *prometheus.Registry
	logger   logger.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener

	closed atomic.Bool
}

// New 创建 Prometheus 客户端，独立指标服务在 Start 时才监听
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		logger:   logger.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("prometheus")

	if cfg.EnableGoCollector {
		c.registry.MustRegister(collectors.NewGoCollector())
	}
	if cfg.EnableProcessCollector {
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return c, nil
}

// Registry 获取底层 Registry
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 HTTP Handler（用于集成到现有 HTTP 服务器）
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Config 获取配置
func (c *Client) Config() *Config {
	return c.config
}

// Start 启用独立指标服务时开始监听，未启用时不做任何事
func (c *Client) Start() error {
	if !c.config.HTTPServer.Enabled {
		return nil
	}
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpServer != nil {
		return ErrServerStarted
	}

	ln, err := net.Listen("tcp", c.config.HTTPServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "prometheus: listen %s", c.config.HTTPServer.Addr)
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.HTTPServer.Path, c.Handler())

	c.listener = ln
	c.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  c.config.HTTPServer.Timeout,
		WriteTimeout: c.config.HTTPServer.Timeout,
	}

	srv := c.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server exited", "error", err)
		}
	}()

	c.logger.Info("metrics server started", "addr", ln.Addr().String(), "path", c.config.HTTPServer.Path)
	return nil
}

// Addr 返回独立指标服务的监听地址，未启动时返回 nil
func (c *Client) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Stop 立即关闭独立指标服务
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpServer == nil {
		return nil
	}
	return c.httpServer.Close()
}

// GracefulStop 等待进行中的抓取完成后关闭
func (c *Client) GracefulStop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpServer == nil {
		return nil
	}
	return c.httpServer.Shutdown(ctx)
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.Stop()
}

// IsClosed 检查客户端是否已关闭
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
