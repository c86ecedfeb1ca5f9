package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAppAlreadyRunning = errors.New("application is already running")
	ErrShutdownTimeout   = errors.New("application shutdown timed out")
)

// Application 定义了框架级应用的接口
type Application interface {
	Run() error
	Stop()
	Shutdown() error
	Logger(name string) logger.Logger
	AppLogger() logger.Logger
	SetAppLogger(l logger.Logger)
}

// Server 定义了服务接口（如 WebSocket, HTTP）
type Server interface {
	Start() error
	Stop() error
}

// GracefulServer 定义了支持优雅停止的服务器
type GracefulServer interface {
	Server
	GracefulStop(ctx context.Context) error
}

// Closer 定义了资源清理接口（如 Kafka 生产者）
type Closer interface {
	Close() error
}

// BaseApp 提供了 Application 接口的基础实现
type BaseApp struct {
	opts     Options
	logger   logger.Logger
	registry *LoggerRegistry
	servers  []Server
	closers  []Closer

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex

	// 状态管理
	started atomic.Bool
	closed  atomic.Bool
}

// NewBaseApp 创建一个新的 BaseApp 实例
func NewBaseApp(opts ...Option) *BaseApp {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &BaseApp{
		opts:     o,
		logger:   o.Logger.Named(o.Name),
		registry: NewLoggerRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}

	// 如果配置中已经带了日志定义，立即执行初始化
	if o.LogConfig != nil {
		if l, err := logger.New(o.LogConfig); err == nil {
			a.logger = l.Named(o.Name)
		}
	}

	return a
}

// ID 返回应用实例 ID
func (a *BaseApp) ID() string {
	return a.opts.ID
}

// Name 返回应用名称
func (a *BaseApp) Name() string {
	return a.opts.Name
}

// SetAppLogger 替换应用主日志对象
func (a *BaseApp) SetAppLogger(l logger.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger = l
}

// AppLogger 获取应用主日志对象
func (a *BaseApp) AppLogger() logger.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logger
}

// Logger 获取具名 Logger，未注册时从主日志派生
func (a *BaseApp) Logger(name string) logger.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if l := a.registry.Get(name); l != nil {
		return l
	}
	return a.logger.Named(name)
}

// RegisterLogger 注册具名 Logger
func (a *BaseApp) RegisterLogger(name string, l logger.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registry.Register(name, l)
}

// Run 启动应用程序并阻塞，直到收到退出信号或调用 Stop
func (a *BaseApp) Run() error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAppAlreadyRunning
	}

	// 初始化具名日志对象
	if len(a.opts.NamedLoggers) > 0 {
		if err := a.registry.InitLoggers(a.opts.NamedLoggers); err != nil {
			a.logger.Error("failed to initialize named loggers from config", "error", err)
			return err
		}
	}

	info := GetInfo()
	fmt.Println(info.String())

	a.logger.Info("application starting",
		"name", a.opts.Name,
		"version", a.opts.Version,
		"commit", info.GitCommit,
		"build_date", info.BuildDate,
		"go_version", info.GoVersion,
		"id", a.opts.ID,
	)

	a.mu.RLock()
	servers := append([]Server(nil), a.servers...)
	a.mu.RUnlock()

	for _, srv := range servers {
		if err := srv.Start(); err != nil {
			a.logger.Error("failed to start server", "error", err)
			_ = a.Shutdown()
			return errors.Wrap(err, "start server")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-a.ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	return a.Shutdown()
}

// Stop 通知 Run 退出，由 Run 完成关闭流程
func (a *BaseApp) Stop() {
	a.cancel()
}

// Done 在 Stop 或 Shutdown 后关闭
func (a *BaseApp) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Shutdown 并行停止所有服务器，再逆序关闭资源
func (a *BaseApp) Shutdown() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.RLock()
	servers := append([]Server(nil), a.servers...)
	closers := append([]Closer(nil), a.closers...)
	a.mu.RUnlock()

	a.cancel()
	a.logger.Info("application shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.StopTimeout)
	defer cancel()

	var g errgroup.Group
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			err := stopServer(ctx, srv)
			if err != nil {
				a.logger.Error("failed to stop server", "error", err)
			}
			return err
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	var result error
	select {
	case err := <-done:
		if err == nil {
			a.logger.Info("all servers stopped")
		}
		result = err
	case <-ctx.Done():
		a.logger.Warn("shutdown timeout, forcing exit", "timeout", a.opts.StopTimeout)
		result = ErrShutdownTimeout
	}

	// 逆序关闭所有 Closer 组件（LIFO）
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			a.logger.Error("failed to close component", "error", err)
			result = errors.CombineErrors(result, err)
		}
	}

	a.registry.SyncAll()
	a.logger.Info("application exited")
	_ = a.logger.Sync()
	return result
}

func stopServer(ctx context.Context, s Server) error {
	if gs, ok := s.(GracefulServer); ok {
		return gs.GracefulStop(ctx)
	}
	return s.Stop()
}

// AppendServer 添加服务器，按添加顺序启动
func (a *BaseApp) AppendServer(srv ...Server) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, srv...)
}

// AppendCloser 添加资源清理组件
func (a *BaseApp) AppendCloser(closer ...Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer...)
}
