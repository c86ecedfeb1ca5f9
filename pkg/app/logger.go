package app

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
)

// LoggerRegistry 管理应用中的具名日志对象
type LoggerRegistry struct {
	mu      sync.RWMutex
	loggers map[string]logger.Logger
}

func NewLoggerRegistry() *LoggerRegistry {
	return &LoggerRegistry{
		loggers: make(map[string]logger.Logger),
	}
}

// Register 注册一个具名 Logger，同名覆盖
func (r *LoggerRegistry) Register(name string, l logger.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggers[name] = l
}

// Get 获取一个具名 Logger，如果不存在则返回 nil
func (r *LoggerRegistry) Get(name string) logger.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loggers[name]
}

// Names 返回已注册的名称，按字典序
func (r *LoggerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SyncAll 同步所有已注册的 Logger
func (r *LoggerRegistry) SyncAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.loggers {
		_ = l.Sync()
	}
}

// InitLoggers 根据配置初始化多个具名 Logger，任一失败则不注册任何一个
func (r *LoggerRegistry) InitLoggers(configs map[string]*logger.Config) error {
	built := make(map[string]logger.Logger, len(configs))
	for name, cfg := range configs {
		if cfg == nil {
			continue
		}
		l, err := logger.New(cfg)
		if err != nil {
			return errors.Wrapf(err, "init logger %q", name)
		}
		built[name] = l.Named(name)
	}
	for name, l := range built {
		r.Register(name, l)
	}
	return nil
}
