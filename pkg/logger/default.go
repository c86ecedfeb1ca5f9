package logger

import (
	"os"
	"sync"

	"github.com/lk2023060901/xdooria-proctor/pkg/config"
)

var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
)

// InitDefault 使用配置初始化默认 logger
func InitDefault(cfg *Config, opts ...Option) error {
	l, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	SetDefault(l)
	return nil
}

// InitDefaultFromEnv 从环境变量初始化默认 logger
// 环境变量前缀: PROCTOR_LOG_
func InitDefaultFromEnv() error {
	envConfig := &Config{}
	if level := os.Getenv("PROCTOR_LOG_LEVEL"); level != "" {
		envConfig.Level = Level(level)
	}
	if format := os.Getenv("PROCTOR_LOG_FORMAT"); format != "" {
		envConfig.Format = Format(format)
	}
	if path := os.Getenv("PROCTOR_LOG_PATH"); path != "" {
		envConfig.EnableFile = true
		envConfig.OutputPath = path
	}
	if os.Getenv("PROCTOR_LOG_DEVELOPMENT") == "true" {
		envConfig.Development = true
	}

	merged, err := config.MergeConfig(DefaultConfig(), envConfig)
	if err != nil {
		return err
	}
	return InitDefault(merged)
}

// SetDefault 设置默认 logger
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default 获取默认 logger，未初始化时懒加载控制台 logger
func Default() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		bl, err := New(DefaultConfig())
		if err != nil {
			panic(err)
		}
		defaultLogger = bl
	}
	return defaultLogger
}
