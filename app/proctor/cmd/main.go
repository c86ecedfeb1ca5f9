package main

import (
	"time"

	"github.com/lk2023060901/xdooria-proctor/app/proctor/internal/sink"
	"github.com/lk2023060901/xdooria-proctor/pkg/app"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/proctor"
	"github.com/lk2023060901/xdooria-proctor/pkg/prometheus"
	"github.com/lk2023060901/xdooria-proctor/pkg/web"
)

// Config 监考服务的完整配置结构
type Config struct {
	Log     logger.Config             `mapstructure:"log"`
	Loggers map[string]*logger.Config `mapstructure:"loggers"`

	// StopTimeout 优雅停止超时
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// LaunchPath 客户端启动地址的路径，即演示用的会话 ID
	LaunchPath string `mapstructure:"launch_path"`

	// 监考 WebSocket 服务
	Proctor proctor.Settings `mapstructure:"proctor"`

	// 管理接口
	Admin web.Config `mapstructure:"admin"`

	// 指标
	Metrics prometheus.Config `mapstructure:"metrics"`

	// 违规转发
	Kafka sink.Config `mapstructure:"kafka"`
}

func main() {
	var cfg Config

	// 1. 加载配置
	if err := app.LoadConfig(&cfg); err != nil {
		panic(err)
	}

	// 2. 初始化主日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}

	// 3. 通过 Wire 初始化应用
	application, cleanup, err := InitApp(&cfg, l)
	if err != nil {
		l.Error("failed to initialize application", "error", err)
		return
	}
	defer cleanup()

	// 4. 运行服务
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
	}
}
