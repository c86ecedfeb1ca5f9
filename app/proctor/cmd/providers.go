package main

import (
	"github.com/lk2023060901/xdooria-proctor/app/proctor/internal/handler"
	"github.com/lk2023060901/xdooria-proctor/app/proctor/internal/sink"
	"github.com/lk2023060901/xdooria-proctor/pkg/app"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/mq/kafka"
	"github.com/lk2023060901/xdooria-proctor/pkg/proctor"
	"github.com/lk2023060901/xdooria-proctor/pkg/prometheus"
	"github.com/lk2023060901/xdooria-proctor/pkg/web"
	prom "github.com/prometheus/client_golang/prometheus"
)

// defaultLaunchPath 演示客户端使用的会话 ID
const defaultLaunchPath = "real-time-test-session"

func provideAppOptions(cfg *Config, l logger.Logger) []app.Option {
	return []app.Option{
		app.WithName(app.AppName),
		app.WithLogger(l),
		app.WithNamedLoggers(cfg.Loggers),
		app.WithStopTimeout(cfg.StopTimeout),
	}
}

// provideMetricsClient 提供进程级指标客户端
func provideMetricsClient(cfg *Config, l logger.Logger) (*prometheus.Client, error) {
	return prometheus.New(&cfg.Metrics, prometheus.WithLogger(l))
}

// provideMetricsRegistry 所有组件共用同一个注册表
func provideMetricsRegistry(c *prometheus.Client) *prom.Registry {
	return c.Registry()
}

// provideProctorConfig 校验并生成不可变的监考配置
func provideProctorConfig(cfg *Config) (*proctor.Config, error) {
	return proctor.NewConfigFromSettings(&cfg.Proctor)
}

func provideSDK(pcfg *proctor.Config, reg *prom.Registry, l logger.Logger) (*proctor.SDK, error) {
	return proctor.New(pcfg,
		proctor.WithLogger(l),
		proctor.WithMetricsRegisterer(reg),
	)
}

// provideKafkaClient 未启用时返回 nil 客户端
func provideKafkaClient(cfg *Config, l logger.Logger) (*kafka.Client, func(), error) {
	if !cfg.Kafka.Enable {
		return nil, func() {}, nil
	}

	client, err := kafka.New(&cfg.Kafka.Config,
		kafka.WithLogger(l.Named("kafka")),
		kafka.WithProducerMiddleware(
			kafka.ProducerRecoveryMiddleware(l),
			kafka.ProducerLoggingMiddleware(l),
		),
	)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Error("failed to close kafka client", "error", err)
		}
	}
	return client, cleanup, nil
}

func provideViolationSink(cfg *Config, client *kafka.Client, l logger.Logger) (*sink.ViolationSink, error) {
	return sink.NewFromClient(client, &cfg.Kafka, l)
}

// provideAdminServer 管理接口与监考服务共用指标注册表
func provideAdminServer(cfg *Config, reg *prom.Registry, l logger.Logger) *web.Server {
	return web.NewServer(&cfg.Admin, l, web.WithMetricsRegisterer(reg))
}

func provideAppComponents(
	baseApp *app.BaseApp,
	sdk *proctor.SDK,
	metricsClient *prometheus.Client,
	adminServer *web.Server,
	adminHandler *handler.AdminHandler,
	sessionHandler *handler.SessionHandler,
	violations *sink.ViolationSink,
	cfg *Config,
) app.AppComponents {
	// 每个新会话挂载日志与违规转发
	sdk.OnSession(sessionHandler.Attach)

	// 注册管理接口路由
	adminHandler.Register(adminServer.Router())

	launchPath := cfg.LaunchPath
	if launchPath == "" {
		launchPath = defaultLaunchPath
	}

	return app.AppComponents{
		Servers: []app.Server{
			sdk,
			metricsClient,
			adminServer,
			&launchNotice{sdk: sdk, path: launchPath, logger: baseApp.AppLogger()},
		},
		Closers: []app.Closer{
			metricsClient,
			violations,
		},
	}
}

// launchNotice 服务启动后打印客户端启动地址，实现 app.Server 接口
type launchNotice struct {
	sdk    *proctor.SDK
	path   string
	logger logger.Logger
}

func (n *launchNotice) URL() string {
	return "ws://" + n.sdk.Addr().String() + "/" + n.path
}

func (n *launchNotice) Start() error {
	n.logger.Info("proctoring client can connect", "url", n.URL())
	return nil
}

func (n *launchNotice) Stop() error {
	return nil
}
