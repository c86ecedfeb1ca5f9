//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/lk2023060901/xdooria-proctor/app/proctor/internal/handler"
	"github.com/lk2023060901/xdooria-proctor/pkg/app"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	prom "github.com/prometheus/client_golang/prometheus"
)

func InitApp(cfg *Config, l logger.Logger) (app.Application, func(), error) {
	panic(wire.Build(
		// 1. 基础框架 (BaseApp)
		provideAppOptions,
		app.ProviderSet,

		// 2. 指标
		provideMetricsClient,
		provideMetricsRegistry,
		wire.Bind(new(prom.Gatherer), new(*prom.Registry)),

		// 3. 监考 WebSocket 服务
		provideProctorConfig,
		provideSDK,

		// 4. 违规转发 (Kafka)
		provideKafkaClient,
		provideViolationSink,

		// 5. 会话监听器
		wire.Bind(new(handler.LoggerProvider), new(*app.BaseApp)),
		handler.NewSessionHandler,

		// 6. 管理接口
		provideAdminServer,
		handler.NewAdminHandler,

		// 7. 组装
		provideAppComponents,
		app.InitApp,
	))
}
