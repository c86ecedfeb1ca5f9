package prometheus

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("prometheus: invalid config")

	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("prometheus: client closed")

	// ErrServerStarted 指标服务已启动
	ErrServerStarted = errors.New("prometheus: server already started")
)
