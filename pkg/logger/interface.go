// pkg/logger/interface.go
package logger

// Logger 日志接口
// 其他 pkg 模块只依赖此接口，参数为 key-value 对
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})

	// Named 派生具名 logger
	Named(name string) Logger
	// WithFields 派生带固定字段的 logger
	WithFields(keysAndValues ...interface{}) Logger

	Sync() error
}
