package app

import (
	"github.com/google/wire"
)

// AppComponents 用于收集 Wire 注入的所有组件
type AppComponents struct {
	Servers []Server
	Closers []Closer
}

// ProviderSet 导出给 Wire 使用
var ProviderSet = wire.NewSet(
	NewBaseApp,
)

// InitApp 将 Wire 注入的组件绑定到 BaseApp
func InitApp(app *BaseApp, comps AppComponents) Application {
	app.AppendServer(comps.Servers...)
	app.AppendCloser(comps.Closers...)
	return app
}

// CloserFunc 将函数适配为 Closer
type CloserFunc func() error

func (f CloserFunc) Close() error {
	return f()
}
