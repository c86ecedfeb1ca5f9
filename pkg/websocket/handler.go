// pkg/websocket/handler.go
package websocket

// MessageHandler 连接事件处理器
// 同一连接上的回调都在该连接的读协程中顺序执行
type MessageHandler interface {
	// OnConnect 连接建立后回调；处理器可以在这里直接关闭连接以拒绝它
	OnConnect(conn *Connection) error

	// OnMessage 收到文本或二进制帧
	OnMessage(conn *Connection, msg *Message) error

	// OnDisconnect 连接断开，err 为 nil 表示正常关闭
	OnDisconnect(conn *Connection, err error)

	// OnError 传输层错误，随后一定会调用 OnDisconnect
	OnError(conn *Connection, err error)
}

// HandlerFunc 消息处理函数类型
type HandlerFunc func(conn *Connection, msg *Message) error

// FuncHandler 函数式处理器
type FuncHandler struct {
	onConnect    func(conn *Connection) error
	onMessage    func(conn *Connection, msg *Message) error
	onDisconnect func(conn *Connection, err error)
	onError      func(conn *Connection, err error)
}

// NewFuncHandler 创建函数式处理器
func NewFuncHandler() *FuncHandler {
	return &FuncHandler{}
}

// OnConnectFunc 设置连接回调
func (h *FuncHandler) OnConnectFunc(fn func(conn *Connection) error) *FuncHandler {
	h.onConnect = fn
	return h
}

// OnMessageFunc 设置消息回调
func (h *FuncHandler) OnMessageFunc(fn func(conn *Connection, msg *Message) error) *FuncHandler {
	h.onMessage = fn
	return h
}

// OnDisconnectFunc 设置断开回调
func (h *FuncHandler) OnDisconnectFunc(fn func(conn *Connection, err error)) *FuncHandler {
	h.onDisconnect = fn
	return h
}

// OnErrorFunc 设置错误回调
func (h *FuncHandler) OnErrorFunc(fn func(conn *Connection, err error)) *FuncHandler {
	h.onError = fn
	return h
}

func (h *FuncHandler) OnConnect(conn *Connection) error {
	if h.onConnect != nil {
		return h.onConnect(conn)
	}
	return nil
}

func (h *FuncHandler) OnMessage(conn *Connection, msg *Message) error {
	if h.onMessage != nil {
		return h.onMessage(conn, msg)
	}
	return nil
}

func (h *FuncHandler) OnDisconnect(conn *Connection, err error) {
	if h.onDisconnect != nil {
		h.onDisconnect(conn, err)
	}
}

func (h *FuncHandler) OnError(conn *Connection, err error) {
	if h.onError != nil {
		h.onError(conn, err)
	}
}
