// pkg/websocket/connection.go
package websocket

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
)

// closeWriteWait 关闭帧写入超时
const closeWriteWait = time.Second

// ConnectionOption 连接选项
type ConnectionOption func(*Connection)

// WithConnectionLogger 设置连接日志
func WithConnectionLogger(l logger.Logger) ConnectionOption {
	return func(c *Connection) {
		c.logger = l
	}
}

// WithPath 设置握手请求路径
func WithPath(path string) ConnectionOption {
	return func(c *Connection) {
		c.path = path
	}
}

// WithTimeouts 设置读写超时
func WithTimeouts(read, write time.Duration) ConnectionOption {
	return func(c *Connection) {
		c.readTimeout = read
		c.writeTimeout = write
	}
}

// WithSendQueueSize 设置发送队列长度
func WithSendQueueSize(size int) ConnectionOption {
	return func(c *Connection) {
		if size > 0 {
			c.sendQueueSize = size
		}
	}
}

// Connection WebSocket 连接封装
type Connection struct {
	id   string
	conn *websocket.Conn
	path string

	readTimeout   time.Duration
	writeTimeout  time.Duration
	sendQueueSize int

	sendChan chan *Message
	logger   logger.Logger

	mu         sync.RWMutex
	state      ConnectionState
	closed     atomic.Bool
	closeChan  chan struct{}
	closeOnce  sync.Once
	closeError error

	remoteAddr  string
	localAddr   string
	connectedAt time.Time
}

// NewConnection 创建连接
func NewConnection(conn *websocket.Conn, opts ...ConnectionOption) *Connection {
	c := &Connection{
		id:            uuid.New().String(),
		conn:          conn,
		readTimeout:   60 * time.Second,
		writeTimeout:  10 * time.Second,
		sendQueueSize: 256,
		closeChan:     make(chan struct{}),
		state:         StateConnected,
		remoteAddr:    conn.RemoteAddr().String(),
		localAddr:     conn.LocalAddr().String(),
		connectedAt:   time.Now(),
		logger:        logger.NewNoop(),
	}

	for _, opt := range opts {
		opt(c)
	}
	c.sendChan = make(chan *Message, c.sendQueueSize)

	return c
}

// ID 返回连接 ID，在连接生命周期内不变
func (c *Connection) ID() string {
	return c.id
}

// Path 返回握手请求的 URL 路径
func (c *Connection) Path() string {
	return c.path
}

// State 返回连接状态
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(state ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// RemoteAddr 返回远程地址
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// LocalAddr 返回本地地址
func (c *Connection) LocalAddr() string {
	return c.localAddr
}

// ConnectedAt 返回连接时间
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// IsClosed 检查连接是否已关闭
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Done 连接关闭时关闭的 channel
func (c *Connection) Done() <-chan struct{} {
	return c.closeChan
}

// Info 返回连接信息
func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:          c.id,
		Path:        c.path,
		RemoteAddr:  c.remoteAddr,
		State:       c.State(),
		ConnectedAt: c.connectedAt,
	}
}

// Send 发送消息，队列满时阻塞直到 ctx 结束
func (c *Connection) Send(ctx context.Context, msg *Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.sendChan <- msg:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

// SendAsync 发送消息（非阻塞）
func (c *Connection) SendAsync(msg *Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.sendChan <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// SendJSON 发送 JSON 文本消息
func (c *Connection) SendJSON(ctx context.Context, v interface{}) error {
	msg, err := NewJSONMessage(v)
	if err != nil {
		return errors.Wrap(err, "websocket: encode json message")
	}
	return c.Send(ctx, msg)
}

// ReadLoop 读取循环，阻塞直到连接结束
// 正常关闭（本端关闭、1000/1001/1005、EOF）返回 nil，其余返回传输错误
func (c *Connection) ReadLoop(handler HandlerFunc) error {
	for {
		if c.IsClosed() {
			return nil
		}

		if c.readTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return c.classifyReadError(err)
		}

		msg := &Message{
			Type:      MessageType(msgType),
			Data:      data,
			Timestamp: time.Now(),
		}

		if handler != nil {
			if err := handler(c, msg); err != nil {
				c.logger.Warn("websocket handler error", "error", err, "conn_id", c.id)
			}
		}
	}
}

func (c *Connection) classifyReadError(err error) error {
	if c.IsClosed() {
		return nil
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return errors.Wrapf(err, "websocket: read from %s", c.remoteAddr)
}

// WriteLoop 写入循环
func (c *Connection) WriteLoop() {
	defer c.Close()

	for {
		select {
		case msg := <-c.sendChan:
			if c.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.conn.WriteMessage(int(msg.Type), msg.Data); err != nil {
				c.logger.Debug("websocket write error", "error", err, "conn_id", c.id)
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// Close 以 1000 正常关闭连接
func (c *Connection) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode 发送指定关闭码与原因后关闭连接，重复调用无效
func (c *Connection) CloseWithCode(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.setState(StateClosed)
		close(c.closeChan)

		werr := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(closeWriteWait),
		)
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			c.logger.Debug("websocket close frame not sent", "error", werr, "conn_id", c.id)
		}

		err = c.conn.Close()
		c.closeError = err
	})
	return err
}

// CloseError 返回关闭底层连接时的错误
func (c *Connection) CloseError() error {
	return c.closeError
}

// Ping 发送 Ping
func (c *Connection) Ping() error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	return c.conn.WriteControl(
		websocket.PingMessage,
		[]byte{},
		time.Now().Add(c.writeTimeout),
	)
}

// SetPongHandler 设置 Pong 处理器
func (c *Connection) SetPongHandler(h func(appData string) error) {
	c.conn.SetPongHandler(h)
}

// SetReadLimit 设置读取限制
func (c *Connection) SetReadLimit(limit int64) {
	c.conn.SetReadLimit(limit)
}

// extendReadDeadline 收到 Pong 后延长读超时
func (c *Connection) extendReadDeadline(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(d))
}
