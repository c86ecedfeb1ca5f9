package websocket

import (
	"net/http"
	"time"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	// MaxConnections 最大连接数，0 表示不限制
	MaxConnections int `mapstructure:"max_connections" json:"max_connections" yaml:"max_connections"`
	// MaxConnectionsPerIP 每 IP 最大连接数，0 表示不限制
	MaxConnectionsPerIP int `mapstructure:"max_connections_per_ip" json:"max_connections_per_ip" yaml:"max_connections_per_ip"`
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnections:      10000,
		MaxConnectionsPerIP: 100,
	}
}

// ServerConfig 服务端配置
type ServerConfig struct {
	ReadBufferSize  int   `mapstructure:"read_buffer_size" json:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int   `mapstructure:"write_buffer_size" json:"write_buffer_size" yaml:"write_buffer_size"`
	MaxMessageSize  int64 `mapstructure:"max_message_size" json:"max_message_size" yaml:"max_message_size"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" json:"handshake_timeout" yaml:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	PongTimeout      time.Duration `mapstructure:"pong_timeout" json:"pong_timeout" yaml:"pong_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval" json:"ping_interval" yaml:"ping_interval"`

	EnableCompression bool `mapstructure:"enable_compression" json:"enable_compression" yaml:"enable_compression"`
	SendQueueSize     int  `mapstructure:"send_queue_size" json:"send_queue_size" yaml:"send_queue_size"`

	// AllowedOrigins 为空时接受任意 Origin（桌面客户端通常不带 Origin）
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`

	Pool PoolConfig `mapstructure:"pool" json:"pool" yaml:"pool"`

	// 运行时设置，优先于 AllowedOrigins
	CheckOrigin func(r *http.Request) bool `mapstructure:"-" json:"-" yaml:"-"`
}

// DefaultServerConfig 返回默认服务端配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		MaxMessageSize:   512 * 1024,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		SendQueueSize:    256,
		Pool:             DefaultPoolConfig(),
	}
}

// Validate 验证配置并补齐缺省值
func (c *ServerConfig) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 4096
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512 * 1024
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.PingInterval > 0 && c.PongTimeout > 0 && c.PongTimeout <= c.PingInterval {
		return ErrInvalidConfig
	}
	return nil
}

// checkOrigin 构造 upgrader 的 Origin 检查函数
func (c *ServerConfig) checkOrigin() func(r *http.Request) bool {
	if c.CheckOrigin != nil {
		return c.CheckOrigin
	}
	if len(c.AllowedOrigins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
