package proctor

import (
	"net"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/config"
	"github.com/lk2023060901/xdooria-proctor/pkg/websocket"
)

const (
	// DefaultHost 默认监听地址
	DefaultHost = "0.0.0.0"
	maxPort     = 65535
)

// Settings 配置文件中的 proctor 段
type Settings struct {
	Port          int                    `mapstructure:"port" json:"port" yaml:"port"`
	Host          string                 `mapstructure:"host" json:"host" yaml:"host" validate:"omitempty,hostname|ip"`
	Websocket     websocket.ServerConfig `mapstructure:"websocket" json:"websocket" yaml:"websocket"`
	InstallerURLs map[string]string      `mapstructure:"installer_urls" json:"installer_urls" yaml:"installer_urls" validate:"omitempty,dive,keys,required,endkeys,url"`
}

// ConfigOption 配置选项
type ConfigOption func(*Config)

// WithHost 设置监听地址，空串保持默认值
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		if host != "" {
			c.host = host
		}
	}
}

// WithWebsocket 设置 WebSocket 调优参数，未设置的字段使用默认值
func WithWebsocket(ws *websocket.ServerConfig) ConfigOption {
	return func(c *Config) {
		c.wsOverride = ws
	}
}

// WithInstallerURLs 设置各操作系统的客户端安装包下载地址
func WithInstallerURLs(urls map[string]string) ConfigOption {
	return func(c *Config) {
		c.installerURLs = copyStrings(urls)
	}
}

// Config 监考服务配置，构造后不可修改
type Config struct {
	port          int
	host          string
	websocket     *websocket.ServerConfig
	wsOverride    *websocket.ServerConfig
	installerURLs map[string]string
}

// NewConfig 创建配置，port 必须为正数
func NewConfig(port int, opts ...ConfigOption) (*Config, error) {
	if port <= 0 {
		return nil, configError("port is required")
	}
	if port > maxPort {
		return nil, configError("port must be at most 65535")
	}

	c := &Config{
		port: port,
		host: DefaultHost,
	}
	for _, opt := range opts {
		opt(c)
	}

	ws, err := config.MergeConfig(websocket.DefaultServerConfig(), c.wsOverride)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "merge websocket config"), ErrConfiguration)
	}
	if err := ws.Validate(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "websocket config"), ErrConfiguration)
	}
	c.websocket = ws
	c.wsOverride = nil

	return c, nil
}

// NewConfigFromSettings 从配置文件结构创建配置
func NewConfigFromSettings(s *Settings) (*Config, error) {
	if s == nil {
		return nil, configError("port is required")
	}
	if err := config.NewValidator().Validate(s); err != nil {
		return nil, errors.Mark(err, ErrConfiguration)
	}

	ws := s.Websocket
	return NewConfig(s.Port,
		WithHost(s.Host),
		WithWebsocket(&ws),
		WithInstallerURLs(s.InstallerURLs),
	)
}

// Port 返回监听端口
func (c *Config) Port() int {
	return c.port
}

// Host 返回监听地址
func (c *Config) Host() string {
	return c.host
}

// Addr 返回 host:port
func (c *Config) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Websocket 返回 WebSocket 配置副本
func (c *Config) Websocket() *websocket.ServerConfig {
	ws := *c.websocket
	return &ws
}

// InstallerURLs 返回安装包下载地址副本
func (c *Config) InstallerURLs() map[string]string {
	return copyStrings(c.installerURLs)
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
