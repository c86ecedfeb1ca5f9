package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/xdooria-proctor/pkg/web/middleware"
)

// Config Web 服务配置
type Config struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"min=0,max=65535"`
	Mode         string        `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// AllowedOrigins 为空时允许任意来源
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RateLimit middleware.RateLimitConfig `mapstructure:"rate_limit"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         8081,
		Mode:         gin.ReleaseMode,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		RateLimit:    middleware.DefaultRateLimitConfig(),
	}
}
