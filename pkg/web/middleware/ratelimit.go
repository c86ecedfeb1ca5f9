package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// RequestsPerSecond 每秒请求数，0 表示不限流
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	// Burst 突发容量
	Burst int `mapstructure:"burst"`
	// PerIP 是否按 IP 限流
	PerIP bool `mapstructure:"per_ip"`
	// SkipPaths 跳过的路径
	SkipPaths []string `mapstructure:"skip_paths"`
	// MaxLimiters 按 IP 限流时最多保留的限流器数量，超出时淘汰最久未用的
	MaxLimiters int `mapstructure:"max_limiters"`
}

// DefaultRateLimitConfig 返回默认限流配置
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		PerIP:             true,
		SkipPaths:         []string{"/healthz", "/metrics"},
		MaxLimiters:       10000,
	}
}

// RateLimiter 限流器
type RateLimiter struct {
	cfg    *RateLimitConfig
	global *rate.Limiter
	logger logger.Logger

	mu       sync.Mutex
	limiters *lru.Cache
}

// NewRateLimiter 创建限流器
func NewRateLimiter(l logger.Logger, cfg *RateLimitConfig) *RateLimiter {
	size := cfg.MaxLimiters
	if size <= 0 {
		size = 10000
	}
	// size 为正时不会出错
	cache, _ := lru.New(size)

	return &RateLimiter{
		cfg:      cfg,
		global:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:   l,
		limiters: cache,
	}
}

// Allow 检查是否允许请求，key 为空时使用全局限流器
func (rl *RateLimiter) Allow(key string) bool {
	if key == "" {
		return rl.global.Allow()
	}
	return rl.getLimiter(key).Allow()
}

// getLimiter 获取或创建限流器
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.limiters.Get(key); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)
	rl.limiters.Add(key, limiter)
	return limiter
}

// RateLimit 限流中间件
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	skipPaths := make(map[string]struct{}, len(limiter.cfg.SkipPaths))
	for _, path := range limiter.cfg.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, skip := skipPaths[path]; skip {
			c.Next()
			return
		}

		var key string
		if limiter.cfg.PerIP {
			key = "ip:" + c.ClientIP()
		}

		if !limiter.Allow(key) {
			limiter.logger.Warn("rate limit exceeded", "key", key, "path", path)
			c.Header("Retry-After", strconv.Itoa(1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    40029,
				"message": "too many requests",
				"data":    nil,
			})
			return
		}

		c.Next()
	}
}
