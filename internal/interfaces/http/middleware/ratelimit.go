package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lexdraft-bff/internal/infrastructure/persistence/redis"
	"lexdraft-bff/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond int
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按用户与路由限流；limiter 为 nil 时放行
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}

	return func(c *gin.Context) {
		subject := c.GetString("user_id")
		if subject == "" {
			subject = c.ClientIP()
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		allowed, err := limiter.Allow(c.Request.Context(), redis.BuildRateLimitKey(subject, route), cfg.RequestsPerSecond, time.Second)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     http.StatusTooManyRequests,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
