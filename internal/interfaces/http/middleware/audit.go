package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lexdraft-bff/internal/infrastructure/messaging"
	"lexdraft-bff/pkg/logger"
)

// AuditPublisher 审计日志投递
type AuditPublisher interface {
	PublishAuditLog(ctx context.Context, log *messaging.AuditLogMessage) (string, error)
}

// AuditConfig 审计配置
type AuditConfig struct {
	Enabled   bool
	SkipPaths []string
}

// Audit 审计中间件
// 所有请求记录日志；写操作在 publisher 非 nil 时额外投递到审计流
func Audit(cfg AuditConfig, publisher AuditPublisher) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		for _, path := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		ctx := c.Request.Context()
		logger.Info(ctx, "api audit",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
			"tenant_id", c.GetString("tenant_id"),
			"user_id", c.GetString("user_id"),
			"request_id", c.GetString("request_id"),
		)

		if publisher == nil || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		msg := &messaging.AuditLogMessage{
			TenantID:     c.GetString("tenant_id"),
			UserID:       c.GetString("user_id"),
			Action:       c.Request.Method + " " + route,
			ResourceType: resourceType(route),
			ResourceID:   firstParam(c),
			RequestID:    c.GetString("request_id"),
			TraceID:      c.GetString("trace_id"),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			StatusCode:   c.Writer.Status(),
			Metadata:     map[string]any{"duration_ms": duration.Milliseconds()},
		}
		if _, err := publisher.PublishAuditLog(context.WithoutCancel(ctx), msg); err != nil {
			logger.Warn(ctx, "failed to publish audit log", "error", err.Error())
		}
	}
}

// resourceType 取路由中 /v1 之后的第一段
func resourceType(route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	for i, s := range segments {
		if s == "v1" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	if len(segments) > 0 {
		return segments[0]
	}
	return ""
}

func firstParam(c *gin.Context) string {
	if len(c.Params) == 0 {
		return ""
	}
	return c.Params[0].Value
}

// DefaultAuditSkipPaths 默认跳过审计的路径
var DefaultAuditSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
