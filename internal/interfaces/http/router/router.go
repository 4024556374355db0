// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lexdraft-bff/internal/config"
	"lexdraft-bff/internal/interfaces/http/handler"
	"lexdraft-bff/internal/interfaces/http/middleware"
)

// RouterHandlers 路由依赖的处理器集合
type RouterHandlers struct {
	Health   *handler.HealthHandler
	Wizard   *handler.WizardHandler
	Scope    *handler.ScopeHandler
	Template *handler.TemplateHandler
	Proxy    *handler.ProxyHandler
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
}

// NewWithDeps 创建路由器；limiter 与 audit 未启用 Redis 时为 nil
func NewWithDeps(cfg *config.Config, handlers *RouterHandlers, limiter middleware.RateLimiter, audit middleware.AuditPublisher) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine: gin.New(),
		cfg:    cfg,
	}

	r.setupMiddleware(audit)
	r.setupRoutes(handlers, limiter)

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置全局中间件
func (r *Router) setupMiddleware(audit middleware.AuditPublisher) {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.Auth(middleware.AuthConfig{
		Secret:    r.cfg.Security.JWT.Secret,
		Issuer:    r.cfg.Security.JWT.Issuer,
		Enabled:   r.cfg.Security.JWT.Enabled,
		// 预览代理由浏览器直接打开，无法携带 Bearer 头
		SkipPaths: append(append([]string{}, middleware.DefaultSkipPaths...), r.proxyPath()),
	}))

	r.engine.Use(middleware.Audit(middleware.AuditConfig{
		Enabled:   true,
		SkipPaths: middleware.DefaultAuditSkipPaths,
	}, audit))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes(h *RouterHandlers, limiter middleware.RateLimiter) {
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	r.engine.GET(r.proxyPath(), h.Proxy.Proxy)

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
	}, limiter))

	RegisterV1Routes(v1, h)
}

func (r *Router) proxyPath() string {
	if r.cfg.Proxy.Path == "" {
		return "/proxy-pdf"
	}
	return r.cfg.Proxy.Path
}
