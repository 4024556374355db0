// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"lexdraft-bff/internal/application/drafting"
	"lexdraft-bff/internal/application/scope"
	"lexdraft-bff/internal/application/template"
	"lexdraft-bff/internal/config"
	"lexdraft-bff/internal/infrastructure/backend"
	"lexdraft-bff/internal/infrastructure/messaging"
	"lexdraft-bff/internal/infrastructure/persistence/redis"
	"lexdraft-bff/internal/interfaces/http/handler"
	"lexdraft-bff/internal/interfaces/http/middleware"
	"lexdraft-bff/internal/interfaces/http/router"
	"lexdraft-bff/pkg/logger"
)

// App 应用根对象
type App struct {
	Router   *router.Router
	Registry *drafting.Registry
}

var BackendSet = wire.NewSet(
	ProvideBackendClient,
	wire.Bind(new(drafting.DraftingBackend), new(*backend.Client)),
	wire.Bind(new(template.Gateway), new(*backend.Client)),
)

var RedisSet = wire.NewSet(
	ProvideRedisClientOptional,
	ProvideTemplateCache,
	ProvideRateLimiter,
)

var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	ProvideProjectHandoff,
	ProvideAuditPublisher,
)

var ApplicationSet = wire.NewSet(
	ProvideScopeStore,
	ProvideTemplateService,
	ProvideDraftingRegistry,
	wire.Bind(new(handler.ScopeStore), new(*scope.Store)),
)

var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideProxyHandler,
	handler.NewWizardHandler,
	handler.NewScopeHandler,
	handler.NewTemplateHandler,
	wire.Struct(new(router.RouterHandlers), "*"),
	router.NewWithDeps,
)

// redisRequired 任一组件启用 Redis 时需要建立连接
func redisRequired(cfg *config.Config) bool {
	return cfg.Cache.Enabled ||
		cfg.Scope.Backend == "redis" ||
		cfg.Messaging.Enabled ||
		cfg.Security.RateLimit.Enabled
}

func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !redisRequired(cfg) {
		logger.Info(ctx, "redis not configured, using in-process state")
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideBackendClient(cfg *config.Config) (*backend.Client, error) {
	return backend.NewClient(&cfg.Backend, cfg.Proxy.Path)
}

// ProvideTemplateCache 未启用缓存时返回 nil 接口
func ProvideTemplateCache(cfg *config.Config, client *redis.Client) template.Cache {
	if !cfg.Cache.Enabled || client == nil {
		return nil
	}
	return redis.NewCache(client)
}

func ProvideRateLimiter(cfg *config.Config, client *redis.Client) middleware.RateLimiter {
	if !cfg.Security.RateLimit.Enabled || client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

func ProvideMessagingProducer(cfg *config.Config, client *redis.Client) *messaging.Producer {
	if !cfg.Messaging.Enabled || client == nil {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(client.Redis(), int64(maxLen), cfg.Messaging.RedisStream.Stream)
}

func ProvideProjectHandoff(producer *messaging.Producer) drafting.ProjectHandoff {
	if producer == nil {
		return nil
	}
	return producer
}

func ProvideAuditPublisher(producer *messaging.Producer) middleware.AuditPublisher {
	if producer == nil {
		return nil
	}
	return producer
}

func ProvideScopeStore(cfg *config.Config, client *redis.Client) *scope.Store {
	if cfg.Scope.Backend == "redis" && client != nil {
		return scope.NewStore(redis.NewScopeBackend(client, cfg.Scope.TTL))
	}
	return scope.NewStore(scope.NewMemoryBackend())
}

func ProvideTemplateService(gw template.Gateway, cache template.Cache, cfg *config.Config) *template.Service {
	return template.NewService(gw, cache, template.Config{
		MaxUploadBytes:    cfg.Templates.MaxUploadBytes,
		AllowedExtensions: cfg.Templates.AllowedExtensions,
		CacheTTL:          cfg.Templates.CacheTTL,
	})
}

func ProvideDraftingRegistry(be drafting.DraftingBackend, handoff drafting.ProjectHandoff, cfg *config.Config) *drafting.Registry {
	return drafting.NewRegistry(be, handoff, drafting.Options{
		MinPromptLength: cfg.Drafting.MinPromptLength,
		DefaultLanguage: cfg.Drafting.DefaultLanguage,
		Languages:       cfg.Drafting.Languages,
	})
}

func ProvideHealthHandler(be *backend.Client, client *redis.Client, cfg *config.Config) *handler.HealthHandler {
	var redisChecker handler.Checker
	if client != nil {
		redisChecker = client
	}
	return handler.NewHealthHandler(be, redisChecker, cfg.App.Version)
}

func ProvideProxyHandler(cfg *config.Config) *handler.ProxyHandler {
	return handler.NewProxyHandler(cfg.Proxy.AllowedHosts, cfg.Backend.UploadTimeout)
}
