// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Backend       BackendConfig       `yaml:"backend" mapstructure:"backend"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Scope         ScopeConfig         `yaml:"scope" mapstructure:"scope"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Drafting      DraftingConfig      `yaml:"drafting" mapstructure:"drafting"`
	Templates     TemplatesConfig     `yaml:"templates" mapstructure:"templates"`
	Proxy         ProxyConfig         `yaml:"proxy" mapstructure:"proxy"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// BackendConfig 起草后端（第一方 HTTP 服务）配置
type BackendConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Timeout 普通请求超时；为 0 时不设超时，生成接口依赖用户主动取消
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// UploadTimeout 预签名直传超时
	UploadTimeout time.Duration `yaml:"upload_timeout" mapstructure:"upload_timeout"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Redis   RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ScopeConfig 作用域 UI 状态存储配置
type ScopeConfig struct {
	// Backend memory | redis
	Backend string        `yaml:"backend" mapstructure:"backend"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	Enabled     bool              `yaml:"enabled" mapstructure:"enabled"`
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen int    `yaml:"max_len" mapstructure:"max_len"`
	Stream string `yaml:"stream" mapstructure:"stream"`
}

// DraftingConfig 起草向导配置
type DraftingConfig struct {
	MinPromptLength int           `yaml:"min_prompt_length" mapstructure:"min_prompt_length"`
	DefaultLanguage string        `yaml:"default_language" mapstructure:"default_language"`
	Languages       []string      `yaml:"languages" mapstructure:"languages"`
	WizardIdleTTL   time.Duration `yaml:"wizard_idle_ttl" mapstructure:"wizard_idle_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// TemplatesConfig 模板库配置
type TemplatesConfig struct {
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	AllowedExtensions []string      `yaml:"allowed_extensions" mapstructure:"allowed_extensions"`
	CacheTTL          time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ProxyConfig 文档预览代理配置
type ProxyConfig struct {
	Path         string   `yaml:"path" mapstructure:"path"`
	AllowedHosts []string `yaml:"allowed_hosts" mapstructure:"allowed_hosts"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	Issuer  string `yaml:"issuer" mapstructure:"issuer"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
