// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// envPlaceholder 匹配 ${VAR} 或 ${VAR:default}
// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
var envPlaceholder = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 从 configs/ 目录加载配置
func Load() (*Config, error) {
	return LoadFrom("configs")
}

// LoadFrom 加载指定目录下的配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 默认配置（缺失时只使用内置默认值）
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), true); err != nil {
		return nil, err
	}

	// 2. 环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 环境变量覆盖，例如 BACKEND_BASE_URL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符，未定义且无默认值的保持原样
func expandEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPlaceholder.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	switch c.Scope.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("scope.backend must be memory or redis, got %q", c.Scope.Backend)
	}
	if c.Drafting.MinPromptLength <= 0 {
		return fmt.Errorf("drafting.min_prompt_length must be positive")
	}
	if len(c.Drafting.Languages) == 0 {
		return fmt.Errorf("drafting.languages must not be empty")
	}
	found := false
	for _, l := range c.Drafting.Languages {
		if l == c.Drafting.DefaultLanguage {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("drafting.default_language %q is not in drafting.languages", c.Drafting.DefaultLanguage)
	}
	if c.Security.JWT.Enabled && c.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is required when jwt is enabled")
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lexdraft-bff")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值；生成请求耗时较长，写超时放宽
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "10m")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "30s")

	v.SetDefault("backend.base_url", "http://localhost:8000/api")
	v.SetDefault("backend.timeout", "0s")
	v.SetDefault("backend.upload_timeout", "10m")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 20)
	v.SetDefault("cache.redis.min_idle_conns", 2)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")

	v.SetDefault("scope.backend", "memory")
	v.SetDefault("scope.ttl", "12h")

	v.SetDefault("messaging.enabled", false)
	v.SetDefault("messaging.redis_stream.max_len", 100000)
	v.SetDefault("messaging.redis_stream.stream", "stream:drafting:generated")

	v.SetDefault("drafting.min_prompt_length", 50)
	v.SetDefault("drafting.default_language", "English")
	v.SetDefault("drafting.languages", []string{
		"English", "Spanish", "French", "German", "Italian", "Portuguese", "Dutch", "Arabic", "Chinese", "Japanese",
	})
	v.SetDefault("drafting.wizard_idle_ttl", "2h")
	v.SetDefault("drafting.sweep_interval", "5m")

	v.SetDefault("templates.max_upload_bytes", 20<<20)
	v.SetDefault("templates.allowed_extensions", []string{".pdf", ".docx", ".doc", ".txt"})
	v.SetDefault("templates.cache_ttl", "60s")

	v.SetDefault("proxy.path", "/proxy-pdf")
	v.SetDefault("proxy.allowed_hosts", []string{})

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("security.jwt.enabled", true)
	v.SetDefault("security.jwt.secret", "")
	v.SetDefault("security.jwt.issuer", "lexdraft-auth")
	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests_per_second", 20)
}
