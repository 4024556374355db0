// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lexdraft-bff/internal/infrastructure/backend"
	apperrors "lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/logger"
	"lexdraft-bff/pkg/utils"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// SkipPaths 跳过认证的路径前缀
	SkipPaths []string
	// Enabled 是否启用认证
	Enabled bool
	// DevUserID 关闭认证时使用的用户
	DevUserID string
}

// Auth 认证中间件
// 校验通过后把用户信息写入 gin 与 logger context，并把令牌继续转发给起草后端
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)
	if cfg.DevUserID == "" {
		cfg.DevUserID = "dev-user"
	}

	return func(c *gin.Context) {
		for _, path := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		if !cfg.Enabled {
			setIdentity(c, "", cfg.DevUserID, "")
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, apperrors.ErrTokenMissing)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			abortUnauthorized(c, apperrors.ErrTokenInvalid.WithDetail("invalid authorization format"))
			return
		}
		token := parts[1]

		claims, err := jwtManager.ParseToken(token)
		if err != nil {
			if errors.Is(err, utils.ErrExpiredToken) {
				abortUnauthorized(c, apperrors.ErrTokenExpired)
				return
			}
			abortUnauthorized(c, apperrors.ErrTokenInvalid)
			return
		}

		// 确保是 AccessToken
		if claims.Type != "access" {
			abortUnauthorized(c, apperrors.ErrTokenInvalid.WithDetail("invalid token type"))
			return
		}

		c.Set("role", claims.Role)
		setIdentity(c, claims.TenantID, claims.UserID, token)
		c.Next()
	}
}

func setIdentity(c *gin.Context, tenantID, userID, token string) {
	c.Set("tenant_id", tenantID)
	c.Set("user_id", userID)

	ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
	if tenantID != "" {
		ctx = logger.WithContext(ctx, logger.TenantIDKey, tenantID)
	}
	if token != "" {
		ctx = backend.WithAccessToken(ctx, token)
	}
	c.Request = c.Request.WithContext(ctx)
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, err *apperrors.AppError) {
	body := gin.H{
		"code":     http.StatusUnauthorized,
		"message":  err.Message,
		"error":    gin.H{"error_code": err.Code, "details": err.Detail},
		"trace_id": c.GetString("trace_id"),
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, body)
}

// GetUserIDFromGin 从 Gin Context 中获取用户 ID
func GetUserIDFromGin(c *gin.Context) string {
	return c.GetString("user_id")
}

// GetTenantIDFromGin 从 Gin Context 中获取租户 ID
func GetTenantIDFromGin(c *gin.Context) string {
	return c.GetString("tenant_id")
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
