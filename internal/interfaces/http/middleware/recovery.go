package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/logger"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", err),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":     http.StatusInternalServerError,
					"message":  "internal server error",
					"error":    gin.H{"error_code": errors.CodeInternalError},
					"trace_id": c.GetString("trace_id"),
				})
			}
		}()

		c.Next()
	}
}
