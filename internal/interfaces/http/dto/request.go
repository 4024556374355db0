package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// PageRequest 分页请求参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"limit" json:"limit"`
}

// Normalize 规范化分页参数
func (r *PageRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
	if r.PageSize > 100 {
		r.PageSize = 100
	}
}

// BindPage 从 Gin Context 绑定分页参数，limit 与 page_size 均可
func BindPage(c *gin.Context) PageRequest {
	size := c.Query("limit")
	if size == "" {
		size = c.Query("page_size")
	}
	req := PageRequest{
		Page:     parseIntWithDefault(c.Query("page"), 1),
		PageSize: parseIntWithDefault(size, 20),
	}
	req.Normalize()
	return req
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// BindWizardID 从 URI 绑定向导 ID
func BindWizardID(c *gin.Context) string {
	return c.Param("wid")
}

// BindScopeKey 从 URI 绑定作用域键
func BindScopeKey(c *gin.Context) string {
	return c.Param("key")
}
