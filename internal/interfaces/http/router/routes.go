package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h *RouterHandlers) {
	// 起草向导
	wizards := v1.Group("/drafting-wizards")
	{
		wizards.POST("", h.Wizard.Open)
		wizards.GET("/:wid", h.Wizard.Get)
		wizards.PATCH("/:wid", h.Wizard.Update)
		wizards.DELETE("/:wid", h.Wizard.Close)
		wizards.PUT("/:wid/answers/:idx", h.Wizard.SetAnswer)
		wizards.POST("/:wid/inquiry", h.Wizard.Inquiry)
		wizards.POST("/:wid/generate", h.Wizard.Generate)
		wizards.POST("/:wid/skip", h.Wizard.Skip)
		wizards.POST("/:wid/back", h.Wizard.Back)
	}

	// 对话框 UI 状态
	scopes := v1.Group("/scopes")
	{
		scopes.POST("/:key", h.Scope.Init)
		scopes.GET("/:key", h.Scope.Get)
		scopes.DELETE("/:key", h.Scope.Reset)
		scopes.PATCH("/:key", h.Scope.Command)
		scopes.PATCH("/:key/form", h.Scope.MergeForm)
		scopes.POST("/:key/files", h.Scope.AddFiles)
		scopes.POST("/:key/entries/:field", h.Scope.AddEntry)
		scopes.DELETE("/:key/entries/:field/:idx", h.Scope.RemoveEntry)
		scopes.GET("/:key/events", h.Scope.Events)
	}

	// 模板库与预览
	templates := v1.Group("/templates")
	{
		templates.GET("", h.Template.List)
		templates.POST("/upload", h.Template.Upload)
	}
	v1.GET("/documents/:id/preview", h.Template.Preview)
	v1.GET("/public/preview", h.Template.PublicPreview)
}
