package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lexdraft-bff/internal/application/scope"
	"lexdraft-bff/internal/domain/entity"
	"lexdraft-bff/internal/interfaces/http/dto"
	"lexdraft-bff/pkg/logger"
)

// ScopeStore 作用域状态读写
type ScopeStore interface {
	scope.Reader
	scope.Commands
}

// ScopeHandler 作用域 UI 状态处理器
type ScopeHandler struct {
	store     ScopeStore
	heartbeat time.Duration
}

// NewScopeHandler 创建作用域处理器
func NewScopeHandler(store ScopeStore) *ScopeHandler {
	return &ScopeHandler{store: store, heartbeat: 15 * time.Second}
}

func (h *ScopeHandler) key(c *gin.Context) string {
	key := dto.BindScopeKey(c)
	c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.ScopeKeyKey, key))
	return key
}

func respondScope(c *gin.Context, st *entity.ScopeState, err error) {
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, st)
}

// Init 初始化作用域，已存在时原样返回
// @Summary 初始化作用域
// @Tags Scopes
// @Produce json
// @Param key path string true "作用域键"
// @Success 200 {object} dto.Response[entity.ScopeState]
// @Router /v1/scopes/{key} [post]
func (h *ScopeHandler) Init(c *gin.Context) {
	key := h.key(c)
	st, err := h.store.InitScope(c.Request.Context(), key)
	respondScope(c, st, err)
}

// Get 读取作用域快照
// @Summary 读取作用域
// @Tags Scopes
// @Produce json
// @Param key path string true "作用域键"
// @Success 200 {object} dto.Response[entity.ScopeState]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/scopes/{key} [get]
func (h *ScopeHandler) Get(c *gin.Context) {
	key := h.key(c)
	st, err := h.store.Snapshot(c.Request.Context(), key)
	respondScope(c, st, err)
}

// Reset 恢复默认值
// @Summary 重置作用域
// @Tags Scopes
// @Produce json
// @Param key path string true "作用域键"
// @Success 200 {object} dto.Response[entity.ScopeState]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/scopes/{key} [delete]
func (h *ScopeHandler) Reset(c *gin.Context) {
	key := h.key(c)
	st, err := h.store.Reset(c.Request.Context(), key)
	respondScope(c, st, err)
}

// Command 按字段执行命令，依次提交
// @Summary 修改作用域字段
// @Tags Scopes
// @Accept json
// @Produce json
// @Param key path string true "作用域键"
// @Param body body dto.ScopeCommandRequest true "命令"
// @Success 200 {object} dto.Response[entity.ScopeState]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/scopes/{key} [patch]
func (h *ScopeHandler) Command(c *gin.Context) {
	key := h.key(c)
	ctx := c.Request.Context()

	var req dto.ScopeCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	st, err := h.store.Snapshot(ctx, key)
	if err == nil && req.Step != nil {
		st, err = h.store.SetStep(ctx, key, *req.Step)
	}
	if err == nil && req.SelectedType != nil {
		st, err = h.store.SetSelectedType(ctx, key, *req.SelectedType)
	}
	if err == nil && req.IsDragging != nil {
		st, err = h.store.SetDragging(ctx, key, *req.IsDragging)
	}
	if err == nil && req.DropdownOpen != nil {
		st, err = h.store.SetDropdownOpen(ctx, key, *req.DropdownOpen)
	}
	if err == nil && req.FormField != nil {
		st, err = h.store.SetFormField(ctx, key, req.FormField.Name, req.FormField.Value)
	}
	respondScope(c, st, err)
}

// MergeForm 以 merge patch 合并表单数据
// @Summary 合并表单数据
// @Tags Scopes
// @Accept application/merge-patch+json
// @Produce json
// @Param key path string true "作用域键"
// @Success 200 {object} dto.Response[entity.ScopeState]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/scopes/{key}/form [patch]
func (h *ScopeHandler) MergeForm(c *gin.Context) {
	key := h.key(c)
	patch, err := c.GetRawData()
	if err != nil || len(patch) == 0 {
		dto.BadRequest(c, "merge patch body is required")
		return
	}
	st, err := h.store.MergeFormData(c.Request.Context(), key, patch)
	respondScope(c, st, err)
}

// AddFiles 记录已接受与被拒绝的文件
// @Summary 记录文件
// @Tags Scopes
// @Accept json
// @Produce json
// @Param key path string true "作用域键"
// @Param body body dto.AddFilesRequest true "文件"
// @Success 200 {object} dto.Response[entity.ScopeState]
// @Router /v1/scopes/{key}/files [post]
func (h *ScopeHandler) AddFiles(c *gin.Context) {
	key := h.key(c)
	ctx := c.Request.Context()

	var req dto.AddFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	st, err := h.store.Snapshot(ctx, key)
	if err == nil && len(req.Files) > 0 {
		files := make([]entity.FileRef, 0, len(req.Files))
		for _, f := range req.Files {
			files = append(files, entity.FileRef{Name: f.Name, Size: f.Size, ContentType: f.ContentType, TemplateID: f.TemplateID})
		}
		st, err = h.store.AddFiles(ctx, key, files)
	}
	if err == nil && len(req.InvalidFiles) > 0 {
		invalid := make([]entity.InvalidFile, 0, len(req.InvalidFiles))
		for _, f := range req.InvalidFiles {
			invalid = append(invalid, entity.InvalidFile{Name: f.Name, Reason: f.Reason})
		}
		st, err = h.store.AddInvalidFiles(ctx, key, invalid)
	}
	respondScope(c, st, err)
}

// AddEntry 向多值字段追加
// @Summary 追加多值字段
// @Tags Scopes
// @Accept json
// @Produce json
// @Param key path string true "作用域键"
// @Param field path string true "字段名"
// @Param body body dto.AddEntryRequest true "值"
// @Success 200 {object} dto.Response[entity.ScopeState]
// @Router /v1/scopes/{key}/entries/{field} [post]
func (h *ScopeHandler) AddEntry(c *gin.Context) {
	key := h.key(c)
	var req dto.AddEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	st, err := h.store.AddMultiEntryValue(c.Request.Context(), key, c.Param("field"), req.Value)
	respondScope(c, st, err)
}

// RemoveEntry 按下标删除多值字段
// @Summary 删除多值字段
// @Tags Scopes
// @Produce json
// @Param key path string true "作用域键"
// @Param field path string true "字段名"
// @Param idx path int true "下标"
// @Success 200 {object} dto.Response[entity.ScopeState]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/scopes/{key}/entries/{field}/{idx} [delete]
func (h *ScopeHandler) RemoveEntry(c *gin.Context) {
	key := h.key(c)
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		dto.BadRequest(c, "invalid entry index")
		return
	}
	st, err := h.store.RemoveMultiEntryValue(c.Request.Context(), key, c.Param("field"), idx)
	respondScope(c, st, err)
}

// Events SSE 订阅作用域变更
// 连接建立时先推送当前快照，之后每次提交推送一次
// @Summary 订阅作用域变更
// @Tags Scopes
// @Produce text/event-stream
// @Param key path string true "作用域键"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/scopes/{key}/events [get]
func (h *ScopeHandler) Events(c *gin.Context) {
	key := h.key(c)
	ctx := c.Request.Context()

	ch, cancel := h.store.Subscribe(key)
	defer cancel()

	current, err := h.store.Snapshot(ctx, key)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("state", current)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case st, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("state", st)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
