package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"lexdraft-bff/internal/application/template"
	"lexdraft-bff/internal/domain/entity"
	"lexdraft-bff/internal/interfaces/http/dto"
	apperrors "lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/logger"
)

// TemplateHandler 模板库处理器
type TemplateHandler struct {
	svc    *template.Service
	scopes ScopeStore
}

// NewTemplateHandler 创建模板库处理器；scopes 用于记录上传结果，可为 nil
func NewTemplateHandler(svc *template.Service, scopes ScopeStore) *TemplateHandler {
	return &TemplateHandler{svc: svc, scopes: scopes}
}

// List 列表或搜索模板
// @Summary 模板列表
// @Tags Templates
// @Produce json
// @Param q query string false "搜索关键字"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.TemplateListResponse]
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	pageReq := dto.BindPage(c)
	page, err := h.svc.List(c.Request.Context(), c.Query("q"), pageReq.Page, pageReq.PageSize)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.SuccessWithPage(c,
		dto.TemplateListResponse{Templates: page.Templates},
		dto.NewPageMeta(pageReq.Page, pageReq.PageSize, page.TotalCount))
}

// Upload 批量上传模板
// 无效文件不上传；合法文件逐个走两阶段上传，结果可选记录到 scope 表单字段指定的作用域
// @Summary 上传模板
// @Tags Templates
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "模板文件"
// @Param scope formData string false "作用域键"
// @Success 200 {object} dto.Response[dto.UploadResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/templates/upload [post]
func (h *TemplateHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	form, err := c.MultipartForm()
	if err != nil {
		dto.BadRequest(c, "invalid multipart form: "+err.Error())
		return
	}
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		dto.BadRequest(c, "no files provided")
		return
	}

	scopeKey := strings.TrimSpace(c.PostForm("scope"))
	if scopeKey != "" {
		if h.scopes == nil {
			dto.BadRequest(c, "scope recording is not available")
			return
		}
		if _, err := h.scopes.Snapshot(ctx, scopeKey); err != nil {
			dto.AppError(c, err)
			return
		}
		ctx = logger.WithContext(ctx, logger.ScopeKeyKey, scopeKey)
	}

	byName := make(map[string]*multipart.FileHeader, len(headers))
	inputs := make([]template.FileInput, 0, len(headers))
	for _, fh := range headers {
		byName[fh.Filename] = fh
		inputs = append(inputs, template.FileInput{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}
	validation := h.svc.ValidateFiles(inputs)

	resp := dto.UploadResponse{
		Uploaded:     []entity.Template{},
		InvalidFiles: validation.Invalid,
		Message:      validation.Summary(),
	}
	if resp.InvalidFiles == nil {
		resp.InvalidFiles = []entity.InvalidFile{}
	}

	var accepted []entity.FileRef
	var lastErr error
	for _, in := range validation.Accepted {
		tpl, err := h.uploadOne(ctx, c, byName[in.Name], in, len(validation.Accepted) == 1)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			lastErr = err
			resp.Failed = append(resp.Failed, entity.InvalidFile{Name: in.Name, Reason: apperrors.AsAppError(err).Detail})
			continue
		}
		resp.Uploaded = append(resp.Uploaded, *tpl)
		accepted = append(accepted, entity.FileRef{Name: in.Name, Size: in.Size, ContentType: in.ContentType, TemplateID: tpl.ID})
	}

	if scopeKey != "" {
		h.record(ctx, scopeKey, accepted, append(append([]entity.InvalidFile{}, validation.Invalid...), resp.Failed...))
	}

	if len(resp.Uploaded) == 0 && lastErr != nil {
		dto.AppError(c, lastErr)
		return
	}
	dto.Success(c, resp)
}

func (h *TemplateHandler) uploadOne(ctx context.Context, c *gin.Context, fh *multipart.FileHeader, in template.FileInput, single bool) (*entity.Template, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUploadFailed, "template upload failed").WithDetail("open: " + err.Error())
	}
	defer f.Close()

	up := template.UploadInput{
		File:        in,
		Body:        f,
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
	}
	if single {
		up.Name = c.PostForm("name")
	}
	return h.svc.Upload(ctx, up)
}

// record 把上传结果写入作用域；失败只记录日志
func (h *TemplateHandler) record(ctx context.Context, key string, accepted []entity.FileRef, invalid []entity.InvalidFile) {
	if len(accepted) > 0 {
		if _, err := h.scopes.AddFiles(ctx, key, accepted); err != nil {
			logger.Warn(ctx, "failed to record uploaded files", "error", err.Error())
		}
	}
	if len(invalid) > 0 {
		if _, err := h.scopes.AddInvalidFiles(ctx, key, invalid); err != nil {
			logger.Warn(ctx, "failed to record invalid files", "error", err.Error())
		}
	}
}

// Preview 文档预览
// @Summary 文档预览
// @Tags Templates
// @Produce json
// @Param id path string true "文档 ID"
// @Success 200 {object} dto.Response[entity.PreviewLink]
// @Router /v1/documents/{id}/preview [get]
func (h *TemplateHandler) Preview(c *gin.Context) {
	link, err := h.svc.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, link)
}

// PublicPreview 通过 s3_key 公开预览
// @Summary 公开预览
// @Tags Templates
// @Produce json
// @Param s3_key query string true "对象键"
// @Success 200 {object} dto.Response[entity.PreviewLink]
// @Router /v1/public/preview [get]
func (h *TemplateHandler) PublicPreview(c *gin.Context) {
	link, err := h.svc.PublicPreview(c.Request.Context(), c.Query("s3_key"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, link)
}
