// Package template 模板库：列表缓存、两阶段预签名上传与预览
package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"lexdraft-bff/internal/domain/entity"
	"lexdraft-bff/internal/infrastructure/backend"
	"lexdraft-bff/internal/infrastructure/persistence/redis"
	apperrors "lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/logger"
	"lexdraft-bff/pkg/metrics"
)

// Gateway 模板相关后端接口
type Gateway interface {
	SearchTemplates(ctx context.Context, query string, opts backend.PageOptions) (*entity.TemplatePage, error)
	ListTemplates(ctx context.Context, opts backend.PageOptions) (*entity.TemplatePage, error)
	InitUpload(ctx context.Context, req backend.InitUploadRequest) (*entity.UploadTicket, error)
	PutPresigned(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64, progress backend.ProgressFunc) error
	CompleteUpload(ctx context.Context, req backend.CompleteUploadRequest) (*entity.Template, error)
	PreviewDocument(ctx context.Context, documentID string) (*entity.PreviewLink, error)
	PublicPreviewDocument(ctx context.Context, s3Key string) (*entity.PreviewLink, error)
}

// Cache 模板列表缓存；为 nil 时直接访问后端
type Cache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, error)
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
}

// Config 模板服务参数
type Config struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	CacheTTL          time.Duration
}

// Service 模板服务
type Service struct {
	gateway Gateway
	cache   Cache
	cfg     Config
}

// NewService 创建模板服务
func NewService(gateway Gateway, cache Cache, cfg Config) *Service {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = []string{".pdf", ".docx", ".doc", ".txt"}
	}
	cfg.AllowedExtensions = make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.AllowedExtensions = append(cfg.AllowedExtensions, ext)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Service{gateway: gateway, cache: cache, cfg: cfg}
}

// List 列表或搜索；query 为空时列出全部
func (s *Service) List(ctx context.Context, query string, page, limit int) (*entity.TemplatePage, error) {
	query = strings.TrimSpace(query)
	opts := backend.PageOptions{Page: page, Limit: limit}
	load := func(ctx context.Context) (*entity.TemplatePage, error) {
		if query == "" {
			return s.gateway.ListTemplates(ctx, opts)
		}
		return s.gateway.SearchTemplates(ctx, query, opts)
	}

	if s.cache == nil {
		return load(ctx)
	}

	raw, err := s.cache.GetOrLoadSafe(ctx, redis.TemplateListKey(query, page, limit), s.cfg.CacheTTL,
		func(ctx context.Context) (any, error) { return load(ctx) })
	if err != nil {
		return nil, err
	}

	var out entity.TemplatePage
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.Warn(ctx, "discarding undecodable template cache entry", "error", err.Error())
		return load(ctx)
	}
	return &out, nil
}

// FileInput 待校验或上传的文件
type FileInput struct {
	Name        string
	Size        int64
	ContentType string
}

// ValidationResult 批量校验结果
type ValidationResult struct {
	Accepted []FileInput
	Invalid  []entity.InvalidFile
}

// Summary 汇总消息只给出无效文件数量
func (r ValidationResult) Summary() string {
	if len(r.Invalid) == 0 {
		return ""
	}
	return fmt.Sprintf("%d invalid file(s)", len(r.Invalid))
}

// ValidateFile 校验单个文件的扩展名与大小
func (s *Service) ValidateFile(f FileInput) error {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if ext == "" || !slices.Contains(s.cfg.AllowedExtensions, ext) {
		return apperrors.ErrValidationFailed.WithDetail("unsupported file type: " + f.Name)
	}
	if f.Size <= 0 {
		return apperrors.ErrValidationFailed.WithDetail("empty file: " + f.Name)
	}
	if f.Size > s.cfg.MaxUploadBytes {
		return apperrors.ErrValidationFailed.WithDetail(
			fmt.Sprintf("file too large: %s (%d > %d bytes)", f.Name, f.Size, s.cfg.MaxUploadBytes))
	}
	return nil
}

// ValidateFiles 将一批文件分为可接受与无效两组
func (s *Service) ValidateFiles(files []FileInput) ValidationResult {
	var res ValidationResult
	for _, f := range files {
		if err := s.ValidateFile(f); err != nil {
			reason := err.Error()
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Detail != "" {
				reason = appErr.Detail
			}
			res.Invalid = append(res.Invalid, entity.InvalidFile{Name: f.Name, Reason: reason})
			continue
		}
		res.Accepted = append(res.Accepted, f)
	}
	return res
}

// UploadInput 单个模板上传
type UploadInput struct {
	File        FileInput
	Body        io.Reader
	Name        string
	Description string
	Category    string
}

// Upload 两阶段上传：init → 直传 → complete
// 任一阶段失败即返回错误，不做续传；complete 成功后模板才可用
func (s *Service) Upload(ctx context.Context, in UploadInput) (*entity.Template, error) {
	if err := s.ValidateFile(in.File); err != nil {
		metrics.TemplateUploadTotal.WithLabelValues("validate", "failed").Inc()
		return nil, err
	}

	contentType := in.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := in.Name
	if name == "" {
		name = strings.TrimSuffix(in.File.Name, filepath.Ext(in.File.Name))
	}

	ticket, err := s.gateway.InitUpload(ctx, backend.InitUploadRequest{
		FileName:    in.File.Name,
		ContentType: contentType,
		Size:        in.File.Size,
		Name:        name,
		Description: in.Description,
		Category:    in.Category,
	})
	if err != nil {
		metrics.TemplateUploadTotal.WithLabelValues("init", "failed").Inc()
		return nil, uploadError("init", err)
	}
	metrics.TemplateUploadTotal.WithLabelValues("init", "success").Inc()

	if err := s.gateway.PutPresigned(ctx, ticket.UploadURL, contentType, in.Body, in.File.Size, progressLogger(ctx)); err != nil {
		metrics.TemplateUploadTotal.WithLabelValues("put", "failed").Inc()
		return nil, uploadError("put", err)
	}
	metrics.TemplateUploadTotal.WithLabelValues("put", "success").Inc()

	tpl, err := s.gateway.CompleteUpload(ctx, backend.CompleteUploadRequest{
		TemplateID: ticket.TemplateID,
		S3Key:      ticket.S3Key,
	})
	if err != nil {
		metrics.TemplateUploadTotal.WithLabelValues("complete", "failed").Inc()
		return nil, uploadError("complete", err)
	}
	metrics.TemplateUploadTotal.WithLabelValues("complete", "success").Inc()

	if tpl.Name == "" {
		tpl.Name = name
	}
	if tpl.Size == 0 {
		tpl.Size = in.File.Size
	}
	if tpl.FileType == "" {
		tpl.FileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(in.File.Name)), ".")
	}

	if s.cache != nil {
		if _, err := s.cache.InvalidatePattern(ctx, redis.TemplateListPattern); err != nil {
			logger.Warn(ctx, "failed to invalidate template list cache", "error", err.Error())
		}
	}
	logger.Info(ctx, "template uploaded", "template_id", tpl.ID, "file", in.File.Name, "size", in.File.Size)
	return tpl, nil
}

// uploadError 取消原样返回，其余包装为上传失败并标注阶段
func uploadError(phase string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	detail := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		detail = appErr.Message
		if appErr.Detail != "" {
			detail += ": " + appErr.Detail
		}
	}
	return apperrors.Wrap(err, apperrors.CodeUploadFailed, "template upload failed").
		WithDetail(phase + ": " + detail)
}

// progressLogger 每跨过 25% 记录一次进度
func progressLogger(ctx context.Context) backend.ProgressFunc {
	next := int64(25)
	return func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := sent * 100 / total
		for pct >= next && next <= 100 {
			logger.Debug(ctx, "template upload progress", "percent", next, "sent", sent, "total", total)
			next += 25
		}
	}
}

// Preview 文档预览（代理链接）
func (s *Service) Preview(ctx context.Context, documentID string) (*entity.PreviewLink, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("document id is required")
	}
	return s.gateway.PreviewDocument(ctx, documentID)
}

// PublicPreview 通过 s3_key 的公开预览（代理链接）
func (s *Service) PublicPreview(ctx context.Context, s3Key string) (*entity.PreviewLink, error) {
	if strings.TrimSpace(s3Key) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("s3_key is required")
	}
	return s.gateway.PublicPreviewDocument(ctx, s3Key)
}
