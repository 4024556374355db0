package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lexdraft-bff/internal/domain/entity"
	apperrors "lexdraft-bff/pkg/errors"
)

// PageOptions 分页参数
type PageOptions struct {
	Page  int
	Limit int
}

func (p PageOptions) values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	return v
}

// InitUploadRequest 预签名上传初始化请求
type InitUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// CompleteUploadRequest 预签名上传完成请求
type CompleteUploadRequest struct {
	TemplateID string `json:"template_id"`
	S3Key      string `json:"s3_key"`
}

// SearchTemplates 服务端模板搜索，客户端不做额外过滤
func (c *Client) SearchTemplates(ctx context.Context, query string, opts PageOptions) (*entity.TemplatePage, error) {
	q := opts.values()
	q.Set("q", query)
	return c.templatePage(ctx, "search_templates", "/templates/search", q)
}

// ListTemplates 模板列表
func (c *Client) ListTemplates(ctx context.Context, opts PageOptions) (*entity.TemplatePage, error) {
	return c.templatePage(ctx, "list_templates", "/templates", opts.values())
}

func (c *Client) templatePage(ctx context.Context, name, path string, q url.Values) (*entity.TemplatePage, error) {
	data, err := c.do(ctx, name, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	page, err := normalizeTemplatePage(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "invalid template list response")
	}
	return page, nil
}

// InitUpload 预签名上传第一阶段，返回的对象在 CompleteUpload 成功前不可用
func (c *Client) InitUpload(ctx context.Context, req InitUploadRequest) (*entity.UploadTicket, error) {
	data, err := c.do(ctx, "init_upload", http.MethodPost, "/templates/upload/init", nil, req)
	if err != nil {
		return nil, err
	}

	var ticket entity.UploadTicket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "invalid init upload response")
	}
	if ticket.UploadURL == "" || ticket.TemplateID == "" {
		return nil, apperrors.New(apperrors.CodeBackendError, "init upload response missing upload_url or template_id")
	}
	return &ticket, nil
}

// CompleteUpload 预签名上传最后阶段
func (c *Client) CompleteUpload(ctx context.Context, req CompleteUploadRequest) (*entity.Template, error) {
	data, err := c.do(ctx, "complete_upload", http.MethodPost, "/templates/upload/complete", nil, req)
	if err != nil {
		return nil, err
	}

	tpl := entity.Template{ID: req.TemplateID, S3Key: req.S3Key}
	// 部分响应只返回 {template_id}，缺失字段用请求补齐
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &tpl); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "invalid complete upload response")
		}
		if tpl.ID == "" {
			tpl.ID = req.TemplateID
		}
		if tpl.S3Key == "" {
			tpl.S3Key = req.S3Key
		}
	}
	return &tpl, nil
}

// PreviewDocument 获取文档预览链接，返回值已包装为本地代理路径
func (c *Client) PreviewDocument(ctx context.Context, documentID string) (*entity.PreviewLink, error) {
	path := "/documents/" + url.PathEscape(documentID) + "/preview"
	return c.preview(ctx, "preview_document", path, nil)
}

// PublicPreviewDocument 通过 s3_key 获取公开预览链接
func (c *Client) PublicPreviewDocument(ctx context.Context, s3Key string) (*entity.PreviewLink, error) {
	q := url.Values{}
	q.Set("s3_key", s3Key)
	return c.preview(ctx, "public_preview", "/templates/public-preview", q)
}

func (c *Client) preview(ctx context.Context, name, path string, q url.Values) (*entity.PreviewLink, error) {
	data, err := c.do(ctx, name, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}

	var link entity.PreviewLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "invalid preview response")
	}
	if link.PreviewURL == "" {
		return nil, apperrors.New(apperrors.CodeBackendError, "preview response missing preview_url")
	}
	link.PreviewURL = c.ProxyPath(link.PreviewURL)
	return &link, nil
}
