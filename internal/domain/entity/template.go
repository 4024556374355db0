package entity

import "time"

// Template 模板库中的模板
type Template struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	S3Key       string         `json:"s3_key,omitempty"`
	FileType    string         `json:"file_type,omitempty"`
	Size        int64          `json:"size,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
}

// TemplatePage 模板分页结果
type TemplatePage struct {
	Templates  []Template `json:"templates"`
	TotalCount int        `json:"total_count"`
}

// UploadTicket 预签名上传第一阶段返回
type UploadTicket struct {
	UploadURL  string `json:"upload_url"`
	TemplateID string `json:"template_id"`
	S3Key      string `json:"s3_key"`
}

// PreviewLink 文档预览链接（已经过本地代理包装）
type PreviewLink struct {
	PreviewURL string `json:"preview_url"`
}
