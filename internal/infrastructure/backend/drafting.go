package backend

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "lexdraft-bff/pkg/errors"
)

// InquiryRequest 澄清询问请求
type InquiryRequest struct {
	UserPrompt  string         `json:"user_prompt"`
	Language    string         `json:"language"`
	DocTypeHint string         `json:"doc_type_hint"`
	UserProfile map[string]any `json:"user_profile"`
}

// InquiryResponse 澄清询问响应
type InquiryResponse struct {
	ClarificationQuestions []string `json:"clarification_questions"`
}

// GenerateRequest 文档生成请求
// ClarificationAnswers 为 nil 时整个字段不发送
type GenerateRequest struct {
	UserPrompt           string            `json:"user_prompt"`
	UserID               string            `json:"user_id"`
	DocTypeHint          string            `json:"doc_type_hint"`
	Language             string            `json:"language"`
	ClarificationAnswers map[string]string `json:"clarification_answers,omitempty"`
	SkipClarification    bool              `json:"skip_clarification"`
	S3Key                string            `json:"s3_key"`
	Metadata             map[string]any    `json:"metadata"`
}

// GenerateResponse 文档生成响应
// TemplateJSON 可能是对象，也可能是序列化后的字符串，由调用方解析
type GenerateResponse struct {
	HTMLContent     string          `json:"html_content"`
	TemplateJSON    json.RawMessage `json:"template_json"`
	DocMetadata     map[string]any  `json:"doc_metadata"`
	PipelineMetrics map[string]any  `json:"pipeline_metrics"`
}

// Inquiry 调用澄清询问接口
func (c *Client) Inquiry(ctx context.Context, req InquiryRequest) (*InquiryResponse, error) {
	data, err := c.do(ctx, "inquiry", http.MethodPost, "/drafting/inquiry", nil, req)
	if err != nil {
		return nil, err
	}

	var resp InquiryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "invalid inquiry response")
	}
	return &resp, nil
}

// Generate 调用文档生成接口
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	data, err := c.do(ctx, "generate", http.MethodPost, "/drafting/generate", nil, req)
	if err != nil {
		return nil, err
	}

	var resp GenerateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "invalid generate response")
	}
	return &resp, nil
}
