// Package messaging 基于 Redis Stream 的消息投递
package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"lexdraft-bff/internal/domain/entity"
)

// Message 消息结构
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 创建新消息；id 为空时生成 UUID
func NewMessage(id, msgType, tenantID, userID string, payload any) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	return &Message{
		ID:        id,
		Type:      msgType,
		TenantID:  tenantID,
		UserID:    userID,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

const (
	StreamDraftGenerated Stream = "stream:drafting:generated"
	StreamAuditLog       Stream = "stream:audit:log"
)

// 消息类型
const (
	TypeDraftGenerated = "draft_generated"
	TypeAudit          = "audit"
)

// DraftGeneratedMessage 生成完成后交给项目创建方的草稿
type DraftGeneratedMessage struct {
	WizardID             string                     `json:"wizard_id"`
	UserID               string                     `json:"user_id"`
	ProjectName          string                     `json:"project_name"`
	Language             string                     `json:"language"`
	Prompt               string                     `json:"prompt"`
	TemplateID           string                     `json:"template_id,omitempty"`
	HTMLContent          string                     `json:"html_content"`
	Variables            map[string]entity.Variable `json:"variables"`
	DocMetadata          map[string]any             `json:"doc_metadata,omitempty"`
	PipelineMetrics      map[string]any             `json:"pipeline_metrics,omitempty"`
	SynthesizedVariables []string                   `json:"synthesized_variables,omitempty"`
}

// AuditLogMessage 审计日志消息
type AuditLogMessage struct {
	TenantID     string         `json:"tenant_id"`
	UserID       string         `json:"user_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	RequestID    string         `json:"request_id"`
	TraceID      string         `json:"trace_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	StatusCode   int            `json:"status_code"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
