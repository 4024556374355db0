package dto

import (
	"lexdraft-bff/internal/application/drafting"
	"lexdraft-bff/internal/domain/entity"
)

// WizardResponse 向导状态
type WizardResponse struct {
	ID      string               `json:"id"`
	Phase   string               `json:"phase"`
	Session *entity.DraftSession `json:"session"`
	// DictationText 语音输入拼接后的文本，仅在提交识别结果时返回
	DictationText *string `json:"dictation_text,omitempty"`
}

// ToWizardResponse 转换控制器快照
func ToWizardResponse(id string, st drafting.State) *WizardResponse {
	return &WizardResponse{
		ID:      id,
		Phase:   string(st.Phase),
		Session: st.Session,
	}
}

// UpdateWizardRequest 部分更新向导字段，未提供的字段保持不变
type UpdateWizardRequest struct {
	Prompt      *string        `json:"prompt"`
	ProjectName *string        `json:"project_name"`
	Language    *string        `json:"language"`
	UserProfile map[string]any `json:"user_profile"`
	Template    *TemplateRef   `json:"template"`
	Dictation   *DictationPart `json:"dictation"`
}

// TemplateRef 选择模板；ID 为空表示清除选择
type TemplateRef struct {
	ID    string `json:"id"`
	S3Key string `json:"s3_key"`
}

// DictationPart 语音输入
// Base 在开始录音时提交，Transcript 在识别结果到达时提交
type DictationPart struct {
	Field      string  `json:"field" binding:"required,oneof=prompt project_name"`
	Base       *string `json:"base"`
	Transcript *string `json:"transcript"`
}

// AnswerRequest 回答单个澄清问题
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// GenerateRequest 发起生成
type GenerateRequest struct {
	SkipClarification   bool    `json:"skip_clarification"`
	OverrideFirstAnswer *string `json:"override_first_answer"`
}

// InquiryResponse 澄清询问结果
type InquiryResponse struct {
	Kind       string              `json:"kind"`
	Questions  []string            `json:"questions,omitempty"`
	Fallback   bool                `json:"fallback,omitempty"`
	Generation *GenerationResponse `json:"generation,omitempty"`
	Wizard     *WizardResponse     `json:"wizard"`
}

// GenerationResponse 生成结果
type GenerationResponse struct {
	Kind     string                    `json:"kind"`
	Document *entity.GeneratedDocument `json:"document,omitempty"`
	Reason   string                    `json:"reason,omitempty"`
}

// ToGenerationResponse 转换生成结果
func ToGenerationResponse(out entity.GenerationOutcome) *GenerationResponse {
	return &GenerationResponse{
		Kind:     string(out.Kind),
		Document: out.Document,
		Reason:   out.Reason,
	}
}
