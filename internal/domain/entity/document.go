package entity

// Variable 文档模板变量
type Variable struct {
	Value    any    `json:"value"`
	Editable bool   `json:"editable"`
	Type     string `json:"type"`
	Label    string `json:"label"`
}

// GeneratedDocument 生成接口返回并经本地补全后的文档
type GeneratedDocument struct {
	HTMLContent     string              `json:"html_content"`
	TemplateJSON    map[string]any      `json:"template_json"`
	Variables       map[string]Variable `json:"variables"`
	DocMetadata     map[string]any      `json:"doc_metadata,omitempty"`
	PipelineMetrics map[string]any      `json:"pipeline_metrics,omitempty"`
	// SynthesizedVariables 由占位符扫描补齐的变量名
	SynthesizedVariables []string `json:"synthesized_variables,omitempty"`
}

// InquiryOutcomeKind 澄清询问结果类型
type InquiryOutcomeKind string

const (
	InquiryNeedsClarification  InquiryOutcomeKind = "needs_clarification"
	InquiryProceedToGeneration InquiryOutcomeKind = "proceed_to_generation"
	InquiryRejected            InquiryOutcomeKind = "rejected"
	InquirySuperseded          InquiryOutcomeKind = "superseded"
)

// InquiryOutcome 澄清询问结果
// ProceedToGeneration 时 Generation 携带串联生成的结果
type InquiryOutcome struct {
	Kind       InquiryOutcomeKind `json:"kind"`
	Questions  []string           `json:"questions,omitempty"`
	Generation *GenerationOutcome `json:"generation,omitempty"`
	// Fallback 询问失败后降级为直接生成
	Fallback bool  `json:"fallback,omitempty"`
	Err      error `json:"-"`
}

// GenerationOutcomeKind 文档生成结果类型
type GenerationOutcomeKind string

const (
	GenerationGenerated  GenerationOutcomeKind = "generated"
	GenerationFailed     GenerationOutcomeKind = "failed"
	GenerationSuperseded GenerationOutcomeKind = "superseded"
	GenerationRejected   GenerationOutcomeKind = "rejected"
)

// GenerationOutcome 文档生成结果
type GenerationOutcome struct {
	Kind     GenerationOutcomeKind `json:"kind"`
	Document *GeneratedDocument    `json:"document,omitempty"`
	Reason   string                `json:"reason,omitempty"`
	Err      error                 `json:"-"`
}
