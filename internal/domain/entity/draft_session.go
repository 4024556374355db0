// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// DraftStep 起草向导所处步骤
type DraftStep int

const (
	// DraftStepPrompt 输入提示词、项目名称、模板
	DraftStepPrompt DraftStep = 1
	// DraftStepClarify 回答澄清问题
	DraftStepClarify DraftStep = 2
)

// Valid 步骤只允许 1 或 2
func (s DraftStep) Valid() bool {
	return s == DraftStepPrompt || s == DraftStepClarify
}

// DraftSession 一次起草向导的临时会话，只存在于内存中
type DraftSession struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	UserProfile map[string]any `json:"user_profile,omitempty"`

	Prompt      string `json:"prompt"`
	ProjectName string `json:"project_name"`
	Language    string `json:"language"`

	Step             DraftStep      `json:"step"`
	Questions        []string       `json:"questions"`
	Answers          map[int]string `json:"answers"`
	SkippedQuestions map[int]bool   `json:"skipped_questions"`

	SelectedTemplateID *string `json:"selected_template_id,omitempty"`
	TemplateS3Key      string  `json:"template_s3_key,omitempty"`

	IsGenerating bool `json:"is_generating"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDraftSession 创建处于第 1 步的空会话
func NewDraftSession(id, userID, language string) *DraftSession {
	now := time.Now()
	return &DraftSession{
		ID:               id,
		UserID:           userID,
		Language:         language,
		Step:             DraftStepPrompt,
		Questions:        []string{},
		Answers:          map[int]string{},
		SkippedQuestions: map[int]bool{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ReplaceQuestions 替换澄清问题
// 问题列表变化时旧回答全部作废；列表相同时只保留索引仍在范围内的回答
func (s *DraftSession) ReplaceQuestions(questions []string) {
	same := len(questions) == len(s.Questions)
	for i := 0; same && i < len(questions); i++ {
		same = questions[i] == s.Questions[i]
	}

	s.Questions = append([]string{}, questions...)
	if !same {
		s.Answers = map[int]string{}
		s.SkippedQuestions = map[int]bool{}
	}
	for idx := range s.Answers {
		if idx < 0 || idx >= len(s.Questions) {
			delete(s.Answers, idx)
		}
	}
	for idx := range s.SkippedQuestions {
		if idx < 0 || idx >= len(s.Questions) {
			delete(s.SkippedQuestions, idx)
		}
	}
	s.touch()
}

// ClearQuestions 清空问题、回答与跳过标记
func (s *DraftSession) ClearQuestions() {
	s.Questions = []string{}
	s.Answers = map[int]string{}
	s.SkippedQuestions = map[int]bool{}
	s.touch()
}

// SetStep 设置步骤，非法值返回 false
func (s *DraftSession) SetStep(step DraftStep) bool {
	if !step.Valid() {
		return false
	}
	s.Step = step
	s.touch()
	return true
}

// SetAnswer 设置某个问题的回答，索引越界返回 false
func (s *DraftSession) SetAnswer(idx int, answer string) bool {
	if idx < 0 || idx >= len(s.Questions) {
		return false
	}
	s.Answers[idx] = answer
	delete(s.SkippedQuestions, idx)
	s.touch()
	return true
}

// ClarificationAnswers 将问题与回答配对为 {问题: 回答}
// 空白回答被忽略；override 非空时用于覆盖第 0 题的回答
func (s *DraftSession) ClarificationAnswers(override *string) map[string]string {
	out := make(map[string]string, len(s.Questions))
	for i, q := range s.Questions {
		answer := strings.TrimSpace(s.Answers[i])
		if i == 0 && override != nil {
			answer = strings.TrimSpace(*override)
		}
		if answer == "" {
			continue
		}
		out[q] = answer
	}
	return out
}

// Clone 深拷贝会话，供外部读取快照
func (s *DraftSession) Clone() *DraftSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Questions = append([]string{}, s.Questions...)
	cp.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	cp.SkippedQuestions = make(map[int]bool, len(s.SkippedQuestions))
	for k, v := range s.SkippedQuestions {
		cp.SkippedQuestions[k] = v
	}
	if s.UserProfile != nil {
		cp.UserProfile = make(map[string]any, len(s.UserProfile))
		for k, v := range s.UserProfile {
			cp.UserProfile[k] = v
		}
	}
	if s.SelectedTemplateID != nil {
		id := *s.SelectedTemplateID
		cp.SelectedTemplateID = &id
	}
	return &cp
}

func (s *DraftSession) touch() {
	s.UpdatedAt = time.Now()
}
