package entity

import "time"

// FileRef 已接受的上传文件
type FileRef struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	TemplateID  string `json:"template_id,omitempty"`
}

// InvalidFile 被拒绝的文件及原因
type InvalidFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ScopeState 单个对话框实例的 UI 状态切片
type ScopeState struct {
	Step         int                 `json:"step"`
	SelectedType string              `json:"selected_type"`
	FormData     map[string]any      `json:"form_data"`
	Files        []FileRef           `json:"files"`
	InvalidFiles []InvalidFile       `json:"invalid_files"`
	IsDragging   bool                `json:"is_dragging"`
	DropdownOpen bool                `json:"dropdown_open"`
	MultiEntries map[string][]string `json:"multi_entries"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewScopeState 返回默认值切片
func NewScopeState() *ScopeState {
	return &ScopeState{
		Step:         1,
		FormData:     map[string]any{},
		Files:        []FileRef{},
		InvalidFiles: []InvalidFile{},
		MultiEntries: map[string][]string{},
		UpdatedAt:    time.Now(),
	}
}

// Clone 深拷贝，FormData 按结构逐层复制，数值类型保持不变
func (s *ScopeState) Clone() *ScopeState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Files = append([]FileRef{}, s.Files...)
	cp.InvalidFiles = append([]InvalidFile{}, s.InvalidFiles...)
	cp.MultiEntries = make(map[string][]string, len(s.MultiEntries))
	for k, v := range s.MultiEntries {
		cp.MultiEntries[k] = append([]string{}, v...)
	}
	cp.FormData = copyMap(s.FormData)
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue 复制表单值中的可变容器；其余值按值返回
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	case []string:
		return append([]string{}, t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = copyMap(e)
		}
		return out
	default:
		return v
	}
}
