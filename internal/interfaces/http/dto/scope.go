package dto

// ScopeCommandRequest 作用域字段命令，未提供的字段不修改
type ScopeCommandRequest struct {
	Step         *int           `json:"step"`
	SelectedType *string        `json:"selected_type"`
	IsDragging   *bool          `json:"is_dragging"`
	DropdownOpen *bool          `json:"dropdown_open"`
	FormField    *FormFieldPart `json:"form_field"`
}

// FormFieldPart 单个表单字段；Value 为 null 时删除
type FormFieldPart struct {
	Name  string `json:"name" binding:"required"`
	Value any    `json:"value"`
}

// AddEntryRequest 向多值字段追加
type AddEntryRequest struct {
	Value string `json:"value"`
}

// AddFilesRequest 直接记录文件（不经上传）
type AddFilesRequest struct {
	Files        []FileRefPart     `json:"files"`
	InvalidFiles []InvalidFilePart `json:"invalid_files"`
}

// FileRefPart 已接受文件
type FileRefPart struct {
	Name        string `json:"name" binding:"required"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	TemplateID  string `json:"template_id"`
}

// InvalidFilePart 被拒绝文件
type InvalidFilePart struct {
	Name   string `json:"name" binding:"required"`
	Reason string `json:"reason"`
}
