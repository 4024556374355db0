package dto

import "lexdraft-bff/internal/domain/entity"

// TemplateListResponse 模板列表
type TemplateListResponse struct {
	Templates []entity.Template `json:"templates"`
}

// UploadResponse 批量上传结果
// Message 只给出无效文件数量，逐个原因见 InvalidFiles
type UploadResponse struct {
	Uploaded     []entity.Template    `json:"uploaded"`
	InvalidFiles []entity.InvalidFile `json:"invalid_files"`
	Failed       []entity.InvalidFile `json:"failed,omitempty"`
	Message      string               `json:"message,omitempty"`
}
