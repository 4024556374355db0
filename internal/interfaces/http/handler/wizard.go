package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lexdraft-bff/internal/application/drafting"
	"lexdraft-bff/internal/domain/entity"
	"lexdraft-bff/internal/interfaces/http/dto"
	"lexdraft-bff/internal/interfaces/http/middleware"
	apperrors "lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/logger"
)

// WizardHandler 起草向导处理器
type WizardHandler struct {
	registry *drafting.Registry
}

// NewWizardHandler 创建起草向导处理器
func NewWizardHandler(registry *drafting.Registry) *WizardHandler {
	return &WizardHandler{registry: registry}
}

// controller 按路径参数取出当前用户的向导，失败时已写出响应
func (h *WizardHandler) controller(c *gin.Context) (string, *drafting.Controller, bool) {
	wid := dto.BindWizardID(c)
	ctrl, err := h.registry.Get(wid, middleware.GetUserIDFromGin(c))
	if err != nil {
		dto.AppError(c, err)
		return "", nil, false
	}
	c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.WizardIDKey, wid))
	return wid, ctrl, true
}

// Open 打开向导
// @Summary 打开起草向导
// @Tags Drafting
// @Produce json
// @Success 201 {object} dto.Response[dto.WizardResponse]
// @Router /v1/drafting-wizards [post]
func (h *WizardHandler) Open(c *gin.Context) {
	id, ctrl := h.registry.Open(c.Request.Context(), middleware.GetUserIDFromGin(c))
	dto.Created(c, dto.ToWizardResponse(id, ctrl.Snapshot()))
}

// Get 获取向导状态
// @Summary 获取起草向导状态
// @Tags Drafting
// @Produce json
// @Param wid path string true "向导 ID"
// @Success 200 {object} dto.Response[dto.WizardResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/drafting-wizards/{wid} [get]
func (h *WizardHandler) Get(c *gin.Context) {
	wid, ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	dto.Success(c, dto.ToWizardResponse(wid, ctrl.Snapshot()))
}

// Update 更新向导字段
// @Summary 更新起草向导字段
// @Tags Drafting
// @Accept json
// @Produce json
// @Param wid path string true "向导 ID"
// @Param body body dto.UpdateWizardRequest true "字段"
// @Success 200 {object} dto.Response[dto.WizardResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/drafting-wizards/{wid} [patch]
func (h *WizardHandler) Update(c *gin.Context) {
	wid, ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req dto.UpdateWizardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.Language != nil {
		if err := ctrl.SetLanguage(*req.Language); err != nil {
			dto.AppError(c, err)
			return
		}
	}
	if req.Prompt != nil {
		ctrl.SetPrompt(*req.Prompt)
	}
	if req.ProjectName != nil {
		ctrl.SetProjectName(*req.ProjectName)
	}
	if req.UserProfile != nil {
		ctrl.SetUserProfile(req.UserProfile)
	}
	if req.Template != nil {
		if req.Template.ID == "" {
			ctrl.SelectTemplate(nil, "")
		} else {
			id := req.Template.ID
			ctrl.SelectTemplate(&id, req.Template.S3Key)
		}
	}

	var dictated *string
	if d := req.Dictation; d != nil {
		if d.Base != nil {
			ctrl.SetDictationBase(d.Field, *d.Base)
		}
		if d.Transcript != nil {
			text := ctrl.DictationText(d.Field, *d.Transcript)
			switch d.Field {
			case "prompt":
				ctrl.SetPrompt(text)
			case "project_name":
				ctrl.SetProjectName(text)
			}
			dictated = &text
		}
	}

	resp := dto.ToWizardResponse(wid, ctrl.Snapshot())
	resp.DictationText = dictated
	dto.Success(c, resp)
}

// SetAnswer 回答澄清问题
// @Summary 回答澄清问题
// @Tags Drafting
// @Accept json
// @Produce json
// @Param wid path string true "向导 ID"
// @Param idx path int true "问题下标"
// @Param body body dto.AnswerRequest true "回答"
// @Success 200 {object} dto.Response[dto.WizardResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/drafting-wizards/{wid}/answers/{idx} [put]
func (h *WizardHandler) SetAnswer(c *gin.Context) {
	wid, ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		dto.BadRequest(c, "invalid answer index")
		return
	}
	var req dto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := ctrl.SetAnswer(idx, req.Answer); err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.ToWizardResponse(wid, ctrl.Snapshot()))
}

// Inquiry 提交澄清询问
// 询问失败时降级为直接生成，结果在 generation 字段中返回
// @Summary 提交澄清询问
// @Tags Drafting
// @Produce json
// @Param wid path string true "向导 ID"
// @Success 200 {object} dto.Response[dto.InquiryResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/drafting-wizards/{wid}/inquiry [post]
func (h *WizardHandler) Inquiry(c *gin.Context) {
	wid, ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	out := ctrl.SubmitInquiry(c.Request.Context())
	switch out.Kind {
	case entity.InquiryRejected:
		dto.AppError(c, out.Err)
		return
	case entity.InquirySuperseded:
		superseded(c)
		return
	}

	resp := &dto.InquiryResponse{
		Kind:      string(out.Kind),
		Questions: out.Questions,
		Fallback:  out.Fallback,
	}
	if out.Generation != nil {
		if !h.writeGenerationFailure(c, *out.Generation) {
			return
		}
		resp.Generation = dto.ToGenerationResponse(*out.Generation)
	}
	resp.Wizard = dto.ToWizardResponse(wid, ctrl.Snapshot())
	dto.Success(c, resp)
}

// Generate 发起文档生成
// @Summary 发起文档生成
// @Tags Drafting
// @Accept json
// @Produce json
// @Param wid path string true "向导 ID"
// @Param body body dto.GenerateRequest false "生成参数"
// @Success 200 {object} dto.Response[dto.GenerationResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/drafting-wizards/{wid}/generate [post]
func (h *WizardHandler) Generate(c *gin.Context) {
	_, ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out := ctrl.SubmitGeneration(c.Request.Context(), req.SkipClarification, req.OverrideFirstAnswer)
	if h.writeGenerationFailure(c, out) {
		dto.Success(c, dto.ToGenerationResponse(out))
	}
}

// Skip 跳过澄清问题并生成
// @Summary 跳过澄清问题
// @Tags Drafting
// @Produce json
// @Param wid path string true "向导 ID"
// @Success 200 {object} dto.Response[dto.GenerationResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/drafting-wizards/{wid}/skip [post]
func (h *WizardHandler) Skip(c *gin.Context) {
	_, ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	out := ctrl.SkipQuestions(c.Request.Context())
	if h.writeGenerationFailure(c, out) {
		dto.Success(c, dto.ToGenerationResponse(out))
	}
}

// Back 第 2 步返回第 1 步
// @Summary 返回上一步
// @Tags Drafting
// @Produce json
// @Param wid path string true "向导 ID"
// @Success 200 {object} dto.Response[dto.WizardResponse]
// @Router /v1/drafting-wizards/{wid}/back [post]
func (h *WizardHandler) Back(c *gin.Context) {
	wid, ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	ctrl.Back()
	dto.Success(c, dto.ToWizardResponse(wid, ctrl.Snapshot()))
}

// Close 关闭向导并取消在途请求
// @Summary 关闭起草向导
// @Tags Drafting
// @Param wid path string true "向导 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/drafting-wizards/{wid} [delete]
func (h *WizardHandler) Close(c *gin.Context) {
	if err := h.registry.Close(dto.BindWizardID(c), middleware.GetUserIDFromGin(c)); err != nil {
		dto.AppError(c, err)
		return
	}
	dto.NoContent(c)
}

// writeGenerationFailure 失败或被取代时写出错误响应并返回 false
func (h *WizardHandler) writeGenerationFailure(c *gin.Context, out entity.GenerationOutcome) bool {
	switch out.Kind {
	case entity.GenerationSuperseded:
		superseded(c)
		return false
	case entity.GenerationRejected:
		dto.AppError(c, out.Err)
		return false
	case entity.GenerationFailed:
		dto.ErrorWithDetail(c, http.StatusBadGateway, apperrors.ErrGenerationFailed.Message, &dto.ErrorDetail{
			ErrorCode: string(apperrors.CodeGenerationFailed),
			Details:   out.Reason,
		})
		return false
	}
	return true
}

func superseded(c *gin.Context) {
	dto.ErrorWithDetail(c, http.StatusConflict, "superseded", &dto.ErrorDetail{
		ErrorCode: string(apperrors.CodeSuperseded),
	})
}
