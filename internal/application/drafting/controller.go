// Package drafting 起草向导：澄清询问与文档生成的请求编排
package drafting

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"lexdraft-bff/internal/domain/entity"
	"lexdraft-bff/internal/infrastructure/backend"
	apperrors "lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/logger"
	"lexdraft-bff/pkg/metrics"
)

// DraftingBackend 起草后端端口
type DraftingBackend interface {
	Inquiry(ctx context.Context, req backend.InquiryRequest) (*backend.InquiryResponse, error)
	Generate(ctx context.Context, req backend.GenerateRequest) (*backend.GenerateResponse, error)
}

// ProjectHandoff 生成成功后接收文档的项目创建协作方
type ProjectHandoff interface {
	HandOff(ctx context.Context, session *entity.DraftSession, doc *entity.GeneratedDocument) error
}

// Options 向导校验参数
type Options struct {
	MinPromptLength int
	DefaultLanguage string
	Languages       []string
}

// Phase 向导所处阶段
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAwaitingInquiry    Phase = "awaiting_inquiry"
	PhaseAwaitingGeneration Phase = "awaiting_generation"
	PhaseDone               Phase = "done"
)

// OperationKind 在途操作类型
type OperationKind int

const (
	OpInquiry OperationKind = iota
	OpGeneration
)

func (k OperationKind) String() string {
	if k == OpInquiry {
		return "inquiry"
	}
	return "generation"
}

// operationHandle 一次在途请求的取消句柄
type operationHandle struct {
	kind   OperationKind
	token  uint64
	cancel context.CancelFunc
}

// Controller 单个起草向导的编排器
// mu 只在挂起点之间持有，网络调用期间不持锁
type Controller struct {
	mu        sync.Mutex
	session   *entity.DraftSession
	phase     Phase
	handles   map[OperationKind]*operationHandle
	nextToken uint64
	// dictation 语音输入的基础文本，按字段名存放
	dictation  map[string]string
	lastActive time.Time

	backend DraftingBackend
	handoff ProjectHandoff
	opts    Options
}

// NewController 创建向导控制器；handoff 可为 nil
func NewController(session *entity.DraftSession, be DraftingBackend, handoff ProjectHandoff, opts Options) *Controller {
	if opts.MinPromptLength <= 0 {
		opts.MinPromptLength = 50
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "English"
	}
	if session.Language == "" {
		session.Language = opts.DefaultLanguage
	}
	return &Controller{
		session:    session,
		phase:      PhaseIdle,
		handles:    make(map[OperationKind]*operationHandle, 2),
		dictation:  map[string]string{},
		lastActive: time.Now(),
		backend:    be,
		handoff:    handoff,
		opts:       opts,
	}
}

// State 会话快照
type State struct {
	Session *entity.DraftSession
	Phase   Phase
}

// Snapshot 返回会话深拷贝与当前阶段
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Session: c.session.Clone(), Phase: c.phase}
}

// LastActive 最近一次操作时间
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// InFlight 当前在途操作数
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// ---- 字段设置 ----

// SetPrompt 设置提示词
func (c *Controller) SetPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Prompt = prompt
	c.touchLocked()
}

// SetProjectName 设置项目名称
func (c *Controller) SetProjectName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.ProjectName = name
	c.touchLocked()
}

// SetUserProfile 设置随询问发送的用户画像
func (c *Controller) SetUserProfile(profile map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.UserProfile = profile
	c.touchLocked()
}

// SetLanguage 设置语言，必须属于支持列表
func (c *Controller) SetLanguage(language string) error {
	if !slices.Contains(c.opts.Languages, language) {
		return apperrors.ErrValidationFailed.WithDetail("unsupported language: " + language)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Language = language
	c.touchLocked()
	return nil
}

// SelectTemplate 选择模板；templateID 为 nil 表示清除
func (c *Controller) SelectTemplate(templateID *string, s3Key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if templateID == nil {
		c.session.SelectedTemplateID = nil
		c.session.TemplateS3Key = ""
	} else {
		id := *templateID
		c.session.SelectedTemplateID = &id
		c.session.TemplateS3Key = s3Key
	}
	c.touchLocked()
}

// SetAnswer 填写第 idx 个问题的回答
func (c *Controller) SetAnswer(idx int, answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.SetAnswer(idx, answer) {
		return apperrors.ErrInvalidParam.WithDetail("answer index out of range: " + strconv.Itoa(idx))
	}
	c.touchLocked()
	return nil
}

// SetDictationBase 记录语音输入开始时字段已有的文本
func (c *Controller) SetDictationBase(field, base string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dictation[field] = base
	c.touchLocked()
}

// DictationText 将识别结果拼接到基础文本之后
func (c *Controller) DictationText(field, transcript string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := strings.TrimRight(c.dictation[field], " ")
	transcript = strings.TrimSpace(transcript)
	switch {
	case base == "":
		return transcript
	case transcript == "":
		return base
	default:
		return base + " " + transcript
	}
}

// Back 第 2 步返回第 1 步，问题与回答保留
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.SetStep(entity.DraftStepPrompt)
	c.touchLocked()
}

// Close 取消所有在途请求并重置会话，可重复调用
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAllLocked()
	c.session.ClearQuestions()
	c.session.SetStep(entity.DraftStepPrompt)
	c.session.IsGenerating = false
	c.dictation = map[string]string{}
	c.phase = PhaseIdle
	c.touchLocked()
}

// ---- 询问与生成 ----

// validateLocked 本地校验，不发起网络请求
func (c *Controller) validateLocked() error {
	prompt := strings.TrimSpace(c.session.Prompt)
	if prompt == "" {
		return apperrors.ErrValidationFailed.WithDetail("prompt is required")
	}
	if n := utf8.RuneCountInString(prompt); n < c.opts.MinPromptLength {
		return apperrors.ErrValidationFailed.WithDetail(
			"prompt must be at least " + strconv.Itoa(c.opts.MinPromptLength) + " characters")
	}
	if strings.TrimSpace(c.session.ProjectName) == "" {
		return apperrors.ErrValidationFailed.WithDetail("project name is required")
	}
	if len(c.opts.Languages) > 0 && !slices.Contains(c.opts.Languages, c.session.Language) {
		return apperrors.ErrValidationFailed.WithDetail("unsupported language: " + c.session.Language)
	}
	return nil
}

// SubmitInquiry 发起澄清询问
// 有问题时进入第 2 步；无问题或失败时在同一调用内串联跳过澄清的生成
func (c *Controller) SubmitInquiry(ctx context.Context) entity.InquiryOutcome {
	ctx = logger.WithContext(ctx, logger.WizardIDKey, c.session.ID)

	c.mu.Lock()
	if c.phase == PhaseDone {
		c.mu.Unlock()
		metrics.DraftingInquiryTotal.WithLabelValues("rejected").Inc()
		return entity.InquiryOutcome{Kind: entity.InquiryRejected, Err: apperrors.ErrWizardCompleted}
	}
	if err := c.validateLocked(); err != nil {
		c.mu.Unlock()
		metrics.DraftingInquiryTotal.WithLabelValues("rejected").Inc()
		return entity.InquiryOutcome{Kind: entity.InquiryRejected, Err: err}
	}
	opCtx, token := c.beginLocked(ctx, OpInquiry)
	c.phase = PhaseAwaitingInquiry
	req := backend.InquiryRequest{
		UserPrompt:  c.session.Prompt,
		Language:    c.session.Language,
		DocTypeHint: c.session.ProjectName,
		UserProfile: c.session.UserProfile,
	}
	c.mu.Unlock()

	resp, err := c.backend.Inquiry(opCtx, req)

	c.mu.Lock()
	if !c.isCurrentLocked(OpInquiry, token) {
		c.mu.Unlock()
		metrics.DraftingInquiryTotal.WithLabelValues("superseded").Inc()
		return entity.InquiryOutcome{Kind: entity.InquirySuperseded}
	}
	cancelled := opCtx.Err() != nil
	c.releaseLocked(OpInquiry)
	if cancelled {
		// 调用方已取消，不进入降级路径
		c.session.IsGenerating = false
		c.phase = PhaseIdle
		c.mu.Unlock()
		metrics.DraftingInquiryTotal.WithLabelValues("superseded").Inc()
		return entity.InquiryOutcome{Kind: entity.InquirySuperseded}
	}

	if err == nil && resp != nil && len(resp.ClarificationQuestions) > 0 {
		c.session.ReplaceQuestions(resp.ClarificationQuestions)
		c.session.SetStep(entity.DraftStepClarify)
		c.session.IsGenerating = false
		c.phase = PhaseIdle
		questions := append([]string{}, c.session.Questions...)
		c.mu.Unlock()

		metrics.DraftingInquiryTotal.WithLabelValues("clarify").Inc()
		logger.Info(ctx, "clarification questions received", "count", len(questions))
		return entity.InquiryOutcome{Kind: entity.InquiryNeedsClarification, Questions: questions}
	}

	fallback := err != nil
	if fallback {
		metrics.DraftingInquiryTotal.WithLabelValues("fallback").Inc()
		logger.Warn(ctx, "inquiry failed, falling back to direct generation", "error", err.Error())
	} else {
		metrics.DraftingInquiryTotal.WithLabelValues("proceed").Inc()
	}

	// 同一临界区内安装生成句柄，isGenerating 在串联期间保持为 true
	call := c.beginGenerationLocked(ctx, true, nil)
	c.mu.Unlock()

	gen := c.runGeneration(ctx, call)
	return entity.InquiryOutcome{Kind: entity.InquiryProceedToGeneration, Generation: &gen, Fallback: fallback}
}

// SubmitGeneration 发起文档生成
// skipClarification 为 true 时不发送澄清回答；overrideFirstAnswer 覆盖第 0 题的回答
func (c *Controller) SubmitGeneration(ctx context.Context, skipClarification bool, overrideFirstAnswer *string) entity.GenerationOutcome {
	ctx = logger.WithContext(ctx, logger.WizardIDKey, c.session.ID)

	c.mu.Lock()
	if c.phase == PhaseDone {
		c.mu.Unlock()
		return completedOutcome()
	}
	call := c.beginGenerationLocked(ctx, skipClarification, overrideFirstAnswer)
	c.mu.Unlock()

	return c.runGeneration(ctx, call)
}

// SkipQuestions 跳过澄清问题
// 没有问题时等价于跳过澄清直接生成；否则以完整提示词作为第 0 题的回答
func (c *Controller) SkipQuestions(ctx context.Context) entity.GenerationOutcome {
	ctx = logger.WithContext(ctx, logger.WizardIDKey, c.session.ID)

	c.mu.Lock()
	if c.phase == PhaseDone {
		c.mu.Unlock()
		return completedOutcome()
	}
	var call generationCall
	if len(c.session.Questions) == 0 {
		call = c.beginGenerationLocked(ctx, true, nil)
	} else {
		prompt := c.session.Prompt
		c.session.Answers[0] = prompt
		c.session.SkippedQuestions[0] = true
		call = c.beginGenerationLocked(ctx, false, &prompt)
	}
	c.mu.Unlock()

	return c.runGeneration(ctx, call)
}

// completedOutcome 向导已完成，Done 为终态
func completedOutcome() entity.GenerationOutcome {
	metrics.DraftingGenerationTotal.WithLabelValues(string(entity.GenerationRejected), "false").Inc()
	return entity.GenerationOutcome{Kind: entity.GenerationRejected, Err: apperrors.ErrWizardCompleted}
}

// generationCall 已安装句柄、待发出的生成请求
type generationCall struct {
	ctx   context.Context
	token uint64
	req   backend.GenerateRequest
}

// beginGenerationLocked 取消所有在途请求并构造生成请求
func (c *Controller) beginGenerationLocked(ctx context.Context, skip bool, override *string) generationCall {
	opCtx, token := c.beginLocked(ctx, OpGeneration)
	c.phase = PhaseAwaitingGeneration

	req := backend.GenerateRequest{
		UserPrompt:        c.session.Prompt,
		UserID:            c.session.UserID,
		DocTypeHint:       c.session.ProjectName,
		Language:          c.session.Language,
		SkipClarification: skip,
		S3Key:             c.session.TemplateS3Key,
		Metadata: map[string]any{
			"project_name": c.session.ProjectName,
			"wizard_id":    c.session.ID,
		},
	}
	if c.session.SelectedTemplateID != nil {
		req.Metadata["template_id"] = *c.session.SelectedTemplateID
	}
	if !skip {
		req.ClarificationAnswers = c.session.ClarificationAnswers(override)
	}
	return generationCall{ctx: opCtx, token: token, req: req}
}

// runGeneration 发出生成请求并处理结果；句柄仍有效时在退出前清除 isGenerating
func (c *Controller) runGeneration(ctx context.Context, call generationCall) (outcome entity.GenerationOutcome) {
	skipLabel := strconv.FormatBool(call.req.SkipClarification)
	start := time.Now()

	defer func() {
		metrics.DraftingGenerationTotal.WithLabelValues(string(outcome.Kind), skipLabel).Inc()
	}()

	resp, err := c.backend.Generate(call.ctx, call.req)
	metrics.DraftingGenerationDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if !c.isCurrentLocked(OpGeneration, call.token) {
		c.mu.Unlock()
		return entity.GenerationOutcome{Kind: entity.GenerationSuperseded}
	}

	defer func() {
		c.releaseLocked(OpGeneration)
		c.session.IsGenerating = false
		c.touchLocked()
		c.mu.Unlock()
	}()

	if call.ctx.Err() != nil {
		c.phase = PhaseIdle
		return entity.GenerationOutcome{Kind: entity.GenerationSuperseded}
	}
	if err != nil {
		c.phase = PhaseIdle
		logger.Error(ctx, "document generation failed", err, "step", int(c.session.Step))
		return entity.GenerationOutcome{Kind: entity.GenerationFailed, Reason: failureReason(err), Err: err}
	}

	doc := reconcile(resp.HTMLContent, resp.TemplateJSON, resp.DocMetadata, resp.PipelineMetrics)
	if n := len(doc.SynthesizedVariables); n > 0 {
		metrics.DraftingSynthesizedVariables.Add(float64(n))
		logger.Debug(ctx, "synthesized missing template variables", "names", doc.SynthesizedVariables)
	}
	c.phase = PhaseDone

	if c.handoff != nil {
		session := c.session.Clone()
		// 投递在锁外异步完成，失败不影响生成结果
		go c.handOff(context.WithoutCancel(ctx), session, doc)
	}
	return entity.GenerationOutcome{Kind: entity.GenerationGenerated, Document: doc}
}

func (c *Controller) handOff(ctx context.Context, session *entity.DraftSession, doc *entity.GeneratedDocument) {
	if err := c.handoff.HandOff(ctx, session, doc); err != nil {
		logger.Error(ctx, "project hand-off failed", err)
	}
}

func failureReason(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Detail != "" {
			return appErr.Message + ": " + appErr.Detail
		}
		return appErr.Message
	}
	return err.Error()
}

// ---- 句柄管理 ----

// beginLocked 取消所有在途请求并为 kind 安装新句柄，同时置 isGenerating
func (c *Controller) beginLocked(ctx context.Context, kind OperationKind) (context.Context, uint64) {
	c.cancelAllLocked()
	c.nextToken++
	opCtx, cancel := context.WithCancel(ctx)
	c.handles[kind] = &operationHandle{kind: kind, token: c.nextToken, cancel: cancel}
	c.session.IsGenerating = true
	c.touchLocked()
	return opCtx, c.nextToken
}

// cancelAllLocked 唯一的取消入口
func (c *Controller) cancelAllLocked() {
	for kind, h := range c.handles {
		h.cancel()
		delete(c.handles, kind)
	}
}

func (c *Controller) isCurrentLocked(kind OperationKind, token uint64) bool {
	h, ok := c.handles[kind]
	return ok && h.token == token
}

func (c *Controller) releaseLocked(kind OperationKind) {
	if h, ok := c.handles[kind]; ok {
		h.cancel()
		delete(c.handles, kind)
	}
}

func (c *Controller) touchLocked() {
	c.lastActive = time.Now()
}
