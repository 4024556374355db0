package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexdraft-bff/internal/domain/entity"
	"lexdraft-bff/internal/infrastructure/backend"
	apperrors "lexdraft-bff/pkg/errors"
)

const ndaPrompt = "Draft an NDA between two parties regarding confidential business information shared during negotiations"

type fakeBackend struct {
	mu          sync.Mutex
	inquiries   []backend.InquiryRequest
	generations []backend.GenerateRequest

	inquiryFn  func(ctx context.Context, req backend.InquiryRequest) (*backend.InquiryResponse, error)
	generateFn func(ctx context.Context, req backend.GenerateRequest) (*backend.GenerateResponse, error)
}

func (f *fakeBackend) Inquiry(ctx context.Context, req backend.InquiryRequest) (*backend.InquiryResponse, error) {
	f.mu.Lock()
	f.inquiries = append(f.inquiries, req)
	fn := f.inquiryFn
	f.mu.Unlock()
	if fn == nil {
		return &backend.InquiryResponse{}, nil
	}
	return fn(ctx, req)
}

func (f *fakeBackend) Generate(ctx context.Context, req backend.GenerateRequest) (*backend.GenerateResponse, error) {
	f.mu.Lock()
	f.generations = append(f.generations, req)
	fn := f.generateFn
	f.mu.Unlock()
	if fn == nil {
		return &backend.GenerateResponse{
			HTMLContent:  "<p>{{party_name}}</p>",
			TemplateJSON: json.RawMessage(`{"variables":{}}`),
		}, nil
	}
	return fn(ctx, req)
}

func (f *fakeBackend) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inquiries), len(f.generations)
}

func (f *fakeBackend) lastGeneration(t *testing.T) backend.GenerateRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.generations)
	return f.generations[len(f.generations)-1]
}

type fakeHandoff struct {
	done chan *entity.GeneratedDocument
	err  error
}

func (h *fakeHandoff) HandOff(_ context.Context, _ *entity.DraftSession, doc *entity.GeneratedDocument) error {
	h.done <- doc
	return h.err
}

func testOptions() Options {
	return Options{MinPromptLength: 50, DefaultLanguage: "English", Languages: []string{"English", "French"}}
}

func newTestController(be DraftingBackend, handoff ProjectHandoff) *Controller {
	ctrl := NewController(entity.NewDraftSession("w1", "u1", ""), be, handoff, testOptions())
	ctrl.SetPrompt(ndaPrompt)
	ctrl.SetProjectName("NDA Draft")
	return ctrl
}

func marshalRequest(t *testing.T, req backend.GenerateRequest) map[string]any {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestSubmitInquiry_RejectsShortPromptWithoutNetwork(t *testing.T) {
	be := &fakeBackend{}
	ctrl := newTestController(be, nil)
	ctrl.SetPrompt(strings.Repeat("a", 49))

	out := ctrl.SubmitInquiry(context.Background())

	assert.Equal(t, entity.InquiryRejected, out.Kind)
	assert.True(t, errors.Is(out.Err, apperrors.ErrValidationFailed))
	inquiries, generations := be.calls()
	assert.Zero(t, inquiries)
	assert.Zero(t, generations)
	assert.False(t, ctrl.Snapshot().Session.IsGenerating)
}

func TestSubmitInquiry_RejectsMissingProjectName(t *testing.T) {
	be := &fakeBackend{}
	ctrl := newTestController(be, nil)
	ctrl.SetProjectName("   ")

	out := ctrl.SubmitInquiry(context.Background())

	assert.Equal(t, entity.InquiryRejected, out.Kind)
	inquiries, _ := be.calls()
	assert.Zero(t, inquiries)
}

func TestSubmitInquiry_PromptLengthCountsCharacters(t *testing.T) {
	be := &fakeBackend{}
	ctrl := newTestController(be, nil)
	// 50 个多字节字符
	ctrl.SetPrompt(strings.Repeat("合", 50))

	out := ctrl.SubmitInquiry(context.Background())

	assert.NotEqual(t, entity.InquiryRejected, out.Kind)
}

func TestSubmitInquiry_WithQuestionsMovesToStepTwo(t *testing.T) {
	be := &fakeBackend{
		inquiryFn: func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return &backend.InquiryResponse{ClarificationQuestions: []string{"What is the governing law?"}}, nil
		},
	}
	ctrl := newTestController(be, nil)

	out := ctrl.SubmitInquiry(context.Background())

	require.Equal(t, entity.InquiryNeedsClarification, out.Kind)
	assert.Equal(t, []string{"What is the governing law?"}, out.Questions)

	state := ctrl.Snapshot()
	assert.Equal(t, entity.DraftStepClarify, state.Session.Step)
	assert.Len(t, state.Session.Questions, 1)
	assert.False(t, state.Session.IsGenerating)
	assert.Equal(t, PhaseIdle, state.Phase)

	be.mu.Lock()
	req := be.inquiries[0]
	be.mu.Unlock()
	assert.Equal(t, ndaPrompt, req.UserPrompt)
	assert.Equal(t, "NDA Draft", req.DocTypeHint)
	assert.Equal(t, "English", req.Language)

	_, generations := be.calls()
	assert.Zero(t, generations)
}

func TestSubmitInquiry_NoQuestionsChainsGeneration(t *testing.T) {
	be := &fakeBackend{}
	ctrl := newTestController(be, nil)

	out := ctrl.SubmitInquiry(context.Background())

	require.Equal(t, entity.InquiryProceedToGeneration, out.Kind)
	assert.False(t, out.Fallback)
	require.NotNil(t, out.Generation)
	assert.Equal(t, entity.GenerationGenerated, out.Generation.Kind)

	body := marshalRequest(t, be.lastGeneration(t))
	assert.Equal(t, true, body["skip_clarification"])
	assert.NotContains(t, body, "clarification_answers")
	assert.Equal(t, "u1", body["user_id"])

	state := ctrl.Snapshot()
	assert.False(t, state.Session.IsGenerating)
	assert.Equal(t, PhaseDone, state.Phase)
	assert.Zero(t, ctrl.InFlight())
}

func TestSubmitInquiry_NetworkErrorFallsBackToGeneration(t *testing.T) {
	be := &fakeBackend{
		inquiryFn: func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return nil, apperrors.New(apperrors.CodeServiceUnavailable, "backend unreachable")
		},
	}
	ctrl := newTestController(be, nil)

	out := ctrl.SubmitInquiry(context.Background())

	require.Equal(t, entity.InquiryProceedToGeneration, out.Kind)
	assert.True(t, out.Fallback)
	assert.Nil(t, out.Err)
	require.NotNil(t, out.Generation)
	assert.Equal(t, entity.GenerationGenerated, out.Generation.Kind)
	assert.True(t, be.lastGeneration(t).SkipClarification)
}

func TestSubmitInquiry_KeepsGeneratingAcrossChain(t *testing.T) {
	var ctrl *Controller
	var duringChain bool
	be := &fakeBackend{
		generateFn: func(context.Context, backend.GenerateRequest) (*backend.GenerateResponse, error) {
			duringChain = ctrl.Snapshot().Session.IsGenerating
			return &backend.GenerateResponse{HTMLContent: "<p/>"}, nil
		},
	}
	ctrl = newTestController(be, nil)

	ctrl.SubmitInquiry(context.Background())

	assert.True(t, duringChain)
	assert.False(t, ctrl.Snapshot().Session.IsGenerating)
}

func TestSkipQuestions_SeedsFirstAnswerWithPrompt(t *testing.T) {
	be := &fakeBackend{
		inquiryFn: func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return &backend.InquiryResponse{ClarificationQuestions: []string{"Governing law?", "Term length?"}}, nil
		},
	}
	ctrl := newTestController(be, nil)
	require.Equal(t, entity.InquiryNeedsClarification, ctrl.SubmitInquiry(context.Background()).Kind)

	out := ctrl.SkipQuestions(context.Background())

	require.Equal(t, entity.GenerationGenerated, out.Kind)
	state := ctrl.Snapshot()
	assert.Equal(t, ndaPrompt, state.Session.Answers[0])
	assert.True(t, state.Session.SkippedQuestions[0])

	req := be.lastGeneration(t)
	assert.False(t, req.SkipClarification)
	assert.Equal(t, map[string]string{"Governing law?": ndaPrompt}, req.ClarificationAnswers)
}

func TestSkipQuestions_WithoutQuestionsSkipsClarification(t *testing.T) {
	be := &fakeBackend{}
	ctrl := newTestController(be, nil)

	out := ctrl.SkipQuestions(context.Background())

	assert.Equal(t, entity.GenerationGenerated, out.Kind)
	req := be.lastGeneration(t)
	assert.True(t, req.SkipClarification)
	assert.Nil(t, req.ClarificationAnswers)
}

func TestSubmitGeneration_SendsTrimmedNonEmptyAnswers(t *testing.T) {
	be := &fakeBackend{
		inquiryFn: func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return &backend.InquiryResponse{ClarificationQuestions: []string{"A?", "B?", "C?"}}, nil
		},
	}
	ctrl := newTestController(be, nil)
	ctrl.SubmitInquiry(context.Background())
	require.NoError(t, ctrl.SetAnswer(0, "  yes "))
	require.NoError(t, ctrl.SetAnswer(2, "   "))
	assert.Error(t, ctrl.SetAnswer(3, "out of range"))

	ctrl.SubmitGeneration(context.Background(), false, nil)

	assert.Equal(t, map[string]string{"A?": "yes"}, be.lastGeneration(t).ClarificationAnswers)
}

func TestSubmitGeneration_FailureKeepsStep(t *testing.T) {
	be := &fakeBackend{
		inquiryFn: func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return &backend.InquiryResponse{ClarificationQuestions: []string{"Q?"}}, nil
		},
		generateFn: func(context.Context, backend.GenerateRequest) (*backend.GenerateResponse, error) {
			return nil, apperrors.New(apperrors.CodeBackendError, "backend reported failure").WithDetail("pipeline error")
		},
	}
	ctrl := newTestController(be, nil)
	ctrl.SubmitInquiry(context.Background())

	out := ctrl.SubmitGeneration(context.Background(), false, nil)

	assert.Equal(t, entity.GenerationFailed, out.Kind)
	assert.Contains(t, out.Reason, "pipeline error")
	state := ctrl.Snapshot()
	assert.Equal(t, entity.DraftStepClarify, state.Session.Step)
	assert.False(t, state.Session.IsGenerating)
	assert.Equal(t, PhaseIdle, state.Phase)
	_, generations := be.calls()
	assert.Equal(t, 1, generations)
}

func TestSubmitGeneration_ReconcilesPlaceholders(t *testing.T) {
	be := &fakeBackend{
		generateFn: func(context.Context, backend.GenerateRequest) (*backend.GenerateResponse, error) {
			return &backend.GenerateResponse{
				HTMLContent:  "<p>{{party_name}} and {{ effective_date }} and {{party_name}} and {{known}}</p>",
				TemplateJSON: json.RawMessage(`"{\"variables\":{\"known\":{\"value\":\"x\",\"editable\":false,\"type\":\"date\",\"label\":\"Known\"}}}"`),
			}, nil
		},
	}
	ctrl := newTestController(be, nil)

	out := ctrl.SubmitGeneration(context.Background(), true, nil)

	require.Equal(t, entity.GenerationGenerated, out.Kind)
	doc := out.Document
	assert.Equal(t, []string{"effective_date", "party_name"}, doc.SynthesizedVariables)
	assert.Len(t, doc.Variables, 3)
	assert.Equal(t, entity.Variable{Value: "", Editable: true, Type: "text", Label: "Party Name"}, doc.Variables["party_name"])
	assert.False(t, doc.Variables["known"].Editable)
}

func TestSubmitGeneration_HandsOffGeneratedDocument(t *testing.T) {
	handoff := &fakeHandoff{done: make(chan *entity.GeneratedDocument, 1), err: errors.New("stream down")}
	ctrl := newTestController(&fakeBackend{}, handoff)

	out := ctrl.SubmitGeneration(context.Background(), true, nil)

	// 投递失败不影响生成结果
	require.Equal(t, entity.GenerationGenerated, out.Kind)
	select {
	case doc := <-handoff.done:
		assert.Equal(t, out.Document, doc)
	case <-time.After(time.Second):
		t.Fatal("hand-off was not invoked")
	}
}

func TestNewRequestSupersedesInFlightInquiry(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	be := &fakeBackend{
		// 忽略取消信号，模拟迟到的响应
		inquiryFn: func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			close(started)
			<-release
			return &backend.InquiryResponse{ClarificationQuestions: []string{"Stale?"}}, nil
		},
	}
	ctrl := newTestController(be, nil)

	result := make(chan entity.InquiryOutcome, 1)
	go func() { result <- ctrl.SubmitInquiry(context.Background()) }()
	<-started

	gen := ctrl.SubmitGeneration(context.Background(), true, nil)
	require.Equal(t, entity.GenerationGenerated, gen.Kind)

	close(release)
	out := <-result

	assert.Equal(t, entity.InquirySuperseded, out.Kind)
	state := ctrl.Snapshot()
	assert.Empty(t, state.Session.Questions)
	assert.Equal(t, entity.DraftStepPrompt, state.Session.Step)
	assert.Equal(t, PhaseDone, state.Phase)
}

func TestNewInquiryCancelsPreviousInquiry(t *testing.T) {
	var mu sync.Mutex
	var cancelled int
	first := make(chan struct{})
	be := &fakeBackend{}
	be.inquiryFn = func(ctx context.Context, _ backend.InquiryRequest) (*backend.InquiryResponse, error) {
		inquiries, _ := be.calls()
		if inquiries == 1 {
			close(first)
			<-ctx.Done()
			mu.Lock()
			cancelled++
			mu.Unlock()
			return nil, ctx.Err()
		}
		return &backend.InquiryResponse{ClarificationQuestions: []string{"Fresh?"}}, nil
	}
	ctrl := newTestController(be, nil)

	result := make(chan entity.InquiryOutcome, 1)
	go func() { result <- ctrl.SubmitInquiry(context.Background()) }()
	<-first

	second := ctrl.SubmitInquiry(context.Background())
	stale := <-result

	assert.Equal(t, entity.InquiryNeedsClarification, second.Kind)
	assert.Equal(t, entity.InquirySuperseded, stale.Kind)
	mu.Lock()
	assert.Equal(t, 1, cancelled)
	mu.Unlock()
	assert.Equal(t, []string{"Fresh?"}, ctrl.Snapshot().Session.Questions)
	_, generations := be.calls()
	assert.Zero(t, generations, "a cancelled inquiry must not fall back to generation")
}

func TestCloseCancelsInFlightGeneration(t *testing.T) {
	started := make(chan struct{})
	be := &fakeBackend{
		generateFn: func(ctx context.Context, _ backend.GenerateRequest) (*backend.GenerateResponse, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	ctrl := newTestController(be, nil)

	result := make(chan entity.GenerationOutcome, 1)
	go func() { result <- ctrl.SubmitGeneration(context.Background(), true, nil) }()
	<-started

	ctrl.Close()
	out := <-result

	assert.Equal(t, entity.GenerationSuperseded, out.Kind)
	assert.Zero(t, ctrl.InFlight())
	assert.False(t, ctrl.Snapshot().Session.IsGenerating)
}

func TestCallerCancellationIsNotFallback(t *testing.T) {
	be := &fakeBackend{
		inquiryFn: func(ctx context.Context, _ backend.InquiryRequest) (*backend.InquiryResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	ctrl := newTestController(be, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := ctrl.SubmitInquiry(ctx)

	assert.Equal(t, entity.InquirySuperseded, out.Kind)
	_, generations := be.calls()
	assert.Zero(t, generations)
	assert.False(t, ctrl.Snapshot().Session.IsGenerating)
}

func TestClose_IsIdempotent(t *testing.T) {
	be := &fakeBackend{
		inquiryFn: func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return &backend.InquiryResponse{ClarificationQuestions: []string{"Q?"}}, nil
		},
	}
	ctrl := newTestController(be, nil)
	ctrl.SubmitInquiry(context.Background())
	ctrl.SetDictationBase("prompt", "hello")

	ctrl.Close()
	once := ctrl.Snapshot()
	ctrl.Close()
	twice := ctrl.Snapshot()

	for _, s := range []State{once, twice} {
		assert.Equal(t, entity.DraftStepPrompt, s.Session.Step)
		assert.Empty(t, s.Session.Questions)
		assert.Empty(t, s.Session.Answers)
		assert.False(t, s.Session.IsGenerating)
		assert.Equal(t, PhaseIdle, s.Phase)
	}
	assert.Equal(t, "world", ctrl.DictationText("prompt", "world"))
}

func TestBackReturnsToFirstStep(t *testing.T) {
	be := &fakeBackend{
		inquiryFn: func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return &backend.InquiryResponse{ClarificationQuestions: []string{"Q?"}}, nil
		},
	}
	ctrl := newTestController(be, nil)
	ctrl.SubmitInquiry(context.Background())

	ctrl.Back()

	state := ctrl.Snapshot()
	assert.Equal(t, entity.DraftStepPrompt, state.Session.Step)
	assert.Equal(t, []string{"Q?"}, state.Session.Questions)
}

func TestSetLanguage(t *testing.T) {
	ctrl := newTestController(&fakeBackend{}, nil)

	assert.NoError(t, ctrl.SetLanguage("French"))
	assert.Error(t, ctrl.SetLanguage("Klingon"))
	assert.Equal(t, "French", ctrl.Snapshot().Session.Language)
}

func TestDictationText(t *testing.T) {
	ctrl := newTestController(&fakeBackend{}, nil)
	ctrl.SetDictationBase("prompt", "Draft a lease ")

	assert.Equal(t, "Draft a lease for an office", ctrl.DictationText("prompt", " for an office"))
	assert.Equal(t, "spoken", ctrl.DictationText("answer:0", "spoken"))
}

func TestSubmitInquiry_AnsweredInquiryIsNotSuperseded(t *testing.T) {
	for name, fn := range map[string]func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error){
		"questions": func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return &backend.InquiryResponse{ClarificationQuestions: []string{"Q?"}}, nil
		},
		"no questions": nil,
		"network error": func(context.Context, backend.InquiryRequest) (*backend.InquiryResponse, error) {
			return nil, errors.New("connection reset")
		},
	} {
		t.Run(name, func(t *testing.T) {
			ctrl := newTestController(&fakeBackend{inquiryFn: fn}, nil)

			out := ctrl.SubmitInquiry(context.Background())

			assert.NotEqual(t, entity.InquirySuperseded, out.Kind)
			assert.Zero(t, ctrl.InFlight())
		})
	}
}

func TestDoneIsTerminal(t *testing.T) {
	be := &fakeBackend{}
	ctrl := newTestController(be, nil)
	require.Equal(t, entity.GenerationGenerated, ctrl.SubmitGeneration(context.Background(), true, nil).Kind)
	require.Equal(t, PhaseDone, ctrl.Snapshot().Phase)

	inquiry := ctrl.SubmitInquiry(context.Background())
	assert.Equal(t, entity.InquiryRejected, inquiry.Kind)
	assert.True(t, errors.Is(inquiry.Err, apperrors.ErrWizardCompleted))

	gen := ctrl.SubmitGeneration(context.Background(), true, nil)
	assert.Equal(t, entity.GenerationRejected, gen.Kind)
	assert.True(t, errors.Is(gen.Err, apperrors.ErrWizardCompleted))
	assert.Equal(t, entity.GenerationRejected, ctrl.SkipQuestions(context.Background()).Kind)

	inquiries, generations := be.calls()
	assert.Zero(t, inquiries)
	assert.Equal(t, 1, generations)
	assert.Equal(t, PhaseDone, ctrl.Snapshot().Phase)
}
