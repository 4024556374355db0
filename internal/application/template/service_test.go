package template

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexdraft-bff/internal/domain/entity"
	"lexdraft-bff/internal/infrastructure/backend"
	"lexdraft-bff/internal/infrastructure/persistence/redis"
	apperrors "lexdraft-bff/pkg/errors"
)

type fakeGateway struct {
	mu       sync.Mutex
	lists    int
	searches []string
	phases   []string
	uploaded []byte

	initErr     error
	putErr      error
	completeErr error
}

func (g *fakeGateway) record(phase string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phases = append(g.phases, phase)
}

func (g *fakeGateway) SearchTemplates(_ context.Context, query string, _ backend.PageOptions) (*entity.TemplatePage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searches = append(g.searches, query)
	return &entity.TemplatePage{Templates: []entity.Template{{ID: "t-search", Name: query}}, TotalCount: 1}, nil
}

func (g *fakeGateway) ListTemplates(context.Context, backend.PageOptions) (*entity.TemplatePage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lists++
	return &entity.TemplatePage{Templates: []entity.Template{{ID: "t1", Name: "NDA"}}, TotalCount: 1}, nil
}

func (g *fakeGateway) InitUpload(_ context.Context, req backend.InitUploadRequest) (*entity.UploadTicket, error) {
	g.record("init")
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &entity.UploadTicket{UploadURL: "https://s3.example/put", TemplateID: "tpl-1", S3Key: "templates/" + req.FileName}, nil
}

func (g *fakeGateway) PutPresigned(_ context.Context, _, _ string, body io.Reader, size int64, progress backend.ProgressFunc) error {
	g.record("put")
	if g.putErr != nil {
		return g.putErr
	}
	data, _ := io.ReadAll(body)
	g.mu.Lock()
	g.uploaded = data
	g.mu.Unlock()
	if progress != nil {
		progress(size, size)
	}
	return nil
}

func (g *fakeGateway) CompleteUpload(_ context.Context, req backend.CompleteUploadRequest) (*entity.Template, error) {
	g.record("complete")
	if g.completeErr != nil {
		return nil, g.completeErr
	}
	return &entity.Template{ID: req.TemplateID, S3Key: req.S3Key}, nil
}

func (g *fakeGateway) PreviewDocument(_ context.Context, id string) (*entity.PreviewLink, error) {
	return &entity.PreviewLink{PreviewURL: "/proxy-pdf?url=doc-" + id}, nil
}

func (g *fakeGateway) PublicPreviewDocument(_ context.Context, key string) (*entity.PreviewLink, error) {
	return &entity.PreviewLink{PreviewURL: "/proxy-pdf?url=" + key}, nil
}

func newRedisCache(t *testing.T) *redis.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewCache(redis.NewClientFromRedis(rdb))
}

func TestService_ListUsesCache(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, newRedisCache(t), Config{CacheTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		page, err := svc.List(ctx, "", 1, 10)
		require.NoError(t, err)
		assert.Equal(t, "NDA", page.Templates[0].Name)
	}
	assert.Equal(t, 1, gw.lists)

	page, err := svc.List(ctx, "  lease ", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "lease", page.Templates[0].Name)
	assert.Equal(t, []string{"lease"}, gw.searches)
}

func TestService_ListWithoutCache(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, nil, Config{})

	_, _ = svc.List(context.Background(), "", 1, 10)
	_, _ = svc.List(context.Background(), "", 1, 10)

	assert.Equal(t, 2, gw.lists)
}

func TestService_UploadRunsAllPhasesAndInvalidatesCache(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, newRedisCache(t), Config{})
	ctx := context.Background()
	_, _ = svc.List(ctx, "", 1, 10)

	body := []byte("%PDF-1.4 test")
	tpl, err := svc.Upload(ctx, UploadInput{
		File: FileInput{Name: "Lease.PDF", Size: int64(len(body)), ContentType: "application/pdf"},
		Body: bytes.NewReader(body),
	})

	require.NoError(t, err)
	assert.Equal(t, "tpl-1", tpl.ID)
	assert.Equal(t, "Lease", tpl.Name)
	assert.Equal(t, "pdf", tpl.FileType)
	assert.Equal(t, []string{"init", "put", "complete"}, gw.phases)
	assert.Equal(t, body, gw.uploaded)

	_, _ = svc.List(ctx, "", 1, 10)
	assert.Equal(t, 2, gw.lists, "listing cache must be invalidated after upload")
}

func TestService_UploadFailureDoesNotResume(t *testing.T) {
	tests := []struct {
		name   string
		gw     *fakeGateway
		phases []string
	}{
		{name: "init", gw: &fakeGateway{initErr: errors.New("boom")}, phases: []string{"init"}},
		{name: "put", gw: &fakeGateway{putErr: errors.New("boom")}, phases: []string{"init", "put"}},
		{name: "complete", gw: &fakeGateway{completeErr: apperrors.ErrBackend.WithDetail("not found")}, phases: []string{"init", "put", "complete"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.gw, nil, Config{})

			_, err := svc.Upload(context.Background(), UploadInput{
				File: FileInput{Name: "a.docx", Size: 3},
				Body: strings.NewReader("abc"),
			})

			require.Error(t, err)
			appErr := apperrors.AsAppError(err)
			assert.Equal(t, apperrors.CodeUploadFailed, appErr.Code)
			assert.True(t, strings.HasPrefix(appErr.Detail, tt.name+":"))
			assert.Equal(t, tt.phases, tt.gw.phases)
		})
	}
}

func TestService_UploadCancellationPassesThrough(t *testing.T) {
	svc := NewService(&fakeGateway{putErr: context.Canceled}, nil, Config{})

	_, err := svc.Upload(context.Background(), UploadInput{File: FileInput{Name: "a.txt", Size: 1}, Body: strings.NewReader("a")})

	assert.True(t, errors.Is(err, context.Canceled))
}

func TestService_UploadRejectsInvalidFileWithoutNetwork(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, nil, Config{MaxUploadBytes: 10})

	_, err := svc.Upload(context.Background(), UploadInput{File: FileInput{Name: "big.pdf", Size: 11}, Body: strings.NewReader("")})

	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))
	assert.Empty(t, gw.phases)
}

func TestService_ValidateFiles(t *testing.T) {
	svc := NewService(&fakeGateway{}, nil, Config{MaxUploadBytes: 100, AllowedExtensions: []string{"pdf", ".TXT"}})

	res := svc.ValidateFiles([]FileInput{
		{Name: "a.pdf", Size: 10},
		{Name: "b.exe", Size: 10},
		{Name: "notes.txt", Size: 10},
		{Name: "huge.pdf", Size: 101},
		{Name: "empty.pdf", Size: 0},
		{Name: "noext", Size: 10},
	})

	require.Len(t, res.Accepted, 2)
	assert.Equal(t, "a.pdf", res.Accepted[0].Name)
	assert.Equal(t, "notes.txt", res.Accepted[1].Name)
	require.Len(t, res.Invalid, 4)
	assert.Contains(t, res.Invalid[0].Reason, "unsupported file type")
	assert.Contains(t, res.Invalid[1].Reason, "too large")
	assert.Equal(t, "4 invalid file(s)", res.Summary())
	assert.Empty(t, ValidationResult{}.Summary())
}

func TestService_PreviewRequiresIdentifier(t *testing.T) {
	svc := NewService(&fakeGateway{}, nil, Config{})
	ctx := context.Background()

	_, err := svc.Preview(ctx, " ")
	assert.Error(t, err)
	_, err = svc.PublicPreview(ctx, "")
	assert.Error(t, err)

	link, err := svc.PublicPreview(ctx, "templates/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/proxy-pdf?url=templates/a.pdf", link.PreviewURL)
}

func TestService_DoesNotMutateCallerExtensions(t *testing.T) {
	exts := []string{"PDF", " .Docx "}
	svc := NewService(&fakeGateway{}, nil, Config{AllowedExtensions: exts})

	assert.Equal(t, []string{"PDF", " .Docx "}, exts)
	assert.NoError(t, svc.ValidateFile(FileInput{Name: "a.docx", Size: 1}))
	assert.NoError(t, svc.ValidateFile(FileInput{Name: "b.PDF", Size: 1}))
}
