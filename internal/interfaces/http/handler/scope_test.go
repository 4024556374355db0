package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexdraft-bff/internal/application/scope"
	"lexdraft-bff/internal/domain/entity"
	apperrors "lexdraft-bff/pkg/errors"
)

func newScopeEngine() (*gin.Engine, *scope.Store) {
	store := scope.NewStore(scope.NewMemoryBackend())
	h := NewScopeHandler(store)

	engine := gin.New()
	g := engine.Group("/v1/scopes")
	g.POST("/:key", h.Init)
	g.GET("/:key", h.Get)
	g.DELETE("/:key", h.Reset)
	g.PATCH("/:key", h.Command)
	g.PATCH("/:key/form", h.MergeForm)
	g.POST("/:key/files", h.AddFiles)
	g.POST("/:key/entries/:field", h.AddEntry)
	g.DELETE("/:key/entries/:field/:idx", h.RemoveEntry)
	g.GET("/:key/events", h.Events)
	return engine, store
}

func TestScope_UninitializedIsNotFound(t *testing.T) {
	engine, _ := newScopeEngine()

	w, env := doJSON(t, engine, http.MethodGet, "/v1/scopes/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(apperrors.CodeScopeNotInitialized), env.Error.ErrorCode)
}

func TestScope_CommandsAreIsolatedPerKey(t *testing.T) {
	engine, _ := newScopeEngine()
	for _, key := range []string{"A", "B"} {
		w, _ := doJSON(t, engine, http.MethodPost, "/v1/scopes/"+key, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env := doJSON(t, engine, http.MethodPatch, "/v1/scopes/A", map[string]any{
		"step":          2,
		"selected_type": "contract",
		"form_field":    map[string]any{"name": "projectName", "value": "Alpha"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	a := decodeData[entity.ScopeState](t, env)
	assert.Equal(t, 2, a.Step)
	assert.Equal(t, "Alpha", a.FormData["projectName"])

	_, env = doJSON(t, engine, http.MethodGet, "/v1/scopes/B", nil)
	b := decodeData[entity.ScopeState](t, env)
	assert.Equal(t, 1, b.Step)
	assert.Empty(t, b.FormData)

	w, _ = doJSON(t, engine, http.MethodPatch, "/v1/scopes/A", map[string]any{"step": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScope_MergeFilesAndEntries(t *testing.T) {
	engine, _ := newScopeEngine()
	_, _ = doJSON(t, engine, http.MethodPost, "/v1/scopes/dlg", nil)

	w, env := doJSON(t, engine, http.MethodPatch, "/v1/scopes/dlg/form", `{"parties":{"a":"Acme"},"term":12}`)
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeData[entity.ScopeState](t, env)
	assert.Equal(t, map[string]any{"a": "Acme"}, st.FormData["parties"])

	w, _ = doJSON(t, engine, http.MethodPatch, "/v1/scopes/dlg/form", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = doJSON(t, engine, http.MethodPost, "/v1/scopes/dlg/files", map[string]any{
		"files":         []map[string]any{{"name": "a.pdf", "size": 10}},
		"invalid_files": []map[string]any{{"name": "b.exe", "reason": "unsupported"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeData[entity.ScopeState](t, env)
	assert.Len(t, st.Files, 1)
	assert.Len(t, st.InvalidFiles, 1)

	_, _ = doJSON(t, engine, http.MethodPost, "/v1/scopes/dlg/entries/authors", map[string]string{"value": " Ann "})
	_, env = doJSON(t, engine, http.MethodPost, "/v1/scopes/dlg/entries/authors", map[string]string{"value": "Bob"})
	st = decodeData[entity.ScopeState](t, env)
	assert.Equal(t, []string{"Ann", "Bob"}, st.MultiEntries["authors"])

	w, env = doJSON(t, engine, http.MethodDelete, "/v1/scopes/dlg/entries/authors/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeData[entity.ScopeState](t, env)
	assert.Equal(t, []string{"Bob"}, st.MultiEntries["authors"])

	w, _ = doJSON(t, engine, http.MethodDelete, "/v1/scopes/dlg/entries/authors/5", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = doJSON(t, engine, http.MethodDelete, "/v1/scopes/dlg", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeData[entity.ScopeState](t, env)
	assert.Empty(t, st.Files)
	assert.Empty(t, st.MultiEntries)
}

func TestScope_EventsStreamSnapshots(t *testing.T) {
	engine, store := newScopeEngine()
	srv := httptest.NewServer(engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := store.InitScope(ctx, "dlg")
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/scopes/dlg/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"), resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readData := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data:") {
				return line
			}
		}
	}

	assert.Contains(t, readData(), `"step":1`)

	_, err = store.SetSelectedType(ctx, "dlg", "memo")
	require.NoError(t, err)
	assert.Contains(t, readData(), `"selected_type":"memo"`)
}

func TestScope_EventsForUninitializedScope(t *testing.T) {
	engine, _ := newScopeEngine()

	w, _ := doJSON(t, engine, http.MethodGet, "/v1/scopes/missing/events", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
