package router

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"lexdraft-bff/internal/application/drafting"
	"lexdraft-bff/internal/application/scope"
	"lexdraft-bff/internal/config"
	"lexdraft-bff/internal/interfaces/http/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(cfg *config.Config) *gin.Engine {
	store := scope.NewStore(scope.NewMemoryBackend())
	handlers := &RouterHandlers{
		Health:   handler.NewHealthHandler(nil, nil, "test"),
		Wizard:   handler.NewWizardHandler(drafting.NewRegistry(nil, nil, drafting.Options{})),
		Scope:    handler.NewScopeHandler(store),
		Template: handler.NewTemplateHandler(nil, store),
		Proxy:    handler.NewProxyHandler([]string{"storage.example"}, time.Second),
	}
	return NewWithDeps(cfg, handlers, nil, nil).Engine()
}

func do(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRouter_AuthDisabledUsesDevIdentity(t *testing.T) {
	engine := newTestRouter(&config.Config{})

	assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, do(engine, http.MethodPost, "/v1/scopes/dialog").Code)
	assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/v1/scopes/dialog").Code)
	assert.Equal(t, http.StatusNotFound, do(engine, http.MethodGet, "/v1/drafting-wizards/nope").Code)
}

func TestRouter_AuthSkipsHealthAndProxy(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.JWT.Enabled = true
	cfg.Security.JWT.Secret = "s"
	engine := newTestRouter(cfg)

	assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/live").Code)
	assert.Equal(t, http.StatusUnauthorized, do(engine, http.MethodGet, "/v1/scopes/dialog").Code)
	// 代理不需要令牌，但仍受主机白名单约束
	assert.Equal(t, http.StatusForbidden,
		do(engine, http.MethodGet, "/proxy-pdf?url="+url.QueryEscape("https://evil.example/a.pdf")).Code)
}

func TestRouter_CustomProxyPath(t *testing.T) {
	cfg := &config.Config{}
	cfg.Proxy.Path = "/preview-proxy"
	engine := newTestRouter(cfg)

	assert.Equal(t, http.StatusBadRequest, do(engine, http.MethodGet, "/preview-proxy").Code)
	assert.Equal(t, http.StatusNotFound, do(engine, http.MethodGet, "/proxy-pdf").Code)
}
