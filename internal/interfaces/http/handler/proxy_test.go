package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProxyEngine(allowed ...string) *gin.Engine {
	h := NewProxyHandler(allowed, 5*time.Second)
	engine := gin.New()
	engine.GET("/proxy-pdf", h.Proxy)
	return engine
}

func TestProxy_StreamsAllowedHost(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer upstream.Close()
	engine := newProxyEngine("127.0.0.1")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy-pdf?url="+url.QueryEscape(upstream.URL+"/a.pdf"), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.7", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy-pdf?url="+url.QueryEscape(upstream.URL+"/missing.pdf"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxy_RejectsDisallowedAndMalformed(t *testing.T) {
	engine := newProxyEngine(".amazonaws.com")

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "missing", target: "", status: http.StatusBadRequest},
		{name: "relative", target: "/etc/passwd", status: http.StatusBadRequest},
		{name: "scheme", target: "file:///etc/passwd", status: http.StatusBadRequest},
		{name: "host", target: "https://evil.example/a.pdf", status: http.StatusForbidden},
		{name: "suffix trick", target: "https://evilamazonaws.com/a.pdf", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy-pdf?url="+url.QueryEscape(tt.target), nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestProxy_AllowsSubdomainSuffix(t *testing.T) {
	h := NewProxyHandler([]string{".amazonaws.com", " Storage.Local "}, time.Second)

	for raw, want := range map[string]bool{
		"https://bucket.s3.amazonaws.com/a.pdf": true,
		"https://storage.local/a.pdf":           true,
		"https://amazonaws.com.evil/a.pdf":      false,
	} {
		u, _ := url.Parse(raw)
		assert.Equal(t, want, h.allowed(u), raw)
	}
}

func TestProxy_RejectsRedirectToDisallowedHost(t *testing.T) {
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("INTERNAL-SECRET"))
	}))
	defer internal.Close()
	// 由 localhost 跳转到 127.0.0.1，后者不在白名单内
	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/secret", http.StatusFound)
	}))
	defer redirector.Close()
	u, err := url.Parse(redirector.URL)
	require.NoError(t, err)
	start := "http://localhost:" + u.Port() + "/a.pdf"

	w := httptest.NewRecorder()
	newProxyEngine("localhost").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy-pdf?url="+url.QueryEscape(start), nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "INTERNAL-SECRET")
}

func TestProxy_FollowsRedirectWithinAllowlist(t *testing.T) {
	var target string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved.pdf" {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer upstream.Close()
	target = upstream.URL + "/final.pdf"

	w := httptest.NewRecorder()
	newProxyEngine("127.0.0.1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/proxy-pdf?url="+url.QueryEscape(upstream.URL+"/moved.pdf"), nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.7", w.Body.String())
}
