package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withUser 模拟认证中间件
func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := userID
		if h := c.GetHeader("X-Test-User"); h != "" {
			id = h
		}
		c.Set("user_id", id)
		c.Next()
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode string `json:"error_code"`
		Details   string `json:"details"`
	} `json:"error"`
}

func doJSON(t *testing.T, engine http.Handler, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && !strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
