// Package backend 提供第一方起草后端的 HTTP 客户端
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"lexdraft-bff/internal/config"
	apperrors "lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/metrics"
)

var tracer = otel.Tracer("backend")

type accessTokenKey struct{}

// WithAccessToken 将调用方的访问令牌放入 context，后端请求时透传
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func accessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// Client 起草后端客户端
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	uploadClient *http.Client
	proxyPath    string
}

// envelope 后端统一响应结构
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// NewClient 创建后端客户端
func NewClient(cfg *config.BackendConfig, proxyPath string) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if proxyPath == "" {
		proxyPath = "/proxy-pdf"
	}

	return &Client{
		baseURL: u,
		// Timeout 为 0 表示不设超时，长时间生成依赖调用方取消
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		uploadClient: &http.Client{Timeout: cfg.UploadTimeout},
		proxyPath:    proxyPath,
	}, nil
}

// endpoint 拼接后端路径
func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do 发送 JSON 请求并解析统一响应信封，返回 data 字段
func (c *Client) do(ctx context.Context, name, method, path string, query url.Values, body any) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "backend."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("backend.path", path),
		))
	defer span.End()

	start := time.Now()
	raw, err := c.roundTrip(ctx, method, path, query, body)
	metrics.BackendCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.BackendCallTotal.WithLabelValues(name, "success").Inc()
	case ctx.Err() != nil:
		metrics.BackendCallTotal.WithLabelValues(name, "cancelled").Inc()
		span.SetAttributes(attribute.Bool("backend.cancelled", true))
		return nil, ctx.Err()
	default:
		metrics.BackendCallTotal.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return raw, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := accessTokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "backend unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(err, apperrors.CodeBackendError, "failed to read backend response")
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := firstNonEmpty(env.Message, env.Error, http.StatusText(resp.StatusCode))
		return nil, apperrors.New(apperrors.CodeBackendError, "backend request failed").
			WithDetail(fmt.Sprintf("status=%d %s", resp.StatusCode, msg))
	}
	if !gjson.ValidBytes(data) {
		if decodeErr == nil {
			decodeErr = fmt.Errorf("malformed json")
		}
		return nil, apperrors.Wrap(decodeErr, apperrors.CodeBackendError, "invalid backend response")
	}
	// 没有信封的响应直接返回原始载荷
	if !gjson.GetBytes(data, "success").Exists() {
		return data, nil
	}
	if !env.Success {
		return nil, apperrors.New(apperrors.CodeBackendError, "backend reported failure").
			WithDetail(firstNonEmpty(env.Message, env.Error, "success=false"))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return data, nil
	}
	return env.Data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// HealthCheck 检查后端可达性（任意 HTTP 响应视为可达）
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health", nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: status=%d", resp.StatusCode)
	}
	return nil
}
