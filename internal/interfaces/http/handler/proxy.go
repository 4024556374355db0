package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"lexdraft-bff/internal/interfaces/http/dto"
	"lexdraft-bff/pkg/logger"
	"lexdraft-bff/pkg/tracer"
)

const maxProxyRedirects = 5

var (
	errRedirectNotAllowed = errors.New("redirect to host not allowed")
	errTooManyRedirects   = errors.New("too many redirects")
)

// 透传给浏览器的上游响应头
var proxiedHeaders = []string{"Content-Type", "Content-Length", "Content-Disposition", "Cache-Control", "ETag", "Last-Modified"}

// ProxyHandler 文档预览代理
type ProxyHandler struct {
	client       *http.Client
	allowedHosts []string
}

// NewProxyHandler 创建预览代理；allowedHosts 以 "." 开头时匹配子域名
func NewProxyHandler(allowedHosts []string, timeout time.Duration) *ProxyHandler {
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	h := &ProxyHandler{allowedHosts: hosts}
	h.client = &http.Client{
		Timeout: timeout,
		// 每一跳重定向都要重新校验主机
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxProxyRedirects {
				return errTooManyRedirects
			}
			if !h.allowed(req.URL) {
				return fmt.Errorf("%w: %s", errRedirectNotAllowed, req.URL.Hostname())
			}
			return nil
		},
	}
	return h
}

func (h *ProxyHandler) allowed(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	for _, a := range h.allowedHosts {
		if host == a || (strings.HasPrefix(a, ".") && strings.HasSuffix(host, a)) {
			return true
		}
	}
	return false
}

// Proxy 流式转发远端文档，上游状态码原样返回
// @Summary 文档代理
// @Tags Templates
// @Produce octet-stream
// @Param url query string true "远端地址"
// @Success 200 "document stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /proxy-pdf [get]
func (h *ProxyHandler) Proxy(c *gin.Context) {
	raw := c.Query("url")
	target, err := url.Parse(raw)
	if raw == "" || err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		dto.BadRequest(c, "url must be an absolute http(s) url")
		return
	}
	if !h.allowed(target) {
		dto.Forbidden(c, "host not allowed: "+target.Hostname())
		return
	}

	ctx, span := tracer.Start(c.Request.Context(), "proxy.Fetch")
	span.SetAttributes(attribute.String("proxy.host", target.Host))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		dto.BadRequest(c, "invalid url")
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		span.RecordError(err)
		if errors.Is(err, errRedirectNotAllowed) {
			logger.Warn(ctx, "preview proxy redirect rejected", "host", target.Host, "error", err.Error())
			dto.Forbidden(c, "redirect target not allowed")
			return
		}
		logger.Warn(ctx, "preview proxy fetch failed", "host", target.Host, "error", err.Error())
		dto.Error(c, http.StatusBadGateway, "failed to fetch document")
		return
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	for _, name := range proxiedHeaders {
		if v := resp.Header.Get(name); v != "" {
			c.Header(name, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn(ctx, "preview proxy stream interrupted", "error", err.Error())
	}
}
