package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "lexdraft-bff/pkg/errors"
)

// ProgressFunc 上传进度回调
type ProgressFunc func(sent, total int64)

// progressReader 在读取时上报累计字节数
type progressReader struct {
	r        io.Reader
	sent     atomic.Int64
	total    int64
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.progress != nil {
		p.progress(p.sent.Add(int64(n)), p.total)
	}
	return n, err
}

// PutPresigned 直传对象存储的预签名地址
// 预签名请求既不带 Authorization 也不注入追踪头，签名只覆盖 Content-Type
func (c *Client) PutPresigned(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64, progress ProgressFunc) error {
	ctx, span := tracer.Start(ctx, "backend.put_presigned",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("upload.size", size)))
	defer span.End()

	reader := &progressReader{r: body, total: size, progress: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return apperrors.Wrap(err, apperrors.CodeUploadFailed, "presigned upload failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		return apperrors.New(apperrors.CodeUploadFailed, "presigned upload rejected").
			WithDetail(fmt.Sprintf("status=%d", resp.StatusCode))
	}
	return nil
}

// ProxyPath 将远端预览地址包装为本地代理路径
func (c *Client) ProxyPath(previewURL string) string {
	sep := "?"
	if strings.Contains(c.proxyPath, "?") {
		sep = "&"
	}
	return c.proxyPath + sep + "url=" + url.QueryEscape(previewURL)
}
