package middleware

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexdraft-bff/internal/infrastructure/messaging"
)

type recordingPublisher struct {
	mu   sync.Mutex
	logs []*messaging.AuditLogMessage
}

func (p *recordingPublisher) PublishAuditLog(_ context.Context, log *messaging.AuditLogMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, log)
	return "1-0", nil
}

func newAuditEngine(publisher AuditPublisher) *gin.Engine {
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set("user_id", "u1")
		c.Set("tenant_id", "firm-1")
		c.Next()
	})
	engine.Use(Audit(AuditConfig{Enabled: true, SkipPaths: DefaultAuditSkipPaths}, publisher))
	engine.GET("/v1/drafting-wizards/:wid", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.POST("/v1/drafting-wizards/:wid/generate", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	engine.POST("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func TestAudit_PublishesWritesOnly(t *testing.T) {
	pub := &recordingPublisher{}
	engine := newAuditEngine(pub)

	serve(t, engine, http.MethodGet, "/v1/drafting-wizards/w1")
	serve(t, engine, http.MethodPost, "/health")
	serve(t, engine, http.MethodPost, "/v1/drafting-wizards/w1/generate", "User-Agent", "vitest")

	require.Len(t, pub.logs, 1)
	log := pub.logs[0]
	assert.Equal(t, "POST /v1/drafting-wizards/:wid/generate", log.Action)
	assert.Equal(t, "drafting-wizards", log.ResourceType)
	assert.Equal(t, "w1", log.ResourceID)
	assert.Equal(t, "u1", log.UserID)
	assert.Equal(t, "firm-1", log.TenantID)
	assert.Equal(t, http.StatusBadGateway, log.StatusCode)
	assert.Equal(t, "vitest", log.UserAgent)
}

func TestAudit_NilPublisherOnlyLogs(t *testing.T) {
	engine := newAuditEngine(nil)

	w, _ := serve(t, engine, http.MethodPost, "/v1/drafting-wizards/w1/generate")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestResourceType(t *testing.T) {
	assert.Equal(t, "scopes", resourceType("/v1/scopes/:key/files"))
	assert.Equal(t, "proxy-pdf", resourceType("/proxy-pdf"))
}
