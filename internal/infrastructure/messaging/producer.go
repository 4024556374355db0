package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lexdraft-bff/internal/domain/entity"
	"lexdraft-bff/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client      *redis.Client
	maxLen      int64
	draftStream Stream
}

// NewProducer 创建消息生产者；draftStream 为空时使用默认流
func NewProducer(client *redis.Client, maxLen int64, draftStream string) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	stream := StreamDraftGenerated
	if draftStream != "" {
		stream = Stream(draftStream)
	}
	return &Producer{
		client:      client,
		maxLen:      maxLen,
		draftStream: stream,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type": msg.Type,
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishDraftGenerated 发布生成完成的草稿
func (p *Producer) PublishDraftGenerated(ctx context.Context, tenantID string, draft *DraftGeneratedMessage) (string, error) {
	msg, err := NewMessage("", TypeDraftGenerated, tenantID, draft.UserID, draft)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("wizard_id", draft.WizardID)
	// 同一向导重复投递时供消费方去重
	msg.SetMetadata("idempotency_key", "draft:"+draft.WizardID)
	return p.Publish(ctx, p.draftStream, msg)
}

// PublishAuditLog 发布审计日志
func (p *Producer) PublishAuditLog(ctx context.Context, log *AuditLogMessage) (string, error) {
	msg, err := NewMessage(log.RequestID, TypeAudit, log.TenantID, log.UserID, log)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamAuditLog, msg)
}

// HandOff 将生成结果交给项目创建方
func (p *Producer) HandOff(ctx context.Context, session *entity.DraftSession, doc *entity.GeneratedDocument) error {
	draft := &DraftGeneratedMessage{
		WizardID:             session.ID,
		UserID:               session.UserID,
		ProjectName:          session.ProjectName,
		Language:             session.Language,
		Prompt:               session.Prompt,
		HTMLContent:          doc.HTMLContent,
		Variables:            doc.Variables,
		DocMetadata:          doc.DocMetadata,
		PipelineMetrics:      doc.PipelineMetrics,
		SynthesizedVariables: doc.SynthesizedVariables,
	}
	if session.SelectedTemplateID != nil {
		draft.TemplateID = *session.SelectedTemplateID
	}

	tenantID, _ := ctx.Value(logger.TenantIDKey).(string)
	id, err := p.PublishDraftGenerated(ctx, tenantID, draft)
	if err != nil {
		return err
	}
	logger.Info(ctx, "draft handed off to project creation", "stream_id", id)
	return nil
}
