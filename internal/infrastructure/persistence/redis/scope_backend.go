package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lexdraft-bff/internal/domain/entity"
	apperrors "lexdraft-bff/pkg/errors"
)

const (
	scopeKeyPrefix  = "scope:"
	scopeMaxRetries = 5
	defaultScopeTTL = 24 * time.Hour
)

// ScopeBackend 将作用域状态以 JSON 存入 Redis，每次访问刷新 TTL
type ScopeBackend struct {
	client *Client
	ttl    time.Duration
}

// NewScopeBackend 创建 Redis 作用域后端
func NewScopeBackend(client *Client, ttl time.Duration) *ScopeBackend {
	if ttl <= 0 {
		ttl = defaultScopeTTL
	}
	return &ScopeBackend{client: client, ttl: ttl}
}

func scopeKey(key string) string {
	return scopeKeyPrefix + key
}

// Load 读取状态并续期
func (b *ScopeBackend) Load(ctx context.Context, key string) (*entity.ScopeState, error) {
	ctx, span := tracer.Start(ctx, "scope.Load",
		trace.WithAttributes(attribute.String("scope.key", key)))
	defer span.End()

	raw, err := b.client.rdb.GetEx(ctx, scopeKey(key), b.ttl).Bytes()
	if err != nil {
		if IsNil(err) {
			return nil, apperrors.ErrScopeNotInitialized
		}
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to load scope")
	}
	return decodeScope(raw)
}

// Create 键不存在时写入（SET NX）
func (b *ScopeBackend) Create(ctx context.Context, key string, state *entity.ScopeState) (bool, error) {
	ctx, span := tracer.Start(ctx, "scope.Create",
		trace.WithAttributes(attribute.String("scope.key", key)))
	defer span.End()

	raw, err := sonic.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("failed to marshal scope: %w", err)
	}
	created, err := b.client.rdb.SetNX(ctx, scopeKey(key), raw, b.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to create scope")
	}
	if !created {
		b.client.rdb.Expire(ctx, scopeKey(key), b.ttl)
	}
	span.SetAttributes(attribute.Bool("scope.created", created))
	return created, nil
}

// Update 乐观锁读改写：WATCH 后在 MULTI 中写回，冲突时重试
func (b *ScopeBackend) Update(ctx context.Context, key string, fn func(*entity.ScopeState) error) (*entity.ScopeState, error) {
	ctx, span := tracer.Start(ctx, "scope.Update",
		trace.WithAttributes(attribute.String("scope.key", key)))
	defer span.End()

	rkey := scopeKey(key)
	var committed *entity.ScopeState

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, rkey).Bytes()
		if err != nil {
			if IsNil(err) {
				return apperrors.ErrScopeNotInitialized
			}
			return err
		}
		state, err := decodeScope(raw)
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		out, err := sonic.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal scope: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, out, b.ttl)
			return nil
		})
		if err == nil {
			committed = state
		}
		return err
	}

	for attempt := 0; attempt < scopeMaxRetries; attempt++ {
		err := b.client.rdb.Watch(ctx, txf, rkey)
		if err == nil {
			span.SetAttributes(attribute.Int("scope.attempts", attempt+1))
			return committed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if apperrors.IsAppError(err) {
			return nil, err
		}
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to update scope")
	}

	return nil, apperrors.New(apperrors.CodeConflict, "scope update conflict").WithDetail(key)
}

// Delete 删除作用域
func (b *ScopeBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, scopeKey(key))
}

func decodeScope(raw []byte) (*entity.ScopeState, error) {
	state := &entity.ScopeState{}
	if err := sonic.Unmarshal(raw, state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "corrupt scope state")
	}
	if state.FormData == nil {
		state.FormData = map[string]any{}
	}
	if state.Files == nil {
		state.Files = []entity.FileRef{}
	}
	if state.InvalidFiles == nil {
		state.InvalidFiles = []entity.InvalidFile{}
	}
	if state.MultiEntries == nil {
		state.MultiEntries = map[string][]string{}
	}
	return state, nil
}
