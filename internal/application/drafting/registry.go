package drafting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"lexdraft-bff/internal/domain/entity"
	apperrors "lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/logger"
	"lexdraft-bff/pkg/metrics"
)

// Registry 按向导 ID 管理打开的控制器
type Registry struct {
	mu      sync.RWMutex
	wizards map[string]*entry

	backend DraftingBackend
	handoff ProjectHandoff
	opts    Options
}

type entry struct {
	userID     string
	controller *Controller
}

// NewRegistry 创建向导注册表
func NewRegistry(be DraftingBackend, handoff ProjectHandoff, opts Options) *Registry {
	return &Registry{
		wizards: make(map[string]*entry),
		backend: be,
		handoff: handoff,
		opts:    opts,
	}
}

// Open 为用户打开一个新向导
func (r *Registry) Open(ctx context.Context, userID string) (string, *Controller) {
	id := uuid.NewString()
	session := entity.NewDraftSession(id, userID, r.opts.DefaultLanguage)
	ctrl := NewController(session, r.backend, r.handoff, r.opts)

	r.mu.Lock()
	r.wizards[id] = &entry{userID: userID, controller: ctrl}
	r.mu.Unlock()
	metrics.ActiveWizards.Inc()

	logger.Debug(ctx, "drafting wizard opened", "wizard_id", id)
	return id, ctrl
}

// Get 获取向导；不存在或不属于该用户时返回 ErrWizardNotFound
func (r *Registry) Get(id, userID string) (*Controller, error) {
	r.mu.RLock()
	e, ok := r.wizards[id]
	r.mu.RUnlock()
	if !ok || e.userID != userID {
		return nil, apperrors.ErrWizardNotFound
	}
	return e.controller, nil
}

// Close 关闭并移除向导，取消其在途请求
func (r *Registry) Close(id, userID string) error {
	r.mu.Lock()
	e, ok := r.wizards[id]
	if !ok || e.userID != userID {
		r.mu.Unlock()
		return apperrors.ErrWizardNotFound
	}
	delete(r.wizards, id)
	r.mu.Unlock()

	e.controller.Close()
	metrics.ActiveWizards.Dec()
	return nil
}

// Sweep 关闭空闲超过 idle 的向导，返回关闭数量
func (r *Registry) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	var expired []*Controller
	for id, e := range r.wizards {
		if e.controller.LastActive().Before(cutoff) {
			expired = append(expired, e.controller)
			delete(r.wizards, id)
		}
	}
	r.mu.Unlock()

	for _, ctrl := range expired {
		ctrl.Close()
		metrics.ActiveWizards.Dec()
	}
	if len(expired) > 0 {
		logger.Info(ctx, "expired idle drafting wizards", "count", len(expired))
	}
	return len(expired)
}

// Len 当前打开的向导数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wizards)
}

// RunSweeper 周期性清理空闲向导，直到 ctx 结束
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx, idle)
		}
	}
}
