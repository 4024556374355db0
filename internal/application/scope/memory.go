package scope

import (
	"context"
	"sync"

	"lexdraft-bff/internal/domain/entity"
)

// MemoryBackend 进程内作用域存储，存取均为深拷贝
type MemoryBackend struct {
	mu     sync.Mutex
	scopes map[string]*entity.ScopeState
}

// NewMemoryBackend 创建内存后端
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{scopes: make(map[string]*entity.ScopeState)}
}

// Load 读取状态
func (m *MemoryBackend) Load(_ context.Context, key string) (*entity.ScopeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.scopes[key]
	if !ok {
		return nil, ErrScopeNotInitialized
	}
	return st.Clone(), nil
}

// Create 键不存在时写入
func (m *MemoryBackend) Create(_ context.Context, key string, state *entity.ScopeState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scopes[key]; ok {
		return false, nil
	}
	m.scopes[key] = state.Clone()
	return true, nil
}

// Update 在锁内修改副本，fn 成功后替换
func (m *MemoryBackend) Update(_ context.Context, key string, fn func(*entity.ScopeState) error) (*entity.ScopeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.scopes[key]
	if !ok {
		return nil, ErrScopeNotInitialized
	}
	working := st.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	m.scopes[key] = working
	return working.Clone(), nil
}

// Len 已创建的作用域数量
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scopes)
}
