// Package scope 按作用域键隔离的对话框 UI 状态存储
package scope

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"lexdraft-bff/internal/domain/entity"
	apperrors "lexdraft-bff/pkg/errors"
	"lexdraft-bff/pkg/logger"
	"lexdraft-bff/pkg/metrics"
)

var (
	// ErrScopeNotInitialized 作用域未经 InitScope 创建
	ErrScopeNotInitialized = apperrors.ErrScopeNotInitialized
	// ErrIndexOutOfRange 多值字段下标越界
	ErrIndexOutOfRange = apperrors.New(apperrors.CodeInvalidParam, "index out of range")
)

// Backend 作用域状态持久化
// Load/Update 对不存在的键返回 ErrScopeNotInitialized
type Backend interface {
	Load(ctx context.Context, key string) (*entity.ScopeState, error)
	// Create 键不存在时写入 state，返回是否新建
	Create(ctx context.Context, key string, state *entity.ScopeState) (bool, error)
	// Update 原子地读取-修改-写回，返回提交后的状态
	Update(ctx context.Context, key string, fn func(*entity.ScopeState) error) (*entity.ScopeState, error)
}

// Reader 只读接口：快照与订阅
type Reader interface {
	Snapshot(ctx context.Context, key string) (*entity.ScopeState, error)
	FormField(ctx context.Context, key, field string) (any, bool, error)
	Subscribe(key string) (<-chan entity.ScopeState, func())
}

// Commands 写接口
type Commands interface {
	InitScope(ctx context.Context, key string) (*entity.ScopeState, error)
	Reset(ctx context.Context, key string) (*entity.ScopeState, error)
	SetStep(ctx context.Context, key string, step int) (*entity.ScopeState, error)
	SetSelectedType(ctx context.Context, key, selectedType string) (*entity.ScopeState, error)
	SetFormField(ctx context.Context, key, field string, value any) (*entity.ScopeState, error)
	MergeFormData(ctx context.Context, key string, patch []byte) (*entity.ScopeState, error)
	AddFiles(ctx context.Context, key string, files []entity.FileRef) (*entity.ScopeState, error)
	AddInvalidFiles(ctx context.Context, key string, files []entity.InvalidFile) (*entity.ScopeState, error)
	SetDragging(ctx context.Context, key string, dragging bool) (*entity.ScopeState, error)
	SetDropdownOpen(ctx context.Context, key string, open bool) (*entity.ScopeState, error)
	AddMultiEntryValue(ctx context.Context, key, field, value string) (*entity.ScopeState, error)
	RemoveMultiEntryValue(ctx context.Context, key, field string, index int) (*entity.ScopeState, error)
}

// Store 同时实现 Reader 与 Commands
type Store struct {
	backend Backend

	mu     sync.Mutex
	subs   map[string]map[uint64]chan entity.ScopeState
	nextID uint64
}

var (
	_ Reader   = (*Store)(nil)
	_ Commands = (*Store)(nil)
)

// NewStore 创建作用域存储
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		subs:    make(map[string]map[uint64]chan entity.ScopeState),
	}
}

// ---- Reader ----

// Snapshot 返回作用域状态的深拷贝
func (s *Store) Snapshot(ctx context.Context, key string) (*entity.ScopeState, error) {
	state, err := s.backend.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// FormField 读取单个表单字段
func (s *Store) FormField(ctx context.Context, key, field string) (any, bool, error) {
	state, err := s.Snapshot(ctx, key)
	if err != nil {
		return nil, false, err
	}
	v, ok := state.FormData[field]
	return v, ok, nil
}

// Subscribe 订阅某个键的变更，每次提交后收到最新快照
// 订阅方处理不及时时只保留最新一份
func (s *Store) Subscribe(key string) (<-chan entity.ScopeState, func()) {
	ch := make(chan entity.ScopeState, 1)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]chan entity.ScopeState)
	}
	s.subs[key][id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[key], id)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) publish(key string, state *entity.ScopeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs[key] {
		snapshot := *state.Clone()
		select {
		case ch <- snapshot:
		default:
			// 丢弃旧快照后重投
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// ---- Commands ----

// InitScope 键不存在时创建默认状态，已存在时不做修改
func (s *Store) InitScope(ctx context.Context, key string) (*entity.ScopeState, error) {
	if strings.TrimSpace(key) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("scope key is required")
	}
	created, err := s.backend.Create(ctx, key, entity.NewScopeState())
	if err != nil {
		return nil, err
	}
	if created {
		metrics.ScopeActive.Inc()
		logger.Debug(logger.WithContext(ctx, logger.ScopeKeyKey, key), "scope initialized")
	}
	return s.Snapshot(ctx, key)
}

// Reset 恢复默认值，不影响其他作用域
func (s *Store) Reset(ctx context.Context, key string) (*entity.ScopeState, error) {
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		*st = *entity.NewScopeState()
		return nil
	})
}

// SetStep 设置对话框步骤
func (s *Store) SetStep(ctx context.Context, key string, step int) (*entity.ScopeState, error) {
	if step < 1 {
		return nil, apperrors.ErrInvalidParam.WithDetail("step must be >= 1")
	}
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		st.Step = step
		return nil
	})
}

// SetSelectedType 设置选中的类型
func (s *Store) SetSelectedType(ctx context.Context, key, selectedType string) (*entity.ScopeState, error) {
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		st.SelectedType = selectedType
		return nil
	})
}

// SetFormField 设置单个表单字段；value 为 nil 时删除字段
func (s *Store) SetFormField(ctx context.Context, key, field string, value any) (*entity.ScopeState, error) {
	if field == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("field is required")
	}
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		if value == nil {
			delete(st.FormData, field)
			return nil
		}
		st.FormData[field] = value
		return nil
	})
}

// MergeFormData 以 RFC 7386 merge patch 合并表单数据
func (s *Store) MergeFormData(ctx context.Context, key string, patch []byte) (*entity.ScopeState, error) {
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		original, err := json.Marshal(st.FormData)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encode form data")
		}
		merged, err := jsonpatch.MergePatch(original, patch)
		if err != nil {
			return apperrors.ErrInvalidParam.WithDetail("invalid merge patch: " + err.Error())
		}
		form := map[string]any{}
		if err := json.Unmarshal(merged, &form); err != nil {
			return apperrors.ErrInvalidParam.WithDetail("merge patch must produce an object")
		}
		st.FormData = form
		return nil
	})
}

// AddFiles 追加已接受的文件
func (s *Store) AddFiles(ctx context.Context, key string, files []entity.FileRef) (*entity.ScopeState, error) {
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		st.Files = append(st.Files, files...)
		return nil
	})
}

// AddInvalidFiles 追加被拒绝的文件
func (s *Store) AddInvalidFiles(ctx context.Context, key string, files []entity.InvalidFile) (*entity.ScopeState, error) {
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		st.InvalidFiles = append(st.InvalidFiles, files...)
		return nil
	})
}

// SetDragging 设置拖拽状态
func (s *Store) SetDragging(ctx context.Context, key string, dragging bool) (*entity.ScopeState, error) {
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		st.IsDragging = dragging
		return nil
	})
}

// SetDropdownOpen 设置下拉框开合
func (s *Store) SetDropdownOpen(ctx context.Context, key string, open bool) (*entity.ScopeState, error) {
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		st.DropdownOpen = open
		return nil
	})
}

// AddMultiEntryValue 向多值字段追加去除首尾空白后的值，允许重复，空值忽略
func (s *Store) AddMultiEntryValue(ctx context.Context, key, field, value string) (*entity.ScopeState, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return s.Snapshot(ctx, key)
	}
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		st.MultiEntries[field] = append(st.MultiEntries[field], value)
		return nil
	})
}

// RemoveMultiEntryValue 按下标删除多值字段中的值
func (s *Store) RemoveMultiEntryValue(ctx context.Context, key, field string, index int) (*entity.ScopeState, error) {
	return s.mutate(ctx, key, func(st *entity.ScopeState) error {
		values := st.MultiEntries[field]
		if index < 0 || index >= len(values) {
			return ErrIndexOutOfRange.WithDetail(field + "[" + strconv.Itoa(index) + "]")
		}
		st.MultiEntries[field] = append(values[:index:index], values[index+1:]...)
		return nil
	})
}

func (s *Store) mutate(ctx context.Context, key string, fn func(*entity.ScopeState) error) (*entity.ScopeState, error) {
	state, err := s.backend.Update(ctx, key, func(st *entity.ScopeState) error {
		if err := fn(st); err != nil {
			return err
		}
		normalize(st)
		st.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(key, state)
	return state.Clone(), nil
}

// normalize 保证集合字段非 nil
func normalize(st *entity.ScopeState) {
	if st.FormData == nil {
		st.FormData = map[string]any{}
	}
	if st.Files == nil {
		st.Files = []entity.FileRef{}
	}
	if st.InvalidFiles == nil {
		st.InvalidFiles = []entity.InvalidFile{}
	}
	if st.MultiEntries == nil {
		st.MultiEntries = map[string][]string{}
	}
}
