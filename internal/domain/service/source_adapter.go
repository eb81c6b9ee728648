package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

// SourceAdapter 抓取并解析一类数据源，由集成方提供。
// 返回的错误应为 model.TransientError 或 model.PermanentError。
type SourceAdapter interface {
	Fetch(ctx context.Context, target string, constraints model.FetchConstraints) ([]model.RawItem, error)
}

// SourceAdapterFunc 将函数适配为SourceAdapter
type SourceAdapterFunc func(ctx context.Context, target string, constraints model.FetchConstraints) ([]model.RawItem, error)

// Fetch 调用函数本身
func (f SourceAdapterFunc) Fetch(ctx context.Context, target string, constraints model.FetchConstraints) ([]model.RawItem, error) {
	return f(ctx, target, constraints)
}

// Registry 按数据源类型登记适配器
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.SourceKind]SourceAdapter
}

// NewRegistry 创建空的适配器注册表
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.SourceKind]SourceAdapter)}
}

// Register 登记适配器，同类型重复登记时覆盖
func (r *Registry) Register(kind model.SourceKind, adapter SourceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = adapter
}

// Lookup 查找适配器，未登记时返回永久错误
func (r *Registry) Lookup(kind model.SourceKind) (SourceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[kind]
	if !ok || adapter == nil {
		return nil, model.Permanent(fmt.Errorf("未登记%s类型的适配器", kind))
	}
	return adapter, nil
}
