package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

// SeenStore 持久化已交付条目的去重键
type SeenStore interface {
	SeenKeys(ctx context.Context, since time.Time) (map[string]struct{}, error)
	MarkSeen(ctx context.Context, items []model.DigestItem, at time.Time) error
	DeleteSeenBefore(ctx context.Context, before time.Time) (int64, error)
}

// SeenStats 跨运行去重统计
type SeenStats struct {
	Loaded        int
	Remembered    int
	Expired       int64
	LastCleanTime time.Time
}

// SeenService 跨运行去重：已交付过的条目在保留期内不再出现
type SeenService struct {
	store     SeenStore
	retention time.Duration
	stats     SeenStats
}

// NewSeenService 创建跨运行去重服务，retention<=0时默认7天
func NewSeenService(store SeenStore, retention time.Duration) *SeenService {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &SeenService{store: store, retention: retention}
}

// Load 读取保留期内已交付的去重键
func (s *SeenService) Load(ctx context.Context, now time.Time) (map[string]struct{}, error) {
	keys, err := s.store.SeenKeys(ctx, now.Add(-s.retention))
	if err != nil {
		return nil, fmt.Errorf("读取已交付条目失败: %w", err)
	}
	s.stats.Loaded = len(keys)
	return keys, nil
}

// Remember 记录本次交付的条目
func (s *SeenService) Remember(ctx context.Context, items []model.DigestItem, now time.Time) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.store.MarkSeen(ctx, items, now); err != nil {
		return fmt.Errorf("记录已交付条目失败: %w", err)
	}
	s.stats.Remembered += len(items)
	return nil
}

// CleanExpired 清理超过保留期的记录
func (s *SeenService) CleanExpired(ctx context.Context, now time.Time) error {
	count, err := s.store.DeleteSeenBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return fmt.Errorf("清理过期记录失败: %w", err)
	}
	s.stats.Expired += count
	s.stats.LastCleanTime = now
	return nil
}

// Stats 返回统计信息
func (s *SeenService) Stats() SeenStats {
	return s.stats
}
