package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/domain/service"
)

// 单条INSERT的最大行数，5列×150行不超过SQLite默认的999个参数
const insertBatchSize = 150

// BriefingRepository 持久化跨运行去重键和运行历史
type BriefingRepository interface {
	service.SeenStore
	// SaveRun 保存一次运行的记录
	SaveRun(ctx context.Context, run model.RunRecord) error
	// RecentRuns 按开始时间倒序返回最近的运行记录
	RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}

// SQLiteBriefingRepository 实现BriefingRepository接口的SQLite存储库
type SQLiteBriefingRepository struct {
	db Database
}

var _ BriefingRepository = (*SQLiteBriefingRepository)(nil)

// NewSQLiteBriefingRepository 创建一个新的SQLite存储库
func NewSQLiteBriefingRepository(db Database) *SQLiteBriefingRepository {
	return &SQLiteBriefingRepository{db: db}
}

// SeenKeys 返回since之后记录过的去重键
func (r *SQLiteBriefingRepository) SeenKeys(ctx context.Context, since time.Time) (map[string]struct{}, error) {
	query, args, err := sq.Select("dedup_key").
		From("seen_items").
		Where(sq.GtOrEq{"first_seen": since.UnixMilli()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("构建查询失败: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询去重键失败: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("读取去重键失败: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历去重键失败: %w", err)
	}
	return keys, nil
}

// MarkSeen 记录已交付的条目，已存在的键保留首次出现时间
func (r *SQLiteBriefingRepository) MarkSeen(ctx context.Context, items []model.DigestItem, at time.Time) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(items); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(items) {
			end = len(items)
		}

		builder := sq.Insert("seen_items").
			Options("OR IGNORE").
			Columns("dedup_key", "source_id", "kind", "title", "first_seen")
		for _, item := range items[start:end] {
			builder = builder.Values(item.DedupKey, item.SourceID, string(item.Kind), item.Title, at.UnixMilli())
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("构建插入语句失败: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("保存去重键失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// DeleteSeenBefore 删除before之前记录的去重键
func (r *SQLiteBriefingRepository) DeleteSeenBefore(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := sq.Delete("seen_items").
		Where(sq.Lt{"first_seen": before.UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("构建删除语句失败: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("删除过期去重键失败: %w", err)
	}
	return res.RowsAffected()
}

// SaveRun 保存一次运行的记录
func (r *SQLiteBriefingRepository) SaveRun(ctx context.Context, run model.RunRecord) error {
	query, args, err := sq.Insert("runs").
		Options("OR REPLACE").
		Columns("id", "profile", "started_at", "finished_at", "sources", "failed_sources",
			"items", "degraded", "delivered", "delivery_failed").
		Values(run.ID, run.Profile, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Sources,
			strings.Join(run.FailedSources, ","), run.Items, boolToInt(run.Degraded), run.Delivered, run.DeliveryFailed).
		ToSql()
	if err != nil {
		return fmt.Errorf("构建插入语句失败: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("保存运行记录失败: %w", err)
	}
	return nil
}

// RecentRuns 按开始时间倒序返回最近的运行记录
func (r *SQLiteBriefingRepository) RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := sq.Select("id", "profile", "started_at", "finished_at", "sources", "failed_sources",
		"items", "degraded", "delivered", "delivery_failed").
		From("runs").
		OrderBy("started_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("构建查询失败: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			run               model.RunRecord
			started, finished int64
			failed            string
			degraded          int
		)
		if err := rows.Scan(&run.ID, &run.Profile, &started, &finished, &run.Sources, &failed,
			&run.Items, &degraded, &run.Delivered, &run.DeliveryFailed); err != nil {
			return nil, fmt.Errorf("读取运行记录失败: %w", err)
		}
		run.StartedAt = time.UnixMilli(started)
		run.FinishedAt = time.UnixMilli(finished)
		run.Degraded = degraded != 0
		if failed != "" {
			run.FailedSources = strings.Split(failed, ",")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历运行记录失败: %w", err)
	}
	return runs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
