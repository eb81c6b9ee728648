package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

// Database 定义数据库接口
type Database interface {
	// Init 初始化数据库并创建表
	Init(ctx context.Context) error
	// Close 关闭数据库连接
	Close() error
	// ExecContext 执行SQL语句
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	// QueryContext 查询数据
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	// QueryRowContext 查询单行数据
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	// BeginTx 开启事务
	BeginTx(ctx context.Context) (*sql.Tx, error)
}

// SQLiteDatabase 实现Database接口的SQLite数据库
type SQLiteDatabase struct {
	db         *sql.DB
	dbFilePath string
}

// NewSQLiteDatabase 创建一个新的SQLite数据库实例
func NewSQLiteDatabase(dbFilePath string) *SQLiteDatabase {
	return &SQLiteDatabase{
		dbFilePath: dbFilePath,
	}
}

// Init 初始化SQLite数据库
func (s *SQLiteDatabase) Init(ctx context.Context) error {
	logger.Info("初始化SQLite数据库", "db_path", s.dbFilePath)

	// 确保数据库文件所在目录存在
	if err := os.MkdirAll(filepath.Dir(s.dbFilePath), 0755); err != nil {
		return fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite3", s.dbFilePath+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("打开数据库连接失败: %w", err)
	}
	// SQLite只允许一个写连接
	db.SetMaxOpenConns(1)
	s.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("数据库连接测试失败: %w", err)
	}

	if err := s.createTables(ctx); err != nil {
		return fmt.Errorf("创建数据库表失败: %w", err)
	}

	logger.Info("SQLite数据库初始化成功")
	return nil
}

// createTables 创建必要的数据库表
func (s *SQLiteDatabase) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS seen_items (
		dedup_key TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		first_seen INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_seen_items_first_seen ON seen_items(first_seen);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		sources INTEGER NOT NULL DEFAULT 0,
		failed_sources TEXT NOT NULL DEFAULT '',
		items INTEGER NOT NULL DEFAULT 0,
		degraded INTEGER NOT NULL DEFAULT 0,
		delivered INTEGER NOT NULL DEFAULT 0,
		delivery_failed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	logger.Debug("数据库表创建成功")
	return nil
}

// Close 关闭数据库连接
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		logger.Info("关闭数据库连接")
		return s.db.Close()
	}
	return nil
}

// ExecContext 执行SQL语句
func (s *SQLiteDatabase) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// QueryContext 查询数据
func (s *SQLiteDatabase) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext 查询单行数据
func (s *SQLiteDatabase) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// BeginTx 开启事务
func (s *SQLiteDatabase) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}
