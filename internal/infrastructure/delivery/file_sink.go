package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

// FileSink 把文档写入本地目录
type FileSink struct {
	dir string
}

// NewFileSink 创建文件输出，dir为空时使用当前目录
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{dir: dir}
}

// Deliver 写入dir/FileName，同名文件会被覆盖
func (s *FileSink) Deliver(ctx context.Context, doc model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := doc.FileName
	if name == "" {
		name = fmt.Sprintf("briefing-%s.md", doc.GeneratedAt.Format("2006-01-02"))
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	path := filepath.Join(s.dir, filepath.Base(name))

	// 先写临时文件再重命名
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(doc.Body), 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("重命名文件失败: %w", err)
	}

	logger.Info("简报已写入文件", "path", path, "size", len(doc.Body))
	return nil
}
