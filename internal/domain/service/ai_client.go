package service

import (
	"context"
)

// Completer 摘要服务后端，文本进文本出。
// 限流时返回 model.ErrRateLimited，其他失败返回 *model.ServiceError 或传输错误。
type Completer interface {
	// Complete 在令牌预算内压缩文本
	Complete(ctx context.Context, text string, tokenBudget int) (string, error)
}
