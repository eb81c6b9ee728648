package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/domain/service"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/render"
	"github.com/wolfitem/ai-briefing/internal/middleware"
)

// GatewayConfig 摘要网关参数
type GatewayConfig struct {
	Timeout    time.Duration // 单次调用超时
	RetryDelay time.Duration // 临时错误后重试前的等待
	Prompt     string        // 摘要指令，含%s时替换为正文
}

// SummaryResult 摘要结果。Degraded为true时Text是未经压缩的原文。
type SummaryResult struct {
	Text       string
	Original   string
	Summarized bool
	Degraded   bool
	Err        error
}

// DefaultPrompt 默认的摘要指令
const DefaultPrompt = "请将以下每日简报内容压缩为简洁的中文摘要，保留关键事实、数字和时间，按原有分区组织：\n\n"

// SummarizationGateway 调用外部摘要服务，失败时降级为原文，从不让整次运行失败
type SummarizationGateway struct {
	backend service.Completer
	metrics *middleware.MetricsCollector
	cfg     GatewayConfig
	log     *logger.ContextLogger
}

// NewSummarizationGateway 创建摘要网关，backend为nil时总是返回原文
func NewSummarizationGateway(backend service.Completer, metrics *middleware.MetricsCollector, cfg GatewayConfig) *SummarizationGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &SummarizationGateway{
		backend: backend,
		metrics: metrics,
		cfg:     cfg,
		log:     logger.WithContext("summarizer"),
	}
}

// Summarize 在令牌预算内压缩摘要文本。
// 临时错误（限流、5xx、超时）重试一次；仍失败或遇到永久错误时返回原文并标记降级。
func (g *SummarizationGateway) Summarize(ctx context.Context, digest *model.Digest, tokenBudget int) SummaryResult {
	original := render.DigestText(digest)
	result := SummaryResult{Text: original, Original: original}

	if g.backend == nil || strings.TrimSpace(original) == "" {
		return result
	}

	start := time.Now()
	var summary string
	err := middleware.RetryWithBackoff(ctx, 2,
		func(int) time.Duration { return g.cfg.RetryDelay },
		model.IsTransient,
		func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()

			text, err := g.backend.Complete(callCtx, buildPrompt(g.cfg.Prompt, original), tokenBudget)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
					return model.Transient(fmt.Errorf("摘要调用超时: %w", err))
				}
				g.log.Warn("摘要调用失败", "error", err, "retryable", model.IsTransient(err))
				return err
			}
			if strings.TrimSpace(text) == "" {
				return model.Permanent(errors.New("摘要服务返回空内容"))
			}
			summary = text
			return nil
		})
	duration := time.Since(start)

	if err != nil {
		g.metrics.RecordSummarization(duration, true)
		g.log.Error("摘要失败，使用原文", "error", err, "duration", duration)
		result.Degraded = true
		result.Err = err
		return result
	}

	g.metrics.RecordSummarization(duration, false)
	g.log.Info("摘要完成", "duration", duration, "input_length", len(original), "output_length", len(summary))
	result.Text = summary
	result.Summarized = true
	return result
}

// buildPrompt 指令中含有%s时替换为正文，否则把指令放在正文前
func buildPrompt(prompt, text string) string {
	if strings.Contains(prompt, "%s") {
		return strings.Replace(prompt, "%s", text, 1)
	}
	return prompt + text
}
