package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfitem/ai-briefing/internal/application/pipeline"
	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/domain/service"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/render"
	"github.com/wolfitem/ai-briefing/internal/middleware"
)

// BriefingService 定义每日简报的应用服务接口
type BriefingService interface {
	// Run 按运行模式执行一次完整的抓取、聚合、摘要与交付
	Run(ctx context.Context, profile model.RunProfile) (*model.Briefing, error)
}

// RunRecorder 保存运行历史
type RunRecorder interface {
	SaveRun(ctx context.Context, run model.RunRecord) error
}

// Dependencies 简报服务的协作者，Completer、Seen和History可以为nil
type Dependencies struct {
	Registry   *service.Registry
	Limiter    *middleware.RateLimiter
	Completer  service.Completer
	Dispatcher *pipeline.DeliveryDispatcher
	Seen       *service.SeenService
	History    RunRecorder
	Validator  *service.Validator
	Metrics    *middleware.MetricsCollector
	Now        func() time.Time
}

// briefingService 实现BriefingService接口
type briefingService struct {
	cfg  model.AppConfig
	deps Dependencies
	log  *logger.ContextLogger
}

// NewBriefingService 创建简报服务，配置在构造时传入，运行期间不变
func NewBriefingService(cfg model.AppConfig, deps Dependencies) BriefingService {
	if deps.Registry == nil {
		deps.Registry = service.NewRegistry()
	}
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter(cfg.RateLimits)
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = pipeline.NewDeliveryDispatcher(cfg.Delivery.Timeout, deps.Metrics)
	}
	if deps.Validator == nil {
		deps.Validator = service.NewValidator()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &briefingService{cfg: cfg, deps: deps, log: logger.WithContext("briefing")}
}

// Run 执行一次简报流程。
// 单个数据源失败和摘要失败都不会让运行失败；只有配置错误或所有交付目标都失败时返回错误，
// 后一种情况仍然返回生成的简报。
func (s *briefingService) Run(ctx context.Context, profile model.RunProfile) (*model.Briefing, error) {
	runID := uuid.NewString()
	started := s.deps.Now()
	log := s.log.With("run_id", runID, "profile", profile.Name)
	log.Info("开始生成简报")
	defer logger.TimeTrack("BriefingService.Run")()

	// 记录初始内存使用情况
	logger.LogMemStatsOnce()

	// 1. 根据运行模式确定数据源和摘要预算
	specs, budget := profile.Apply(s.cfg.Sources.List, s.cfg.Summarization.TokenBudget)

	// 2. 运行开始时验证数据源
	valid, invalid, err := s.deps.Validator.ValidateSpecs(specs)
	if err != nil {
		log.Error("数据源配置无效", "error", err)
		return nil, fmt.Errorf("数据源配置无效: %w", err)
	}
	log.Info("数据源验证完成", "valid", len(valid), "invalid", len(invalid))

	// 3. 读取之前运行已交付过的条目
	var exclude map[string]struct{}
	if s.deps.Seen != nil {
		if exclude, err = s.deps.Seen.Load(ctx, started); err != nil {
			log.Warn("读取已交付条目失败，本次不做跨运行去重", "error", err)
		}
	}

	aggregator := pipeline.NewDigestAggregator(specs, pipeline.AggregatorConfig{
		Priority: s.cfg.Run.Priority,
		KindCaps: s.cfg.Run.KindCaps,
		Exclude:  exclude,
		Now:      s.deps.Now,
	})

	// 4. 不合法的数据源直接记为失败
	results := make([]model.FetchResult, 0, len(specs))
	for _, spec := range specs {
		specErr, ok := invalid[spec.ID]
		if !ok {
			continue
		}
		log.Warn("数据源配置不合法，跳过抓取", "source", spec.ID, "error", specErr)
		res := model.FetchResult{SourceID: spec.ID, Kind: spec.Kind, Status: model.StatusFailed, Err: specErr}
		s.deps.Metrics.RecordSourceOutcome(string(res.Status))
		s.ingest(aggregator, res)
		results = append(results, res)
	}

	// 5. 抓取，结果流式写入聚合器
	scheduler := pipeline.NewFetchScheduler(s.deps.Registry, s.deps.Limiter, s.deps.Metrics, s.schedulerConfig(started))
	results = append(results, scheduler.Run(ctx, valid, func(res model.FetchResult) {
		s.ingest(aggregator, res)
	})...)

	digest := aggregator.Finalize()
	log.Info("抓取完成",
		"sources", len(specs),
		"failed", len(digest.FailedSources),
		"items", digest.ItemCount())

	briefing := &model.Briefing{
		RunID:     runID,
		Profile:   profile.Name,
		Digest:    digest,
		Results:   results,
		StartedAt: started,
	}

	// 6. 摘要，失败时降级为原文
	if s.cfg.Summarization.Enabled && s.deps.Completer != nil && digest.ItemCount() > 0 {
		prompt := s.cfg.Summarization.Prompt
		if prompt == "" {
			prompt = pipeline.DefaultPrompt
		}
		gateway := pipeline.NewSummarizationGateway(s.deps.Completer, s.deps.Metrics, pipeline.GatewayConfig{
			Timeout:    s.cfg.Summarization.Timeout,
			RetryDelay: s.cfg.Summarization.RetryDelay,
			Prompt:     prompt,
		})
		summary := gateway.Summarize(ctx, digest, budget)
		if summary.Summarized {
			briefing.Summary = summary.Text
		}
		briefing.Degraded = summary.Degraded
	}

	// 7. 生成文档并交付
	briefing.FinishedAt = s.deps.Now()
	briefing.Document = render.Markdown(briefing)

	report, deliverErr := s.deps.Dispatcher.Deliver(ctx, briefing.Document, s.cfg.Delivery.Destinations)

	// 8. 至少一个目标交付成功后才记录已交付条目
	if s.deps.Seen != nil && report.Succeeded() > 0 {
		if err := s.deps.Seen.Remember(ctx, digest.Items(), briefing.FinishedAt); err != nil {
			log.Warn("记录已交付条目失败", "error", err)
		}
		if err := s.deps.Seen.CleanExpired(ctx, briefing.FinishedAt); err != nil {
			log.Warn("清理过期条目失败", "error", err)
		}
	}

	if s.deps.History != nil {
		record := model.RunRecord{
			ID:             runID,
			Profile:        profile.Name,
			StartedAt:      started,
			FinishedAt:     briefing.FinishedAt,
			Sources:        len(specs),
			FailedSources:  digest.FailedSources,
			Items:          digest.ItemCount(),
			Degraded:       briefing.Degraded,
			Delivered:      report.Succeeded(),
			DeliveryFailed: report.Failed(),
		}
		if err := s.deps.History.SaveRun(ctx, record); err != nil {
			log.Warn("保存运行记录失败", "error", err)
		}
	}

	middleware.LogMetrics(s.deps.Metrics)

	if deliverErr != nil {
		log.Error("简报交付失败", "error", deliverErr)
		return briefing, deliverErr
	}
	log.Info("简报生成完成",
		"items", digest.ItemCount(),
		"failed_sources", len(digest.FailedSources),
		"degraded", briefing.Degraded,
		"delivered", report.Succeeded())
	return briefing, nil
}

func (s *briefingService) ingest(aggregator *pipeline.DigestAggregator, res model.FetchResult) {
	if err := aggregator.Ingest(res); err != nil {
		s.log.Error("写入聚合器失败", "source", res.SourceID, "error", err)
	}
}

// schedulerConfig 由运行配置生成调度参数，Since按话题提醒的回溯时间计算
func (s *briefingService) schedulerConfig(started time.Time) pipeline.SchedulerConfig {
	run := s.cfg.Run
	sources := s.cfg.Sources
	return pipeline.SchedulerConfig{
		Deadline:       run.Deadline,
		TaskTimeout:    run.TaskTimeout,
		MaxConcurrency: run.MaxConcurrency,
		MaxRetries:     run.MaxRetries,
		BackoffBase:    run.BackoffBase,
		BackoffMax:     run.BackoffMax,
		BackoffJitter:  0.1,
		Constraints: func(spec model.SourceSpec) model.FetchConstraints {
			c := model.FetchConstraints{MaxItems: spec.Limit}
			switch spec.Kind {
			case model.KindAlert:
				if sources.AlertLookback > 0 {
					c.Since = started.Add(-sources.AlertLookback)
				}
			case model.KindWeather:
				c.Days = sources.WeatherForecastDays
			}
			return c
		},
	}
}
