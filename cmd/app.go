package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/wolfitem/ai-briefing/internal/application/pipeline"
	appservice "github.com/wolfitem/ai-briefing/internal/application/service"
	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/domain/service"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/ai"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/config"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/database"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/delivery"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/source"
	"github.com/wolfitem/ai-briefing/internal/middleware"
)

// app 一次命令执行所需的全部组件
type app struct {
	cfg     model.AppConfig
	service appservice.BriefingService
	metrics *middleware.MetricsCollector
	db      *database.SQLiteDatabase
	repo    *database.SQLiteBriefingRepository
}

// newApp 读取配置并组装简报服务
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: middleware.NewMetricsCollector()}
	deps := appservice.Dependencies{
		Registry: source.NewRegistry(cfg.Sources),
		Limiter:  middleware.NewRateLimiter(cfg.RateLimits),
		Metrics:  a.metrics,
	}

	// 初始化数据库（如果启用）
	if cfg.Database.Enabled {
		if err := a.openDatabase(ctx); err != nil {
			return nil, err
		}
		deps.Seen = service.NewSeenService(a.repo, cfg.Database.SeenRetention)
		deps.History = a.repo
	}

	// 摘要服务只有在配置了API密钥时启用
	if cfg.Summarization.Enabled && cfg.Summarization.APIKey != "" {
		client, err := ai.NewDeepseekClient(cfg.Summarization)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Completer = client
	} else if cfg.Summarization.Enabled {
		logger.Warn("未配置摘要服务API密钥，简报将使用原始内容")
	}

	dispatcher, err := newDispatcher(cfg.Delivery, a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	deps.Dispatcher = dispatcher

	a.service = appservice.NewBriefingService(cfg, deps)
	return a, nil
}

func (a *app) openDatabase(ctx context.Context) error {
	db := database.NewSQLiteDatabase(a.cfg.Database.FilePath)
	if err := db.Init(ctx); err != nil {
		logger.Error("初始化数据库失败", "error", err)
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	a.db = db
	a.repo = database.NewSQLiteBriefingRepository(db)
	return nil
}

// Close 关闭数据库连接
func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logger.Error("关闭数据库连接失败", "error", err)
	}
}

// newDispatcher 只登记配置中出现的交付渠道
func newDispatcher(cfg model.DeliveryConfig, metrics *middleware.MetricsCollector) (*pipeline.DeliveryDispatcher, error) {
	dispatcher := pipeline.NewDeliveryDispatcher(cfg.Timeout, metrics)
	for _, dest := range cfg.Destinations {
		switch dest {
		case "email":
			sender, err := delivery.NewEmailSender(cfg.Email)
			if err != nil {
				return nil, fmt.Errorf("邮件交付配置无效: %w", err)
			}
			dispatcher.Register(dest, sender)
		case "kindle":
			sender, err := delivery.NewKindleSender(cfg.Email, cfg.Kindle)
			if err != nil {
				return nil, fmt.Errorf("Kindle交付配置无效: %w", err)
			}
			dispatcher.Register(dest, sender)
		case "file":
			dispatcher.Register(dest, delivery.NewFileSink(cfg.File.Dir))
		default:
			return nil, fmt.Errorf("未知的交付目标: %s", dest)
		}
	}
	return dispatcher, nil
}
