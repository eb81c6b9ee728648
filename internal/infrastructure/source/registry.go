package source

import (
	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/domain/service"
)

// NewRegistry 按配置创建全部内置适配器
func NewRegistry(cfg model.SourcesConfig) *service.Registry {
	getter := NewHTTPGetter(cfg.HTTPTimeout)

	registry := service.NewRegistry()
	registry.Register(model.KindNews, NewNewsAdapter(getter))
	registry.Register(model.KindAlert, NewAlertAdapter(getter, cfg.AlertSearchURL))
	registry.Register(model.KindWeather, NewWeatherAdapter(getter, cfg.WeatherAPIURL))
	registry.Register(model.KindMarket, NewMarketAdapter(getter, cfg.MarketAPIURL))
	return registry
}
