package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/source"
)

// 输出配置时需要隐藏的键
var secretKeys = map[string]struct{}{
	"api_key":  {},
	"password": {},
}

// SetDefaults 设置默认配置
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.console", true)
	v.SetDefault("logger.file_path", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", false)

	v.SetDefault("run.deadline", 2*time.Minute)
	v.SetDefault("run.task_timeout", 20*time.Second)
	v.SetDefault("run.max_concurrency", 4)
	v.SetDefault("run.max_retries", 3)
	v.SetDefault("run.backoff_base", time.Second)
	v.SetDefault("run.backoff_max", 30*time.Second)
	v.SetDefault("run.priority", []string{"alert", "news", "market", "weather"})

	v.SetDefault("rate_limits", map[string]interface{}{"alert": "800ms"})

	v.SetDefault("sources.opml_file", "")
	v.SetDefault("sources.max_items_per_source", 10)
	v.SetDefault("sources.alert_lookback", 12*time.Hour)
	v.SetDefault("sources.weather_forecast_days", 3)
	v.SetDefault("sources.alert_search_url", source.DefaultAlertSearchURL)
	v.SetDefault("sources.weather_api_url", source.DefaultWeatherAPIURL)
	v.SetDefault("sources.market_api_url", source.DefaultMarketAPIURL)
	v.SetDefault("sources.http_timeout", 15*time.Second)

	v.SetDefault("summarization.enabled", true)
	v.SetDefault("summarization.api_key", "")
	v.SetDefault("summarization.model", "deepseek-chat")
	v.SetDefault("summarization.api_url", "https://api.deepseek.com/v1/chat/completions")
	v.SetDefault("summarization.token_budget", 1000)
	v.SetDefault("summarization.timeout", 60*time.Second)
	v.SetDefault("summarization.retry_delay", 2*time.Second)
	v.SetDefault("summarization.prompt", "")

	v.SetDefault("delivery.destinations", []string{"file"})
	v.SetDefault("delivery.timeout", 30*time.Second)
	v.SetDefault("delivery.file.dir", "./briefings")
	v.SetDefault("delivery.email.smtp_host", "")
	v.SetDefault("delivery.email.smtp_port", 587)
	v.SetDefault("delivery.email.username", "")
	v.SetDefault("delivery.email.password", "")
	v.SetDefault("delivery.email.from", "")
	v.SetDefault("delivery.email.to", []string{})
	v.SetDefault("delivery.kindle.address", "")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.file_path", "./data/briefing.db")
	v.SetDefault("database.seen_retention", 7*24*time.Hour)

	v.SetDefault("schedule.interval", 24*time.Hour)
	v.SetDefault("schedule.profile", "")
}

// Load 从viper读取并校验配置，OPML文件中的订阅源追加到数据源列表
func Load(v *viper.Viper) (model.AppConfig, error) {
	var cfg model.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("解析配置失败: %w", err)
	}

	if cfg.Sources.OpmlFile != "" {
		specs, err := source.LoadOPML(cfg.Sources.OpmlFile, cfg.Sources.MaxItemsPerSource)
		if err != nil {
			return cfg, err
		}
		cfg.Sources.List = append(cfg.Sources.List, specs...)
	}

	for i := range cfg.Sources.List {
		spec := &cfg.Sources.List[i]
		spec.Kind = model.SourceKind(strings.ToLower(strings.TrimSpace(string(spec.Kind))))
		if spec.Limit == 0 {
			spec.Limit = cfg.Sources.MaxItemsPerSource
		}
	}

	for name, profile := range cfg.Profiles {
		if profile.Name == "" {
			profile.Name = name
		}
		for i := range profile.SourceOverrideSet {
			if profile.SourceOverrideSet[i].Limit == 0 {
				profile.SourceOverrideSet[i].Limit = cfg.Sources.MaxItemsPerSource
			}
		}
		cfg.Profiles[name] = profile
	}

	for _, kind := range cfg.Run.Priority {
		if !kind.Valid() {
			return cfg, fmt.Errorf("run.priority包含未知的数据源类型: %q", kind)
		}
	}
	for kind := range cfg.Run.KindCaps {
		if !kind.Valid() {
			return cfg, fmt.Errorf("run.kind_caps包含未知的数据源类型: %q", kind)
		}
	}
	return cfg, nil
}

// LoggerConfig 读取日志配置
func LoggerConfig(v *viper.Viper) (logger.Config, error) {
	var cfg logger.Config
	if err := v.UnmarshalKey("logger", &cfg); err != nil {
		return cfg, fmt.Errorf("解析日志配置失败: %w", err)
	}
	return cfg, nil
}

// Profile 按名称查找运行模式，名称为空时返回默认模式
func Profile(cfg model.AppConfig, name string) (model.RunProfile, error) {
	if name == "" {
		return model.RunProfile{Name: "default"}, nil
	}
	if profile, ok := cfg.Profiles[strings.ToLower(name)]; ok {
		return profile, nil
	}
	names := make([]string, 0, len(cfg.Profiles))
	for n := range cfg.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return model.RunProfile{}, fmt.Errorf("未知的运行模式%q，可用: %s", name, strings.Join(names, ", "))
}

// Dump 以YAML格式输出当前生效的配置，密钥类字段被隐藏
func Dump(v *viper.Viper) ([]byte, error) {
	settings := mask(v.AllSettings())
	out, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("生成YAML失败: %w", err)
	}
	return out, nil
}

func mask(settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for key, value := range settings {
		switch val := value.(type) {
		case map[string]interface{}:
			out[key] = mask(val)
		case time.Duration:
			out[key] = val.String()
		default:
			if _, secret := secretKeys[strings.ToLower(key)]; secret {
				if s, ok := value.(string); ok && s != "" {
					out[key] = "******"
					continue
				}
			}
			out[key] = value
		}
	}
	return out
}
