package model

import "time"

// AppConfig 管道所需的全部配置，构造时传入，运行期间不可变
type AppConfig struct {
	Run           RunConfig                `mapstructure:"run"`
	RateLimits    map[string]time.Duration `mapstructure:"rate_limits"` // 限流分组 -> 最小调用间隔
	Sources       SourcesConfig            `mapstructure:"sources"`
	Summarization SummarizationConfig      `mapstructure:"summarization"`
	Delivery      DeliveryConfig           `mapstructure:"delivery"`
	Database      DatabaseConfig           `mapstructure:"database"`
	Profiles      map[string]RunProfile    `mapstructure:"profiles"`
	Schedule      ScheduleConfig           `mapstructure:"schedule"`
}

// RunConfig 调度与聚合参数
type RunConfig struct {
	Deadline       time.Duration      `mapstructure:"deadline"`        // 整体运行截止时间
	TaskTimeout    time.Duration      `mapstructure:"task_timeout"`    // 单次尝试超时
	MaxConcurrency int                `mapstructure:"max_concurrency"` // 最大并发数
	MaxRetries     int                `mapstructure:"max_retries"`     // 单个任务最多尝试次数
	BackoffBase    time.Duration      `mapstructure:"backoff_base"`    // 指数退避基数
	BackoffMax     time.Duration      `mapstructure:"backoff_max"`     // 退避上限
	KindCaps       map[SourceKind]int `mapstructure:"kind_caps"`       // 每个分区的最大条目数
	Priority       []SourceKind       `mapstructure:"priority"`        // 分区排列顺序
}

// SourcesConfig 数据源相关配置
type SourcesConfig struct {
	OpmlFile            string        `mapstructure:"opml_file"`             // 额外导入的OPML文件
	MaxItemsPerSource   int           `mapstructure:"max_items_per_source"`  // 适配器默认返回条目数
	AlertLookback       time.Duration `mapstructure:"alert_lookback"`        // 话题提醒回溯时间
	WeatherForecastDays int           `mapstructure:"weather_forecast_days"` // 天气预报天数
	AlertSearchURL      string        `mapstructure:"alert_search_url"`      // 话题搜索RSS地址
	WeatherAPIURL       string        `mapstructure:"weather_api_url"`       // 天气接口地址
	MarketAPIURL        string        `mapstructure:"market_api_url"`        // 行情接口地址
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`          // 适配器HTTP超时
	List                []SourceSpec  `mapstructure:"list"`
}

// SummarizationConfig 摘要服务配置
type SummarizationConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`      // API密钥
	Model       string        `mapstructure:"model"`        // 模型名称
	APIUrl      string        `mapstructure:"api_url"`      // 接口地址
	TokenBudget int           `mapstructure:"token_budget"` // 摘要令牌预算
	Timeout     time.Duration `mapstructure:"timeout"`      // 单次调用超时
	RetryDelay  time.Duration `mapstructure:"retry_delay"`  // 重试前等待时间
	Prompt      string        `mapstructure:"prompt"`       // 提示词模板，%s为摘要正文
}

// DeliveryConfig 交付配置
type DeliveryConfig struct {
	Destinations []string      `mapstructure:"destinations"` // email, kindle, file
	Timeout      time.Duration `mapstructure:"timeout"`      // 单个目标的交付超时
	Email        EmailConfig   `mapstructure:"email"`
	Kindle       KindleConfig  `mapstructure:"kindle"`
	File         FileConfig    `mapstructure:"file"`
}

// EmailConfig SMTP邮件配置
type EmailConfig struct {
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// KindleConfig Kindle推送配置，复用邮件的SMTP设置
type KindleConfig struct {
	Address string `mapstructure:"address"`
}

// FileConfig 本地文件输出配置
type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig 包含数据库的配置信息
type DatabaseConfig struct {
	Enabled       bool          `mapstructure:"enabled"`        // 是否启用数据库
	FilePath      string        `mapstructure:"file_path"`      // 数据库文件路径
	SeenRetention time.Duration `mapstructure:"seen_retention"` // 跨运行去重的保留时间
}

// ScheduleConfig 定时运行配置
type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Profile  string        `mapstructure:"profile"`
}
