package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SourceKind 数据源类型，封闭枚举
type SourceKind string

const (
	KindNews    SourceKind = "news"    // RSS/Atom新闻源
	KindAlert   SourceKind = "alert"   // 话题搜索提醒
	KindWeather SourceKind = "weather" // 天气预报
	KindMarket  SourceKind = "market"  // 行情报价
)

// AllKinds 所有合法的数据源类型
var AllKinds = []SourceKind{KindNews, KindAlert, KindWeather, KindMarket}

// DefaultPriority 默认的分区排列顺序
var DefaultPriority = []SourceKind{KindAlert, KindNews, KindMarket, KindWeather}

// Valid 判断类型是否属于封闭枚举
func (k SourceKind) Valid() bool {
	for _, kind := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ParseSourceKind 解析数据源类型字符串
func ParseSourceKind(value string) (SourceKind, error) {
	kind := SourceKind(strings.ToLower(strings.TrimSpace(value)))
	if !kind.Valid() {
		return "", fmt.Errorf("未知的数据源类型: %q", value)
	}
	return kind, nil
}

// SourceSpec 描述一个配置好的数据源，运行开始后不可变
type SourceSpec struct {
	ID     string     `mapstructure:"id"`     // 唯一标识
	Kind   SourceKind `mapstructure:"kind"`   // 数据源类型
	Target string     `mapstructure:"target"` // URL、话题、代码或"纬度,经度"
	Name   string     `mapstructure:"name"`   // 展示名称（可选）
	Limit  int        `mapstructure:"limit"`  // 单源最大条目数，0表示不限制
	Class  string     `mapstructure:"class"`  // 限流分组（可选，默认为类型名）
}

// SourceClass 返回数据源所属的限流分组
func (s SourceSpec) SourceClass() string {
	if s.Class != "" {
		return s.Class
	}
	return string(s.Kind)
}

// DisplayName 返回用于展示的名称
func (s SourceSpec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// FetchTask 单个数据源的抓取任务，只由调度器修改
type FetchTask struct {
	Source   SourceSpec
	Attempts int       // 已尝试次数
	Deadline time.Time // 整体运行截止时间
}

// FetchStatus 抓取任务的终止状态
type FetchStatus string

const (
	StatusOK       FetchStatus = "ok"
	StatusFailed   FetchStatus = "failed"
	StatusTimedOut FetchStatus = "timed-out"
)

// FetchResult 每个抓取任务终止时产生且仅产生一次
type FetchResult struct {
	SourceID string
	Kind     SourceKind
	Status   FetchStatus
	Items    []DigestItem
	Err      error // 当且仅当 Status != StatusOK 时存在
	Attempts int
	Duration time.Duration
}

// OK 判断抓取是否成功
func (r FetchResult) OK() bool {
	return r.Status == StatusOK
}

// FetchConstraints 传递给数据源适配器的抓取约束
type FetchConstraints struct {
	MaxItems int       // 最多返回的条目数，0表示不限制
	Since    time.Time // 只返回该时间之后的条目（零值表示不过滤）
	Days     int       // 天气预报天数
}

// RawItem 适配器返回的原始条目
type RawItem struct {
	Title     string
	Body      string
	Link      string
	Timestamp time.Time
}

// DigestItem 摘要中的一条记录
type DigestItem struct {
	SourceID  string
	Kind      SourceKind
	Title     string
	Body      string
	Link      string
	Timestamp time.Time
	DedupKey  string
}

// Section 摘要中按数据源类型划分的分区
type Section struct {
	Kind  SourceKind
	Items []DigestItem
}

// Digest 一次运行合并、去重后的结果，交付前冻结
type Digest struct {
	GeneratedAt         time.Time
	Sections            []Section         // 按配置的优先级排列
	FailedSources       []string          // 已排序
	FailureReasons      map[string]string // 数据源 -> 失败原因
	ContributingSources []string          // 成功抓取的源（可能没有条目），已排序
}

// Section 按类型查找分区
func (d *Digest) Section(kind SourceKind) (Section, bool) {
	for _, section := range d.Sections {
		if section.Kind == kind {
			return section, true
		}
	}
	return Section{}, false
}

// IsFailed 判断数据源是否失败
func (d *Digest) IsFailed(sourceID string) bool {
	i := sort.SearchStrings(d.FailedSources, sourceID)
	return i < len(d.FailedSources) && d.FailedSources[i] == sourceID
}

// ItemCount 返回所有分区的条目总数
func (d *Digest) ItemCount() int {
	total := 0
	for _, section := range d.Sections {
		total += len(section.Items)
	}
	return total
}

// Items 按分区顺序返回所有条目
func (d *Digest) Items() []DigestItem {
	items := make([]DigestItem, 0, d.ItemCount())
	for _, section := range d.Sections {
		items = append(items, section.Items...)
	}
	return items
}

// RunProfile 运行模式配置（早间、晚间、周末等），由调用方选择
type RunProfile struct {
	Name              string       `mapstructure:"name"`
	IncludeMarkets    *bool        `mapstructure:"include_markets"` // 为空时默认包含行情
	ShortSummary      bool         `mapstructure:"short_summary"`   // 使用一半的摘要令牌预算
	SourceOverrideSet []SourceSpec `mapstructure:"sources"`         // 非空时替换数据源列表
}

// MarketsIncluded 判断是否包含行情数据
func (p RunProfile) MarketsIncluded() bool {
	return p.IncludeMarkets == nil || *p.IncludeMarkets
}

// Apply 根据运行模式得到最终的数据源列表和令牌预算
func (p RunProfile) Apply(sources []SourceSpec, tokenBudget int) ([]SourceSpec, int) {
	if len(p.SourceOverrideSet) > 0 {
		sources = p.SourceOverrideSet
	}

	selected := make([]SourceSpec, 0, len(sources))
	for _, src := range sources {
		if src.Kind == KindMarket && !p.MarketsIncluded() {
			continue
		}
		selected = append(selected, src)
	}

	if p.ShortSummary && tokenBudget > 1 {
		tokenBudget /= 2
	}
	return selected, tokenBudget
}

// Briefing 一次运行的最终产物
type Briefing struct {
	RunID      string
	Profile    string
	Digest     *Digest
	Results    []FetchResult
	Summary    string   // 摘要文本，降级或未启用时为空
	Degraded   bool     // 摘要调用失败，使用了原始内容
	Document   Document // 交付的完整文档
	StartedAt  time.Time
	FinishedAt time.Time
}

// Document 交付给各渠道的文档
type Document struct {
	Title       string
	Body        string // Markdown正文
	FileName    string // 附件或文件输出时使用的文件名
	GeneratedAt time.Time
}

// RunRecord 运行历史记录
type RunRecord struct {
	ID             string
	Profile        string
	StartedAt      time.Time
	FinishedAt     time.Time
	Sources        int
	FailedSources  []string
	Items          int
	Degraded       bool
	Delivered      int
	DeliveryFailed int
}
