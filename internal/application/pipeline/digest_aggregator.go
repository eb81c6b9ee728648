package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

// AggregatorConfig 聚合参数
type AggregatorConfig struct {
	Priority []model.SourceKind       // 分区顺序，为空时使用默认顺序
	KindCaps map[model.SourceKind]int // 每个分区的最大条目数，0表示不限制
	Exclude  map[string]struct{}      // 之前运行已交付过的去重键
	Now      func() time.Time         // 生成时间，测试时可替换
}

// AggregatorStats 聚合统计
type AggregatorStats struct {
	Ingested   int
	Duplicates int
	Excluded   int
	OverLimit  int
	OverCap    int
}

// DigestAggregator 合并各数据源的抓取结果，并发安全。
// 同一分区内按去重键去重（先到先得），Finalize之后不再接受写入。
type DigestAggregator struct {
	mu sync.Mutex

	cfg      AggregatorConfig
	specs    map[string]model.SourceSpec
	order    []string
	ingested map[string]struct{}

	sections    map[model.SourceKind][]model.DigestItem
	keys        map[model.SourceKind]map[string]struct{}
	failed      map[string]string
	contributed map[string]struct{}

	stats  AggregatorStats
	frozen *model.Digest
	log    *logger.ContextLogger
}

// NewDigestAggregator 为本次运行的全部数据源创建聚合器
func NewDigestAggregator(specs []model.SourceSpec, cfg AggregatorConfig) *DigestAggregator {
	if len(cfg.Priority) == 0 {
		cfg.Priority = model.DefaultPriority
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	a := &DigestAggregator{
		cfg:         cfg,
		specs:       make(map[string]model.SourceSpec, len(specs)),
		ingested:    make(map[string]struct{}, len(specs)),
		sections:    make(map[model.SourceKind][]model.DigestItem),
		keys:        make(map[model.SourceKind]map[string]struct{}),
		failed:      make(map[string]string),
		contributed: make(map[string]struct{}),
		log:         logger.WithContext("aggregator"),
	}
	for _, spec := range specs {
		if _, ok := a.specs[spec.ID]; !ok {
			a.order = append(a.order, spec.ID)
		}
		a.specs[spec.ID] = spec
	}
	return a
}

// Ingest 合并一个抓取结果。Finalize之后调用、未知数据源或重复结果返回ErrInvalidState。
func (a *DigestAggregator) Ingest(result model.FetchResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen != nil {
		return fmt.Errorf("%w: 摘要已冻结，不能再写入数据源%s的结果", model.ErrInvalidState, result.SourceID)
	}
	spec, ok := a.specs[result.SourceID]
	if !ok {
		return fmt.Errorf("%w: 未知的数据源%s", model.ErrInvalidState, result.SourceID)
	}
	if _, dup := a.ingested[result.SourceID]; dup {
		return fmt.Errorf("%w: 数据源%s的结果重复写入", model.ErrInvalidState, result.SourceID)
	}
	a.ingested[result.SourceID] = struct{}{}

	if !result.OK() {
		reason := string(result.Status)
		if result.Err != nil {
			reason = result.Err.Error()
		}
		a.failed[spec.ID] = reason
		return nil
	}
	a.contributed[spec.ID] = struct{}{}

	items := make([]model.DigestItem, len(result.Items))
	copy(items, result.Items)
	sortItems(items)

	keys := a.keys[spec.Kind]
	if keys == nil {
		keys = make(map[string]struct{})
		a.keys[spec.Kind] = keys
	}

	placed := 0
	for _, item := range items {
		if spec.Limit > 0 && placed >= spec.Limit {
			// 按时间倒序遍历，超出部分是最旧的条目
			a.stats.OverLimit++
			continue
		}
		if _, seen := a.cfg.Exclude[item.DedupKey]; seen {
			a.stats.Excluded++
			continue
		}
		if _, seen := keys[item.DedupKey]; seen {
			a.stats.Duplicates++
			continue
		}
		item.Kind = spec.Kind
		keys[item.DedupKey] = struct{}{}
		a.sections[spec.Kind] = append(a.sections[spec.Kind], item)
		placed++
	}
	a.stats.Ingested += placed
	return nil
}

// Finalize 冻结并返回摘要；之后再次调用返回同一份摘要。
// 未收到结果的数据源记为失败，保证每个数据源要么贡献条目要么失败。
func (a *DigestAggregator) Finalize() *model.Digest {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen != nil {
		return cloneDigest(a.frozen)
	}

	for _, id := range a.order {
		if _, ok := a.ingested[id]; !ok {
			a.failed[id] = "未收到抓取结果"
		}
	}

	digest := &model.Digest{
		GeneratedAt:    a.cfg.Now(),
		FailureReasons: make(map[string]string, len(a.failed)),
	}

	for _, kind := range a.kindOrder() {
		items := a.sections[kind]
		if len(items) == 0 {
			continue
		}
		sorted := make([]model.DigestItem, len(items))
		copy(sorted, items)
		sortItems(sorted)
		if limit := a.cfg.KindCaps[kind]; limit > 0 && len(sorted) > limit {
			a.stats.OverCap += len(sorted) - limit
			sorted = sorted[:limit]
		}
		digest.Sections = append(digest.Sections, model.Section{Kind: kind, Items: sorted})
	}

	for id, reason := range a.failed {
		digest.FailedSources = append(digest.FailedSources, id)
		digest.FailureReasons[id] = reason
	}
	sort.Strings(digest.FailedSources)
	for id := range a.contributed {
		digest.ContributingSources = append(digest.ContributingSources, id)
	}
	sort.Strings(digest.ContributingSources)

	a.frozen = digest
	a.log.Info("摘要聚合完成",
		"sections", len(digest.Sections),
		"items", digest.ItemCount(),
		"failed_sources", len(digest.FailedSources),
		"duplicates", a.stats.Duplicates,
		"excluded", a.stats.Excluded,
		"over_limit", a.stats.OverLimit,
		"over_cap", a.stats.OverCap)
	return cloneDigest(digest)
}

// Stats 返回聚合统计
func (a *DigestAggregator) Stats() AggregatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// kindOrder 先按配置的优先级，其余类型按名称排序追加
func (a *DigestAggregator) kindOrder() []model.SourceKind {
	order := make([]model.SourceKind, 0, len(a.sections))
	listed := make(map[model.SourceKind]struct{}, len(a.cfg.Priority))
	for _, kind := range a.cfg.Priority {
		if _, dup := listed[kind]; dup {
			continue
		}
		listed[kind] = struct{}{}
		order = append(order, kind)
	}

	var rest []model.SourceKind
	for kind := range a.sections {
		if _, ok := listed[kind]; !ok {
			rest = append(rest, kind)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(order, rest...)
}

// sortItems 时间倒序，时间相同时按来源和去重键排序，保证结果与到达顺序无关
func sortItems(items []model.DigestItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.DedupKey < b.DedupKey
	})
}

func cloneDigest(d *model.Digest) *model.Digest {
	out := &model.Digest{
		GeneratedAt:         d.GeneratedAt,
		Sections:            make([]model.Section, len(d.Sections)),
		FailedSources:       append([]string(nil), d.FailedSources...),
		FailureReasons:      make(map[string]string, len(d.FailureReasons)),
		ContributingSources: append([]string(nil), d.ContributingSources...),
	}
	for i, section := range d.Sections {
		out.Sections[i] = model.Section{
			Kind:  section.Kind,
			Items: append([]model.DigestItem(nil), section.Items...),
		}
	}
	for id, reason := range d.FailureReasons {
		out.FailureReasons[id] = reason
	}
	return out
}
