package middleware

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
)

// MetricsCollector 收集一次或多次运行的性能指标，并发安全
type MetricsCollector struct {
	mu sync.RWMutex

	startTime time.Time

	// 抓取统计，按数据源类型
	fetchAttempts  map[string]int64
	fetchFailures  map[string]int64
	fetchDurations []time.Duration

	// 数据源终止状态统计
	sourceOutcomes map[string]int64

	// 摘要统计
	summaryCalls     int64
	summaryDegraded  int64
	summaryDurations []time.Duration

	// 交付统计
	deliveries       int64
	deliveryFailures int64
}

// NewMetricsCollector 创建新的性能监控器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:      time.Now(),
		fetchAttempts:  make(map[string]int64),
		fetchFailures:  make(map[string]int64),
		sourceOutcomes: make(map[string]int64),
	}
}

// RecordFetchAttempt 记录一次抓取尝试
func (m *MetricsCollector) RecordFetchAttempt(kind string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchAttempts[kind]++
	if !success {
		m.fetchFailures[kind]++
	}
	m.fetchDurations = appendBounded(m.fetchDurations, duration)
}

// RecordSourceOutcome 记录数据源的终止状态
func (m *MetricsCollector) RecordSourceOutcome(status string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sourceOutcomes[status]++
}

// RecordSummarization 记录摘要调用
func (m *MetricsCollector) RecordSummarization(duration time.Duration, degraded bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.summaryCalls++
	if degraded {
		m.summaryDegraded++
	}
	m.summaryDurations = appendBounded(m.summaryDurations, duration)
}

// RecordDelivery 记录一次交付
func (m *MetricsCollector) RecordDelivery(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliveries++
	if !success {
		m.deliveryFailures++
	}
}

// GetReport 获取性能报告
func (m *MetricsCollector) GetReport() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	upTime := time.Since(m.startTime)

	var attempts, failures int64
	for _, n := range m.fetchAttempts {
		attempts += n
	}
	for _, n := range m.fetchFailures {
		failures += n
	}

	return Report{
		RuntimeInfo: RuntimeInfo{
			StartTime: m.startTime,
			Uptime:    upTime,
		},
		FetchStats: FetchStats{
			Attempts:       attempts,
			Failures:       failures,
			ByKind:         copyCounts(m.fetchAttempts),
			FailuresByKind: copyCounts(m.fetchFailures),
			Outcomes:       copyCounts(m.sourceOutcomes),
			AverageLatency: averageDuration(m.fetchDurations).Milliseconds(),
		},
		SummaryStats: SummaryStats{
			Calls:          m.summaryCalls,
			Degraded:       m.summaryDegraded,
			AverageLatency: averageDuration(m.summaryDurations).Milliseconds(),
		},
		DeliveryStats: DeliveryStats{
			Total:  m.deliveries,
			Failed: m.deliveryFailures,
		},
	}
}

// Report 运行时报告
type Report struct {
	RuntimeInfo   RuntimeInfo
	FetchStats    FetchStats
	SummaryStats  SummaryStats
	DeliveryStats DeliveryStats
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	StartTime time.Time
	Uptime    time.Duration
}

// FetchStats 抓取统计
type FetchStats struct {
	Attempts       int64
	Failures       int64
	ByKind         map[string]int64
	FailuresByKind map[string]int64
	Outcomes       map[string]int64
	AverageLatency int64
}

// SummaryStats 摘要统计
type SummaryStats struct {
	Calls          int64
	Degraded       int64
	AverageLatency int64
}

// DeliveryStats 交付统计
type DeliveryStats struct {
	Total  int64
	Failed int64
}

// LogMetrics 记录指标到日志
func LogMetrics(metrics *MetricsCollector) {
	if metrics == nil {
		return
	}
	report := metrics.GetReport()
	logger.Info("📊 性能上报",
		"start_time", report.RuntimeInfo.StartTime,
		"uptime", report.RuntimeInfo.Uptime,
		"fetch_attempts", report.FetchStats.Attempts,
		"fetch_failures", report.FetchStats.Failures,
		"fetch_by_kind", formatCounts(report.FetchStats.ByKind),
		"source_outcomes", formatCounts(report.FetchStats.Outcomes),
		"fetch_avg_latency", fmt.Sprintf("%dms", report.FetchStats.AverageLatency),
		"summary_calls", report.SummaryStats.Calls,
		"summary_degraded", report.SummaryStats.Degraded,
		"summary_avg_latency", fmt.Sprintf("%dms", report.SummaryStats.AverageLatency),
		"deliveries", report.DeliveryStats.Total,
		"delivery_failures", report.DeliveryStats.Failed,
	)
}

func appendBounded(durations []time.Duration, d time.Duration) []time.Duration {
	durations = append(durations, d)
	if len(durations) > 1000 {
		durations = durations[1:]
	}
	return durations
}

func averageDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func formatCounts(counts map[string]int64) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%s=%d", k, counts[k])
	}
	return out
}
