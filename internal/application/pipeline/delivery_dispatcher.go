package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
	"github.com/wolfitem/ai-briefing/internal/middleware"
)

// Sink 一个交付渠道（邮件、Kindle、文件等）
type Sink interface {
	Deliver(ctx context.Context, doc model.Document) error
}

// SinkFunc 将函数适配为Sink
type SinkFunc func(ctx context.Context, doc model.Document) error

// Deliver 调用函数本身
func (f SinkFunc) Deliver(ctx context.Context, doc model.Document) error {
	return f(ctx, doc)
}

// DeliveryOutcome 单个交付目标的结果
type DeliveryOutcome struct {
	Destination string
	Err         error
	Duration    time.Duration
}

// DeliveryReport 一次交付的全部结果，顺序与请求的目标一致
type DeliveryReport struct {
	Outcomes []DeliveryOutcome
}

// Succeeded 成功交付的目标数
func (r DeliveryReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed 交付失败的目标数
func (r DeliveryReport) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// DeliveryDispatcher 并发交付到各目标，一个目标失败不影响其他目标，不做重试
type DeliveryDispatcher struct {
	mu      sync.RWMutex
	sinks   map[string]Sink
	timeout time.Duration
	metrics *middleware.MetricsCollector
	log     *logger.ContextLogger
}

// NewDeliveryDispatcher 创建交付分发器，timeout为单个目标的超时
func NewDeliveryDispatcher(timeout time.Duration, metrics *middleware.MetricsCollector) *DeliveryDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DeliveryDispatcher{
		sinks:   make(map[string]Sink),
		timeout: timeout,
		metrics: metrics,
		log:     logger.WithContext("delivery"),
	}
}

// Register 登记交付渠道，同名时覆盖
func (d *DeliveryDispatcher) Register(name string, sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[name] = sink
}

// Destinations 已登记的渠道名称，已排序
func (d *DeliveryDispatcher) Destinations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sinks))
	for name := range d.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deliver 交付文档到所有目标。
// 每个失败的目标对应一个*model.DeliveryError；只有全部目标失败时才返回错误。
// 没有目标时不算失败。
func (d *DeliveryDispatcher) Deliver(ctx context.Context, doc model.Document, destinations []string) (DeliveryReport, error) {
	report := DeliveryReport{Outcomes: make([]DeliveryOutcome, len(destinations))}
	if len(destinations) == 0 {
		d.log.Warn("没有配置交付目标，跳过交付")
		return report, nil
	}

	var wg sync.WaitGroup
	for i, dest := range destinations {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			report.Outcomes[i] = d.deliverOne(ctx, doc, dest)
		}(i, dest)
	}
	wg.Wait()

	var errs []error
	for _, outcome := range report.Outcomes {
		d.metrics.RecordDelivery(outcome.Err == nil)
		if outcome.Err != nil {
			d.log.Error("交付失败", "destination", outcome.Destination, "error", outcome.Err)
			errs = append(errs, outcome.Err)
			continue
		}
		d.log.Info("交付成功", "destination", outcome.Destination, "duration", outcome.Duration)
	}

	if len(errs) == len(destinations) {
		return report, fmt.Errorf("%w: %w", model.ErrAllDeliveriesFailed, errors.Join(errs...))
	}
	return report, nil
}

func (d *DeliveryDispatcher) deliverOne(ctx context.Context, doc model.Document, dest string) DeliveryOutcome {
	start := time.Now()
	outcome := DeliveryOutcome{Destination: dest}

	d.mu.RLock()
	sink, ok := d.sinks[dest]
	d.mu.RUnlock()
	if !ok || sink == nil {
		outcome.Err = &model.DeliveryError{Destination: dest, Err: errors.New("未知的交付目标")}
		return outcome
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("交付渠道panic: %v", r)
			}
		}()
		done <- sink.Deliver(deliverCtx, doc)
	}()

	var err error
	select {
	case err = <-done:
	case <-deliverCtx.Done():
		err = fmt.Errorf("交付超时: %w", deliverCtx.Err())
	}
	if err != nil {
		outcome.Err = &model.DeliveryError{Destination: dest, Err: err}
	}
	outcome.Duration = time.Since(start)
	return outcome
}
