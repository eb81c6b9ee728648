package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/domain/service"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/logger"
	"github.com/wolfitem/ai-briefing/internal/middleware"
)

// SchedulerConfig 调度参数
type SchedulerConfig struct {
	Deadline       time.Duration // 整体运行截止时间，<=0表示只受父context约束
	TaskTimeout    time.Duration // 单次尝试超时
	MaxConcurrency int           // 最大并发数
	MaxRetries     int           // 单个任务最多尝试次数
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	BackoffJitter  float64
	// Constraints 为每个数据源生成抓取约束，为空时只使用SourceSpec.Limit
	Constraints func(spec model.SourceSpec) model.FetchConstraints
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 15 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.Constraints == nil {
		c.Constraints = func(spec model.SourceSpec) model.FetchConstraints {
			return model.FetchConstraints{MaxItems: spec.Limit}
		}
	}
	return c
}

// FetchScheduler 以有界并发执行抓取任务，负责限流、超时与重试。
// 适配器的错误不会传出调度器，只会记录在对应的FetchResult中。
type FetchScheduler struct {
	registry *service.Registry
	limiter  *middleware.RateLimiter
	metrics  *middleware.MetricsCollector
	cfg      SchedulerConfig
	log      *logger.ContextLogger
}

// NewFetchScheduler 创建调度器，limiter和metrics可以为nil
func NewFetchScheduler(registry *service.Registry, limiter *middleware.RateLimiter, metrics *middleware.MetricsCollector, cfg SchedulerConfig) *FetchScheduler {
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil)
	}
	return &FetchScheduler{
		registry: registry,
		limiter:  limiter,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		log:      logger.WithContext("scheduler"),
	}
}

type taskState struct {
	task    model.FetchTask
	done    bool
	lastErr error
	started time.Time
}

// schedulerRun 单次运行的共享状态，所有字段由mu保护
type schedulerRun struct {
	mu      sync.Mutex
	states  []*taskState
	results []model.FetchResult
	pending int
	allDone chan struct{}
	emit    func(model.FetchResult)
}

// Run 为每个SourceSpec产生且仅产生一个FetchResult，结果顺序与输入一致。
// emit不为空时，每个结果在终止时立即（串行地）交给emit，便于流式聚合。
// 所有任务终止或整体截止时间到达后返回；截止时仍未完成的任务记为timed-out。
func (s *FetchScheduler) Run(ctx context.Context, specs []model.SourceSpec, emit func(model.FetchResult)) []model.FetchResult {
	if len(specs) == 0 {
		return nil
	}
	defer logger.TimeTrack("FetchScheduler.Run")()

	var runCtx context.Context
	var cancel context.CancelFunc
	if s.cfg.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Deadline)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	deadline, _ := runCtx.Deadline()

	run := &schedulerRun{
		states:  make([]*taskState, len(specs)),
		results: make([]model.FetchResult, len(specs)),
		pending: len(specs),
		allDone: make(chan struct{}),
		emit:    emit,
	}

	// 每个任务同一时刻最多在队列中出现一次，容量足够时入队永不阻塞
	queue := make(chan int, len(specs))
	now := time.Now()
	for i, spec := range specs {
		run.states[i] = &taskState{
			task:    model.FetchTask{Source: spec, Deadline: deadline},
			started: now,
		}
		queue <- i
	}

	workers := s.cfg.MaxConcurrency
	if workers > len(specs) {
		workers = len(specs)
	}
	s.log.Info("开始抓取数据源", "sources", len(specs), "workers", workers, "deadline", s.cfg.Deadline)

	for w := 0; w < workers; w++ {
		go s.worker(runCtx, run, queue)
	}

	select {
	case <-run.allDone:
	case <-runCtx.Done():
		expired := run.expire(runCtx.Err())
		s.log.Warn("运行截止时间已到，未完成的任务记为超时", "expired", expired, "total", len(specs))
	}

	for i := range run.results {
		s.metrics.RecordSourceOutcome(string(run.results[i].Status))
	}
	return run.results
}

func (s *FetchScheduler) worker(ctx context.Context, run *schedulerRun, queue chan int) {
	for {
		select {
		case <-ctx.Done():
			return
		case i := <-queue:
			s.attempt(ctx, run, queue, i)
		}
	}
}

// attempt 执行一次尝试：限流、调用适配器、根据错误类型决定终止或重新入队
func (s *FetchScheduler) attempt(ctx context.Context, run *schedulerRun, queue chan int, i int) {
	run.mu.Lock()
	st := run.states[i]
	if st.done {
		run.mu.Unlock()
		return
	}
	spec := st.task.Source
	run.mu.Unlock()

	adapter, err := s.registry.Lookup(spec.Kind)
	if err != nil {
		run.finish(i, model.FetchResult{Status: model.StatusFailed, Err: err})
		return
	}

	if err := s.limiter.Acquire(ctx, spec.SourceClass()); err != nil {
		// 只有整体运行结束时才会失败，由expire统一记录
		return
	}

	run.mu.Lock()
	st.task.Attempts++
	attempt := st.task.Attempts
	run.mu.Unlock()

	start := time.Now()
	attemptCtx, cancelAttempt := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	raw, err := callAdapter(attemptCtx, adapter, spec, s.cfg.Constraints(spec))
	cancelAttempt()
	s.metrics.RecordFetchAttempt(string(spec.Kind), time.Since(start), err == nil)

	if ctx.Err() != nil {
		return
	}

	if err == nil {
		items := make([]model.DigestItem, 0, len(raw))
		for _, r := range raw {
			items = append(items, service.NormalizeItem(spec, r))
		}
		s.log.Debug("数据源抓取成功", "source", spec.ID, "attempt", attempt, "items", len(items))
		run.finish(i, model.FetchResult{Status: model.StatusOK, Items: items})
		return
	}

	if !model.IsTransient(err) {
		s.log.Error("数据源抓取失败，不再重试", "source", spec.ID, "attempt", attempt, "error", err)
		run.finish(i, model.FetchResult{Status: model.StatusFailed, Err: err})
		return
	}

	if attempt >= s.cfg.MaxRetries {
		status := model.StatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			status = model.StatusTimedOut
		}
		s.log.Error("数据源抓取失败，已达到最大重试次数", "source", spec.ID, "attempts", attempt, "error", err)
		run.finish(i, model.FetchResult{Status: status, Err: fmt.Errorf("尝试%d次后仍失败: %w", attempt, err)})
		return
	}

	run.mu.Lock()
	st.lastErr = err
	run.mu.Unlock()

	backoff := middleware.ExponentialBackoff(attempt-1, s.cfg.BackoffBase, s.cfg.BackoffMax, s.cfg.BackoffJitter)
	s.log.Warn("数据源抓取失败，等待重试", "source", spec.ID, "attempt", attempt, "backoff_ms", backoff.Milliseconds(), "error", err)

	// 退避期间不占用worker
	go func() {
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-timer.C:
			queue <- i
		case <-ctx.Done():
		}
	}()
}

// callAdapter 在单独的goroutine中调用适配器，attemptCtx结束后立即放弃等待
func callAdapter(ctx context.Context, adapter service.SourceAdapter, spec model.SourceSpec, constraints model.FetchConstraints) ([]model.RawItem, error) {
	type fetchOutcome struct {
		items []model.RawItem
		err   error
	}
	done := make(chan fetchOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchOutcome{err: model.Permanent(fmt.Errorf("适配器panic: %v", r))}
			}
		}()
		items, err := adapter.Fetch(ctx, spec.Target, constraints)
		done <- fetchOutcome{items: items, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil {
			return nil, model.Transient(fmt.Errorf("单次抓取超时: %w", ctx.Err()))
		}
		return out.items, out.err
	case <-ctx.Done():
		return nil, model.Transient(fmt.Errorf("单次抓取超时: %w", ctx.Err()))
	}
}

// finish 记录任务的终止结果，重复调用只有第一次生效
func (r *schedulerRun) finish(i int, res model.FetchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.states[i]
	if st.done {
		return
	}
	st.done = true

	res.SourceID = st.task.Source.ID
	res.Kind = st.task.Source.Kind
	res.Attempts = st.task.Attempts
	res.Duration = time.Since(st.started)
	r.results[i] = res
	if r.emit != nil {
		r.emit(res)
	}

	r.pending--
	if r.pending == 0 {
		close(r.allDone)
	}
}

// expire 将所有未终止的任务记为超时，返回被记录的数量
func (r *schedulerRun) expire(cause error) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for i, st := range r.states {
		if st.done {
			continue
		}
		st.done = true
		expired++

		err := fmt.Errorf("%w: %v", model.ErrRunDeadline, cause)
		if st.lastErr != nil {
			err = fmt.Errorf("%w (最近一次错误: %v)", model.ErrRunDeadline, st.lastErr)
		}
		res := model.FetchResult{
			SourceID: st.task.Source.ID,
			Kind:     st.task.Source.Kind,
			Status:   model.StatusTimedOut,
			Err:      err,
			Attempts: st.task.Attempts,
			Duration: time.Since(st.started),
		}
		r.results[i] = res
		if r.emit != nil {
			r.emit(res)
		}
	}
	r.pending = 0
	return expired
}
