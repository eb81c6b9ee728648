package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/domain/service"
	"github.com/wolfitem/ai-briefing/internal/middleware"
)

func fastConfig() SchedulerConfig {
	return SchedulerConfig{
		Deadline:       5 * time.Second,
		TaskTimeout:    time.Second,
		MaxConcurrency: 4,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
}

func newsSpec(id string) model.SourceSpec {
	return model.SourceSpec{ID: id, Kind: model.KindNews, Target: id}
}

func registryWith(kind model.SourceKind, fn service.SourceAdapterFunc) *service.Registry {
	registry := service.NewRegistry()
	registry.Register(kind, fn)
	return registry
}

func itemsFor(target string, n int) []model.RawItem {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	items := make([]model.RawItem, n)
	for i := range items {
		items[i] = model.RawItem{
			Title:     fmt.Sprintf("%s item %d", target, i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return items
}

func TestSchedulerExactlyOneResultPerSpec(t *testing.T) {
	registry := registryWith(model.KindNews, func(ctx context.Context, target string, _ model.FetchConstraints) ([]model.RawItem, error) {
		if target == "s3" || target == "s7" {
			return nil, model.Permanent(errors.New("bad feed"))
		}
		return itemsFor(target, 2), nil
	})

	var specs []model.SourceSpec
	for i := 0; i < 12; i++ {
		specs = append(specs, newsSpec(fmt.Sprintf("s%d", i)))
	}

	var mu sync.Mutex
	emitted := make(map[string]int)
	results := NewFetchScheduler(registry, nil, nil, fastConfig()).Run(context.Background(), specs, func(r model.FetchResult) {
		mu.Lock()
		defer mu.Unlock()
		emitted[r.SourceID]++
	})

	require.Len(t, results, len(specs))
	for i, r := range results {
		require.Equal(t, specs[i].ID, r.SourceID)
		require.Equal(t, 1, emitted[r.SourceID])
		if r.SourceID == "s3" || r.SourceID == "s7" {
			require.Equal(t, model.StatusFailed, r.Status)
			require.Error(t, r.Err)
		} else {
			require.Equal(t, model.StatusOK, r.Status)
			require.NoError(t, r.Err)
			require.Len(t, r.Items, 2)
		}
	}
	require.Len(t, emitted, len(specs))
}

func TestSchedulerPermanentErrorIsNotRetried(t *testing.T) {
	var calls int32
	registry := registryWith(model.KindNews, func(context.Context, string, model.FetchConstraints) ([]model.RawItem, error) {
		atomic.AddInt32(&calls, 1)
		return nil, model.Permanent(errors.New("401 unauthorized"))
	})

	results := NewFetchScheduler(registry, nil, nil, fastConfig()).Run(context.Background(), []model.SourceSpec{newsSpec("p")}, nil)

	require.Len(t, results, 1)
	require.Equal(t, model.StatusFailed, results[0].Status)
	require.Equal(t, 1, results[0].Attempts)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.False(t, model.IsTransient(results[0].Err))
}

func TestSchedulerRetriesTransientUntilSuccess(t *testing.T) {
	const succeedOn = 3
	var calls int32
	registry := registryWith(model.KindNews, func(_ context.Context, target string, _ model.FetchConstraints) ([]model.RawItem, error) {
		if atomic.AddInt32(&calls, 1) < succeedOn {
			return nil, model.Transient(errors.New("connection reset"))
		}
		return itemsFor(target, 3), nil
	})

	cfg := fastConfig()
	cfg.MaxRetries = succeedOn
	results := NewFetchScheduler(registry, nil, nil, cfg).Run(context.Background(), []model.SourceSpec{newsSpec("t")}, nil)

	require.Equal(t, model.StatusOK, results[0].Status)
	require.Equal(t, succeedOn, results[0].Attempts)
	require.Len(t, results[0].Items, 3)
}

func TestSchedulerGivesUpAfterMaxRetries(t *testing.T) {
	registry := registryWith(model.KindNews, func(context.Context, string, model.FetchConstraints) ([]model.RawItem, error) {
		return nil, model.Transient(errors.New("503"))
	})

	cfg := fastConfig()
	cfg.MaxRetries = 2
	results := NewFetchScheduler(registry, nil, nil, cfg).Run(context.Background(), []model.SourceSpec{newsSpec("t")}, nil)

	require.Equal(t, model.StatusFailed, results[0].Status)
	require.Equal(t, 2, results[0].Attempts)
	require.ErrorContains(t, results[0].Err, "503")
}

func TestSchedulerAttemptTimeout(t *testing.T) {
	registry := registryWith(model.KindNews, func(ctx context.Context, _ string, _ model.FetchConstraints) ([]model.RawItem, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := fastConfig()
	cfg.TaskTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 2
	results := NewFetchScheduler(registry, nil, nil, cfg).Run(context.Background(), []model.SourceSpec{newsSpec("slow")}, nil)

	require.Equal(t, model.StatusTimedOut, results[0].Status)
	require.Equal(t, 2, results[0].Attempts)
	require.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestSchedulerGlobalDeadline(t *testing.T) {
	hang := map[string]bool{"s1": true, "s4": true}
	registry := registryWith(model.KindNews, func(ctx context.Context, target string, _ model.FetchConstraints) ([]model.RawItem, error) {
		if hang[target] {
			// 不响应取消的适配器也不能拖住调度器
			time.Sleep(2 * time.Second)
			return nil, nil
		}
		if target == "s2" {
			return nil, model.Permanent(errors.New("gone"))
		}
		return itemsFor(target, 1), nil
	})

	cfg := fastConfig()
	cfg.Deadline = 100 * time.Millisecond
	cfg.TaskTimeout = 5 * time.Second
	cfg.MaxConcurrency = 5

	specs := []model.SourceSpec{newsSpec("s0"), newsSpec("s1"), newsSpec("s2"), newsSpec("s3"), newsSpec("s4")}
	start := time.Now()
	results := NewFetchScheduler(registry, nil, nil, cfg).Run(context.Background(), specs, nil)
	elapsed := time.Since(start)

	require.Less(t, elapsed, time.Second)
	require.Len(t, results, 5)
	require.Equal(t, model.StatusOK, results[0].Status)
	require.Equal(t, model.StatusTimedOut, results[1].Status)
	require.ErrorIs(t, results[1].Err, model.ErrRunDeadline)
	require.Equal(t, model.StatusFailed, results[2].Status)
	require.Equal(t, model.StatusOK, results[3].Status)
	require.Equal(t, model.StatusTimedOut, results[4].Status)
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	registry := registryWith(model.KindNews, func(context.Context, string, model.FetchConstraints) ([]model.RawItem, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})

	cfg := fastConfig()
	cfg.MaxConcurrency = 3
	var specs []model.SourceSpec
	for i := 0; i < 10; i++ {
		specs = append(specs, newsSpec(fmt.Sprintf("c%d", i)))
	}
	results := NewFetchScheduler(registry, nil, nil, cfg).Run(context.Background(), specs, nil)

	require.Len(t, results, 10)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	require.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestSchedulerRespectsRateLimitClass(t *testing.T) {
	const interval = 40 * time.Millisecond
	registry := registryWith(model.KindAlert, func(context.Context, string, model.FetchConstraints) ([]model.RawItem, error) {
		return nil, nil
	})
	limiter := middleware.NewRateLimiter(map[string]time.Duration{"alert": interval})

	specs := []model.SourceSpec{
		{ID: "a1", Kind: model.KindAlert, Target: "go"},
		{ID: "a2", Kind: model.KindAlert, Target: "rust"},
		{ID: "a3", Kind: model.KindAlert, Target: "zig"},
	}
	start := time.Now()
	results := NewFetchScheduler(registry, limiter, nil, fastConfig()).Run(context.Background(), specs, nil)

	require.GreaterOrEqual(t, time.Since(start), 2*interval)
	for _, r := range results {
		require.Equal(t, model.StatusOK, r.Status)
	}
}

func TestSchedulerMissingAdapter(t *testing.T) {
	results := NewFetchScheduler(service.NewRegistry(), nil, nil, fastConfig()).
		Run(context.Background(), []model.SourceSpec{{ID: "w", Kind: model.KindWeather, Target: "1,2"}}, nil)

	require.Equal(t, model.StatusFailed, results[0].Status)
	require.Equal(t, 0, results[0].Attempts)
}

func TestSchedulerRecoversAdapterPanic(t *testing.T) {
	registry := registryWith(model.KindNews, func(context.Context, string, model.FetchConstraints) ([]model.RawItem, error) {
		panic("boom")
	})
	metrics := middleware.NewMetricsCollector()

	results := NewFetchScheduler(registry, nil, metrics, fastConfig()).Run(context.Background(), []model.SourceSpec{newsSpec("x")}, nil)

	require.Equal(t, model.StatusFailed, results[0].Status)
	require.Equal(t, 1, results[0].Attempts)
	report := metrics.GetReport()
	require.EqualValues(t, 1, report.FetchStats.Failures)
	require.EqualValues(t, 1, report.FetchStats.Outcomes["failed"])
}

func TestSchedulerPassesConstraints(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var got model.FetchConstraints
	registry := registryWith(model.KindNews, func(_ context.Context, _ string, c model.FetchConstraints) ([]model.RawItem, error) {
		got = c
		return nil, nil
	})

	cfg := fastConfig()
	cfg.Constraints = func(spec model.SourceSpec) model.FetchConstraints {
		return model.FetchConstraints{MaxItems: spec.Limit, Since: since}
	}
	spec := newsSpec("n")
	spec.Limit = 7
	NewFetchScheduler(registry, nil, nil, cfg).Run(context.Background(), []model.SourceSpec{spec}, nil)

	require.Equal(t, 7, got.MaxItems)
	require.Equal(t, since, got.Since)
}

func TestSchedulerCompletionOrderDoesNotChangeDigest(t *testing.T) {
	specs := []model.SourceSpec{
		newsSpec("n1"),
		newsSpec("n2"),
		{ID: "w1", Kind: model.KindWeather, Target: "1,2"},
		{ID: "a1", Kind: model.KindAlert, Target: "go"},
	}
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	run := func(delays map[string]time.Duration) *model.Digest {
		adapter := service.SourceAdapterFunc(func(_ context.Context, target string, _ model.FetchConstraints) ([]model.RawItem, error) {
			time.Sleep(delays[target])
			// n1与n2共享同一条标题，同一时间戳
			return []model.RawItem{
				{Title: "shared headline", Timestamp: ts},
				{Title: target + " own", Timestamp: ts.Add(time.Minute)},
			}, nil
		})
		registry := service.NewRegistry()
		for _, kind := range model.AllKinds {
			registry.Register(kind, adapter)
		}
		agg := NewDigestAggregator(specs, AggregatorConfig{Now: func() time.Time { return ts }})
		cfg := fastConfig()
		cfg.MaxConcurrency = len(specs)
		var ingestErrs []error
		NewFetchScheduler(registry, nil, nil, cfg).Run(context.Background(), specs, func(r model.FetchResult) {
			if err := agg.Ingest(r); err != nil {
				ingestErrs = append(ingestErrs, err)
			}
		})
		require.Empty(t, ingestErrs)
		return agg.Finalize()
	}

	forward := run(map[string]time.Duration{"n1": 0, "n2": 30 * time.Millisecond, "1,2": 60 * time.Millisecond, "go": 90 * time.Millisecond})
	reverse := run(map[string]time.Duration{"n1": 90 * time.Millisecond, "n2": 60 * time.Millisecond, "1,2": 30 * time.Millisecond, "go": 0})

	require.Equal(t, sectionKinds(forward), sectionKinds(reverse))
	require.Equal(t, []model.SourceKind{model.KindAlert, model.KindNews, model.KindWeather}, sectionKinds(forward))
	require.Equal(t, len(forward.Items()), len(reverse.Items()))
	for i, item := range forward.Items() {
		require.Equal(t, item.DedupKey, reverse.Items()[i].DedupKey)
	}
}

func sectionKinds(d *model.Digest) []model.SourceKind {
	kinds := make([]model.SourceKind, 0, len(d.Sections))
	for _, s := range d.Sections {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}
