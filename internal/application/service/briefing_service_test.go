package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfitem/ai-briefing/internal/application/pipeline"
	"github.com/wolfitem/ai-briefing/internal/domain/model"
	domainservice "github.com/wolfitem/ai-briefing/internal/domain/service"
	"github.com/wolfitem/ai-briefing/internal/infrastructure/database"
	"github.com/wolfitem/ai-briefing/internal/middleware"
)

var runTime = time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

type completerFunc func(ctx context.Context, text string, tokenBudget int) (string, error)

func (f completerFunc) Complete(ctx context.Context, text string, tokenBudget int) (string, error) {
	return f(ctx, text, tokenBudget)
}

type capturingSink struct {
	mu   sync.Mutex
	docs []model.Document
	err  error
}

func (s *capturingSink) Deliver(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return s.err
}

type fixture struct {
	cfg        model.AppConfig
	registry   *domainservice.Registry
	sink       *capturingSink
	repo       *database.SQLiteBriefingRepository
	metrics    *middleware.MetricsCollector
	completer  domainservice.Completer
	alertSince time.Time
	budget     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "briefing.db"))
	require.NoError(t, db.Init(context.Background()))
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		cfg: model.AppConfig{
			Run: model.RunConfig{
				Deadline:       5 * time.Second,
				TaskTimeout:    time.Second,
				MaxConcurrency: 3,
				MaxRetries:     2,
				BackoffBase:    time.Millisecond,
				BackoffMax:     time.Millisecond,
			},
			Sources: model.SourcesConfig{
				AlertLookback:       12 * time.Hour,
				WeatherForecastDays: 3,
				List: []model.SourceSpec{
					{ID: "bbc", Kind: model.KindNews, Target: "https://feeds.example.com/bbc.xml"},
					{ID: "rates", Kind: model.KindAlert, Target: "interest rates"},
					{ID: "london", Kind: model.KindWeather, Target: "51.5,-0.12"},
					{ID: "aapl", Kind: model.KindMarket, Target: "AAPL"},
					{ID: "broken", Kind: model.KindMarket, Target: "$$$"},
				},
			},
			Summarization: model.SummarizationConfig{Enabled: true, TokenBudget: 1000, RetryDelay: time.Millisecond},
			Delivery:      model.DeliveryConfig{Destinations: []string{"capture"}, Timeout: time.Second},
			Database:      model.DatabaseConfig{Enabled: true, SeenRetention: 24 * time.Hour},
		},
		registry: domainservice.NewRegistry(),
		sink:     &capturingSink{},
		repo:     database.NewSQLiteBriefingRepository(db),
		metrics:  middleware.NewMetricsCollector(),
	}

	f.registry.Register(model.KindNews, domainservice.SourceAdapterFunc(func(context.Context, string, model.FetchConstraints) ([]model.RawItem, error) {
		return []model.RawItem{
			{Title: "Markets rally", Body: "Stocks up", Timestamp: runTime.Add(-time.Hour)},
			{Title: "Rain expected", Body: "Bring umbrella", Timestamp: runTime.Add(-2 * time.Hour)},
		}, nil
	}))
	f.registry.Register(model.KindAlert, domainservice.SourceAdapterFunc(func(_ context.Context, _ string, c model.FetchConstraints) ([]model.RawItem, error) {
		f.alertSince = c.Since
		return []model.RawItem{{Title: "Central bank holds rates", Timestamp: runTime.Add(-30 * time.Minute)}}, nil
	}))
	f.registry.Register(model.KindWeather, domainservice.SourceAdapterFunc(func(context.Context, string, model.FetchConstraints) ([]model.RawItem, error) {
		return nil, model.Permanent(errors.New("weather api key rejected"))
	}))
	f.registry.Register(model.KindMarket, domainservice.SourceAdapterFunc(func(context.Context, string, model.FetchConstraints) ([]model.RawItem, error) {
		return []model.RawItem{{Title: "AAPL 190.00 USD (+1.00%)", Timestamp: runTime}}, nil
	}))
	f.completer = completerFunc(func(_ context.Context, _ string, budget int) (string, error) {
		f.budget = budget
		return "今日要点：市场上涨。", nil
	})
	return f
}

func (f *fixture) service() BriefingService {
	dispatcher := pipeline.NewDeliveryDispatcher(f.cfg.Delivery.Timeout, f.metrics)
	dispatcher.Register("capture", f.sink)
	return NewBriefingService(f.cfg, Dependencies{
		Registry:   f.registry,
		Completer:  f.completer,
		Dispatcher: dispatcher,
		Seen:       domainservice.NewSeenService(f.repo, f.cfg.Database.SeenRetention),
		History:    f.repo,
		Metrics:    f.metrics,
		Now:        func() time.Time { return runTime },
	})
}

func TestBriefingRunEndToEnd(t *testing.T) {
	f := newFixture(t)

	briefing, err := f.service().Run(context.Background(), model.RunProfile{Name: "morning"})
	require.NoError(t, err)

	digest := briefing.Digest
	require.Equal(t, []string{"broken", "london"}, digest.FailedSources)
	require.Equal(t, []string{"aapl", "bbc", "rates"}, digest.ContributingSources)
	require.Len(t, briefing.Results, 5)
	require.Equal(t, 4, digest.ItemCount())
	require.Equal(t, model.KindAlert, digest.Sections[0].Kind)
	require.Equal(t, model.KindNews, digest.Sections[1].Kind)
	require.Equal(t, model.KindMarket, digest.Sections[2].Kind)

	require.Equal(t, runTime.Add(-12*time.Hour), f.alertSince)
	require.Equal(t, 1000, f.budget)
	require.Equal(t, "今日要点：市场上涨。", briefing.Summary)
	require.False(t, briefing.Degraded)

	require.Len(t, f.sink.docs, 1)
	doc := f.sink.docs[0]
	require.Contains(t, doc.Body, "今日要点")
	require.Contains(t, doc.Body, "Markets rally")
	require.Contains(t, doc.Body, "- london:")
	require.Equal(t, "briefing-2024-05-01.md", doc.FileName)

	runs, err := f.repo.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, briefing.RunID, runs[0].ID)
	require.Equal(t, "morning", runs[0].Profile)
	require.Equal(t, 5, runs[0].Sources)
	require.Equal(t, 4, runs[0].Items)
	require.Equal(t, 1, runs[0].Delivered)

	report := f.metrics.GetReport()
	require.EqualValues(t, 2, report.FetchStats.Outcomes["failed"])
	require.EqualValues(t, 3, report.FetchStats.Outcomes["ok"])
}

func TestBriefingSecondRunSkipsDeliveredItems(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	_, err := svc.Run(context.Background(), model.RunProfile{})
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), model.RunProfile{})
	require.NoError(t, err)

	require.Zero(t, second.Digest.ItemCount())
	require.Contains(t, second.Digest.ContributingSources, "bbc")
	require.Len(t, f.sink.docs, 2)
	require.Contains(t, f.sink.docs[1].Body, "没有新的内容")
}

func TestBriefingDeliveryFailureKeepsItemsUnseen(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("disk full")

	briefing, err := f.service().Run(context.Background(), model.RunProfile{})
	require.ErrorIs(t, err, model.ErrAllDeliveriesFailed)
	require.NotNil(t, briefing)
	require.Equal(t, 4, briefing.Digest.ItemCount())

	keys, err := f.repo.SeenKeys(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, keys)

	runs, err := f.repo.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 1, runs[0].DeliveryFailed)
}

func TestBriefingSummarizationDegrades(t *testing.T) {
	f := newFixture(t)
	f.completer = completerFunc(func(context.Context, string, int) (string, error) {
		return "", model.ErrRateLimited
	})

	briefing, err := f.service().Run(context.Background(), model.RunProfile{})
	require.NoError(t, err)
	require.True(t, briefing.Degraded)
	require.Empty(t, briefing.Summary)
	require.Contains(t, briefing.Document.Body, "摘要服务不可用")
	require.Contains(t, briefing.Document.Body, "Markets rally")
}

func TestBriefingProfile(t *testing.T) {
	f := newFixture(t)
	noMarkets := false

	briefing, err := f.service().Run(context.Background(), model.RunProfile{
		Name:           "weekend",
		IncludeMarkets: &noMarkets,
		ShortSummary:   true,
	})
	require.NoError(t, err)
	require.Equal(t, 500, f.budget)
	_, hasMarket := briefing.Digest.Section(model.KindMarket)
	require.False(t, hasMarket)
	require.NotContains(t, briefing.Digest.FailedSources, "broken")
	require.Len(t, briefing.Results, 3)
}

func TestBriefingDuplicateSourceIDFailsRun(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sources.List = append(f.cfg.Sources.List, model.SourceSpec{ID: "bbc", Kind: model.KindNews, Target: "https://x.example.com/feed"})

	briefing, err := f.service().Run(context.Background(), model.RunProfile{})
	require.Error(t, err)
	require.Nil(t, briefing)
	require.Empty(t, f.sink.docs)
}
