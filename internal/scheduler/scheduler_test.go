package scheduler_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/clock"
	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/scheduler"
	"jobmate/discovery-service/internal/scraper"
	"jobmate/discovery-service/internal/store"
	"jobmate/discovery-service/internal/testutil"
)

type fakeIngester struct {
	mu        sync.Mutex
	queries   []model.Query
	sources   [][]model.Source
	failing   []model.Source
	err       error
	processed int           // postings processed per run
	hold      chan struct{} // when set, Run blocks until it is closed
	started   chan struct{}
}

func (f *fakeIngester) Validate(sources []model.Source) error {
	for _, s := range sources {
		if s == "gamma" {
			return fmt.Errorf("%w %q", scraper.ErrUnknownSource, s)
		}
	}
	return nil
}

func (f *fakeIngester) Run(_ context.Context, sources []model.Source, q model.Query) (model.IngestionReport, error) {
	if f.hold != nil {
		f.started <- struct{}{}
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.sources = append(f.sources, sources)
	processed := f.processed
	if q.Budget > 0 && q.Budget < processed {
		processed = q.Budget
	}
	report := model.IngestionReport{Stored: 1, Processed: processed, FailedSources: f.failing}
	for _, s := range f.failing {
		report.SourceFailures = append(report.SourceFailures, model.SourceFailure{Source: s, Kind: "transient"})
	}
	return report, f.err
}

func (f *fakeIngester) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeSweeper struct {
	staleAfter time.Duration
	now        time.Time
}

func (f *fakeSweeper) Sweep(_ context.Context, staleAfter time.Duration, now time.Time) (model.RetentionReport, error) {
	f.staleAfter, f.now = staleAfter, now
	return model.RetentionReport{Deleted: 3}, nil
}

var opts = scheduler.Options{
	IngestSpec:    "0 2 * * *",
	RetentionSpec: "0 14 * * *",
	StaleAfter:    7 * 24 * time.Hour,
	MaxResults:    50,
	DefaultQuery:  model.Query{Keywords: "software engineer"},
}

func TestTriggerIngestion_QueriesFromConfigs(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddSearchConfig(model.SearchConfig{UserID: "u1", JobTitles: []string{"Go Developer", "SRE"}, Locations: []string{"Paris", "Lyon"}})
	s.AddSearchConfig(model.SearchConfig{UserID: "u2", JobTitles: []string{"go developer"}, Locations: []string{"paris"}})
	ing := &fakeIngester{}
	sch := scheduler.New(ing, &fakeSweeper{}, s, clock.NewFixed(testutil.Day(3)), opts, zap.NewNop())

	report, err := sch.TriggerIngestion(context.Background(), nil, model.Query{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Stored)
	assert.Equal(t, []model.Query{
		{Keywords: "Go Developer", Location: "Paris", MaxResults: 50},
		{Keywords: "Go Developer", Location: "Lyon", MaxResults: 50},
		{Keywords: "SRE", Location: "Paris", MaxResults: 50},
		{Keywords: "SRE", Location: "Lyon", MaxResults: 50},
	}, ing.queries)
}

func TestTriggerIngestion_DefaultQuery(t *testing.T) {
	ing := &fakeIngester{}
	sch := scheduler.New(ing, &fakeSweeper{}, store.NewMemoryStore(), clock.NewFixed(testutil.Day(3)), opts, zap.NewNop())

	_, err := sch.TriggerIngestion(context.Background(), []model.Source{"adzuna"}, model.Query{})
	require.NoError(t, err)
	assert.Equal(t, []model.Query{{Keywords: "software engineer", MaxResults: 50}}, ing.queries)
	assert.Equal(t, [][]model.Source{{"adzuna"}}, ing.sources)
}

func TestTriggerIngestion_ExplicitQuery(t *testing.T) {
	ing := &fakeIngester{}
	sch := scheduler.New(ing, &fakeSweeper{}, nil, clock.NewFixed(testutil.Day(3)), opts, zap.NewNop())

	_, err := sch.TriggerIngestion(context.Background(), nil, model.Query{Keywords: "rust", Location: "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, []model.Query{{Keywords: "rust", Location: "Berlin", MaxResults: 50}}, ing.queries)
	assert.Equal(t, 1, sch.Status().Ingestion.Runs)
}

func TestTriggerIngestion_OverridesDerivedQueries(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddSearchConfig(model.SearchConfig{UserID: "u1", JobTitles: []string{"Go Developer", "SRE"}, Locations: []string{"Paris", "Lyon"}})
	ing := &fakeIngester{}
	sch := scheduler.New(ing, &fakeSweeper{}, s, clock.NewFixed(testutil.Day(3)), opts, zap.NewNop())

	_, err := sch.TriggerIngestion(context.Background(), nil, model.Query{Location: "Berlin", MaxResults: 10})
	require.NoError(t, err)
	assert.Equal(t, []model.Query{
		{Keywords: "Go Developer", Location: "Berlin", MaxResults: 10},
		{Keywords: "SRE", Location: "Berlin", MaxResults: 10},
	}, ing.queries)
}

func TestTriggerIngestion_UnknownSource(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddSearchConfig(model.SearchConfig{UserID: "u1", JobTitles: []string{"Go Developer", "SRE"}})
	ing := &fakeIngester{}
	sch := scheduler.New(ing, &fakeSweeper{}, s, clock.NewFixed(testutil.Day(3)), opts, zap.NewNop())

	_, err := sch.TriggerIngestion(context.Background(), []model.Source{"gamma"}, model.Query{})
	assert.ErrorIs(t, err, scraper.ErrUnknownSource)
	assert.Zero(t, ing.calls(), "sources are checked once, before any query runs")
}

func TestTriggerIngestion_KeepsWrappedErrors(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddSearchConfig(model.SearchConfig{UserID: "u1", JobTitles: []string{"Go Developer", "SRE"}})
	ing := &fakeIngester{err: fmt.Errorf("%w %q", scraper.ErrUnknownSource, "gamma")}
	sch := scheduler.New(ing, &fakeSweeper{}, s, clock.NewFixed(testutil.Day(3)), opts, zap.NewNop())

	_, err := sch.TriggerIngestion(context.Background(), nil, model.Query{})
	require.Error(t, err)
	assert.ErrorIs(t, err, scraper.ErrUnknownSource)
	assert.Equal(t, 2, ing.calls())
}

func TestTriggerIngestion_CycleBudget(t *testing.T) {
	s := store.NewMemoryStore()
	s.AddSearchConfig(model.SearchConfig{UserID: "u1", JobTitles: []string{"Go Developer", "SRE", "Data Engineer"}})
	o := opts
	o.MaxPostings = 10
	ing := &fakeIngester{processed: 6}
	sch := scheduler.New(ing, &fakeSweeper{}, s, clock.NewFixed(testutil.Day(3)), o, zap.NewNop())

	report, err := sch.TriggerIngestion(context.Background(), nil, model.Query{})
	require.NoError(t, err)
	assert.Equal(t, 10, report.Processed)
	require.Len(t, ing.queries, 2, "the third query runs after the budget is spent")
	assert.Equal(t, 10, ing.queries[0].Budget)
	assert.Equal(t, 4, ing.queries[1].Budget)
}

func TestStatus_RunningCountsOverlappingRuns(t *testing.T) {
	ing := &fakeIngester{hold: make(chan struct{}), started: make(chan struct{}, 2)}
	sch := scheduler.New(ing, &fakeSweeper{}, nil, clock.NewFixed(testutil.Day(3)), opts, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = sch.TriggerIngestion(context.Background(), nil, model.Query{})
		}()
	}
	<-ing.started
	<-ing.started
	assert.Equal(t, 2, sch.Status().Ingestion.Running)

	close(ing.hold)
	wg.Wait()
	st := sch.Status()
	assert.Zero(t, st.Ingestion.Running)
	assert.Equal(t, 2, st.Ingestion.Runs)
}

func TestStatus(t *testing.T) {
	clk := clock.NewFixed(testutil.Day(3))
	ing := &fakeIngester{failing: []model.Source{"headhunter"}}
	sw := &fakeSweeper{}
	sch := scheduler.New(ing, sw, nil, clk, opts, zap.NewNop())
	ctx := context.Background()

	_, err := sch.TriggerIngestion(ctx, nil, model.Query{})
	require.NoError(t, err)
	clk.Advance(time.Hour)
	ing.err = assert.AnError
	_, err = sch.TriggerIngestion(ctx, nil, model.Query{})
	assert.ErrorContains(t, err, assert.AnError.Error())

	_, err = sch.TriggerSweep(ctx, 0)
	require.NoError(t, err)

	st := sch.Status()
	assert.Equal(t, 2, st.Ingestion.Runs)
	assert.Equal(t, testutil.Day(3).Add(time.Hour), st.Ingestion.LastRun)
	assert.Contains(t, st.Ingestion.LastError, assert.AnError.Error())
	assert.Zero(t, st.Ingestion.Running)
	assert.Equal(t, map[model.Source]int{"headhunter": 2}, st.SourceFailures)

	assert.Equal(t, 1, st.Retention.Runs)
	assert.Empty(t, st.Retention.LastError)
	assert.Equal(t, model.RetentionReport{Deleted: 3}, st.Retention.LastResult)
}

func TestTriggerSweep_UsesClock(t *testing.T) {
	sw := &fakeSweeper{}
	sch := scheduler.New(&fakeIngester{}, sw, nil, clock.NewFixed(testutil.Day(10)), opts, zap.NewNop())

	_, err := sch.TriggerSweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, testutil.Day(10), sw.now)
	assert.Equal(t, opts.StaleAfter, sw.staleAfter)

	_, err = sch.TriggerSweep(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, sw.staleAfter)
}

func TestStart_InvalidSpec(t *testing.T) {
	bad := opts
	bad.RetentionSpec = "every tuesday"
	sch := scheduler.New(&fakeIngester{}, &fakeSweeper{}, nil, clock.Real{}, bad, zap.NewNop())
	assert.ErrorContains(t, sch.Start(context.Background()), "retention schedule")
}

func TestStart_RunOnStart(t *testing.T) {
	o := opts
	o.RunOnStart = true
	ing := &fakeIngester{}
	sch := scheduler.New(ing, &fakeSweeper{}, nil, clock.Real{}, o, zap.NewNop())

	require.NoError(t, sch.Start(context.Background()))
	assert.Eventually(t, func() bool { return ing.calls() == 1 }, time.Second, 10*time.Millisecond)
	sch.Stop()
}

func TestStart_FiresOnSchedule(t *testing.T) {
	o := opts
	o.IngestSpec = "@every 1s"
	ing := &fakeIngester{}
	sch := scheduler.New(ing, &fakeSweeper{}, nil, clock.Real{}, o, zap.NewNop())

	require.NoError(t, sch.Start(context.Background()))
	defer sch.Stop()
	assert.Eventually(t, func() bool { return ing.calls() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
