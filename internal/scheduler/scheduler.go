// Package scheduler runs ingestion and retention as two independent cron
// jobs. Manual triggers call the same entry points as the cron jobs. The
// two jobs never wait on each other; a job whose previous run is still in
// progress skips its tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/clock"
	"jobmate/discovery-service/internal/model"
)

// Ingester runs one ingestion for a query. Validate rejects unknown
// sources before any query runs.
type Ingester interface {
	Validate(sources []model.Source) error
	Run(ctx context.Context, sources []model.Source, q model.Query) (model.IngestionReport, error)
}

// Sweeper runs one retention sweep.
type Sweeper interface {
	Sweep(ctx context.Context, staleAfter time.Duration, now time.Time) (model.RetentionReport, error)
}

// ConfigLoader lists the active search configs queries are derived from.
type ConfigLoader interface {
	LoadActiveConfigs(ctx context.Context) ([]model.SearchConfig, error)
}

// Options configure both jobs.
type Options struct {
	IngestSpec    string // cron spec, e.g. "0 2 * * *"
	RetentionSpec string
	RunOnStart    bool // run one ingestion as soon as Start is called
	StaleAfter    time.Duration
	MaxResults    int
	MaxPostings   int         // per cycle across all queries; 0 leaves only the per-run cap
	DefaultQuery  model.Query // used when no search config is active
}

// JobStatus describes the runs of one job.
type JobStatus struct {
	Runs       int       `json:"runs"`
	Running    int       `json:"running"` // runs in progress, cron and manual
	LastRun    time.Time `json:"lastRun,omitempty"`
	LastResult any       `json:"lastResult,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

// Status is a snapshot of both jobs and the cumulative failures per source.
type Status struct {
	Ingestion      JobStatus            `json:"ingestion"`
	Retention      JobStatus            `json:"retention"`
	SourceFailures map[model.Source]int `json:"sourceFailures"`
}

// Scheduler wraps robfig/cron and records the outcome of every run.
type Scheduler struct {
	cron     *cron.Cron
	ingester Ingester
	sweeper  Sweeper
	configs  ConfigLoader
	clock    clock.Clock
	opts     Options
	log      *zap.Logger

	mu             sync.Mutex
	ingestion      JobStatus
	retention      JobStatus
	sourceFailures map[model.Source]int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a stopped scheduler. configs may be nil, in which case every
// scheduled ingestion uses the default query.
func New(ing Ingester, sw Sweeper, configs ConfigLoader, clk clock.Clock, opts Options, log *zap.Logger) *Scheduler {
	log = log.Named("scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		ingester:       ing,
		sweeper:        sw,
		configs:        configs,
		clock:          clk,
		opts:           opts,
		log:            log,
		sourceFailures: make(map[model.Source]int),
	}
}

// Start registers both jobs and starts the cron loop. Jobs run with a
// context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{log: s.log}

	ingest := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		_, _ = s.TriggerIngestion(runCtx, nil, model.Query{})
	}))
	if _, err := s.cron.AddJob(s.opts.IngestSpec, ingest); err != nil {
		cancel()
		return fmt.Errorf("ingestion schedule %q: %w", s.opts.IngestSpec, err)
	}
	sweep := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		_, _ = s.TriggerSweep(runCtx, 0)
	}))
	if _, err := s.cron.AddJob(s.opts.RetentionSpec, sweep); err != nil {
		cancel()
		return fmt.Errorf("retention schedule %q: %w", s.opts.RetentionSpec, err)
	}

	s.cancel = cancel
	s.cron.Start()
	s.log.Info("cron started",
		zap.String("ingestion", s.opts.IngestSpec),
		zap.String("retention", s.opts.RetentionSpec))

	if s.opts.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = s.TriggerIngestion(runCtx, nil, model.Query{})
		}()
	}
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("cron stopped")
}

// TriggerIngestion runs one ingestion cycle and merges the reports. With
// override.Keywords set the cycle runs that single query. Otherwise the
// queries come from the active search configs, and a non-empty
// override.Location or positive override.MaxResults replaces the value of
// every derived query. The cron job calls it with a zero override.
func (s *Scheduler) TriggerIngestion(ctx context.Context, sources []model.Source, override model.Query) (model.IngestionReport, error) {
	if err := s.ingester.Validate(sources); err != nil {
		return model.IngestionReport{FailedSources: []model.Source{}}, err
	}
	var queries []model.Query
	if override.Keywords != "" {
		q := override
		if q.MaxResults <= 0 {
			q.MaxResults = s.opts.MaxResults
		}
		queries = []model.Query{q}
	} else {
		queries = applyOverride(s.queries(ctx), override)
	}
	return s.runIngestion(ctx, sources, queries)
}

func (s *Scheduler) runIngestion(ctx context.Context, sources []model.Source, queries []model.Query) (model.IngestionReport, error) {
	s.begin(&s.ingestion)
	s.log.Info("ingestion cycle started", zap.Int("queries", len(queries)))

	merged := model.IngestionReport{FailedSources: []model.Source{}}
	var errs []error
	for i, q := range queries {
		if s.opts.MaxPostings > 0 {
			remaining := s.opts.MaxPostings - merged.Processed
			if remaining <= 0 {
				s.log.Info("cycle posting budget spent, skipping remaining queries",
					zap.Int("budget", s.opts.MaxPostings),
					zap.Int("skipped", len(queries)-i))
				break
			}
			q.Budget = remaining
		}
		report, err := s.ingester.Run(ctx, sources, q)
		if err != nil {
			s.log.Warn("ingestion failed", zap.String("keywords", q.Keywords), zap.String("location", q.Location), zap.Error(err))
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		merged.Merge(report)
	}

	var err error
	if len(errs) > 0 {
		err = fmt.Errorf("ingestion: %w", errors.Join(errs...))
	}
	s.mu.Lock()
	for _, f := range merged.SourceFailures {
		s.sourceFailures[f.Source]++
	}
	s.finishLocked(&s.ingestion, merged, err)
	s.mu.Unlock()

	s.log.Info("ingestion cycle complete",
		zap.Int("stored", merged.Stored),
		zap.Int("updated", merged.Updated),
		zap.Int("duplicates", merged.Duplicates),
		zap.Int("failed_writes", merged.FailedWrites))
	return merged, err
}

// TriggerSweep runs one retention sweep at the current clock time. A
// non-positive staleAfter uses the configured threshold.
func (s *Scheduler) TriggerSweep(ctx context.Context, staleAfter time.Duration) (model.RetentionReport, error) {
	if staleAfter <= 0 {
		staleAfter = s.opts.StaleAfter
	}
	s.begin(&s.retention)
	report, err := s.sweeper.Sweep(ctx, staleAfter, s.clock.Now())
	s.mu.Lock()
	s.finishLocked(&s.retention, report, err)
	s.mu.Unlock()
	return report, err
}

// Status returns a snapshot of both jobs.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := make(map[model.Source]int, len(s.sourceFailures))
	for k, v := range s.sourceFailures {
		failures[k] = v
	}
	return Status{Ingestion: s.ingestion, Retention: s.retention, SourceFailures: failures}
}

func (s *Scheduler) begin(job *JobStatus) {
	s.mu.Lock()
	job.Running++
	s.mu.Unlock()
}

func (s *Scheduler) finishLocked(job *JobStatus, result any, err error) {
	job.Running--
	job.Runs++
	job.LastRun = s.clock.Now()
	job.LastResult = result
	job.LastError = ""
	if err != nil {
		job.LastError = err.Error()
	}
}

// queries expands every active search config into (title × location)
// queries, dropping repeats. The default query is used when there are none
// or the configs cannot be loaded.
func (s *Scheduler) queries(ctx context.Context) []model.Query {
	def := s.opts.DefaultQuery
	if def.MaxResults <= 0 {
		def.MaxResults = s.opts.MaxResults
	}
	if s.configs == nil {
		return []model.Query{def}
	}
	configs, err := s.configs.LoadActiveConfigs(ctx)
	if err != nil {
		s.log.Warn("load search configs failed, using default query", zap.Error(err))
		return []model.Query{def}
	}

	var out []model.Query
	seen := make(map[string]bool)
	for _, c := range configs {
		for _, q := range c.Queries(s.opts.MaxResults) {
			k := strings.ToLower(q.Keywords) + "|" + strings.ToLower(q.Location)
			if q.Keywords == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return []model.Query{def}
	}
	return out
}

// applyOverride replaces the location and result limit of derived queries
// and drops the repeats that creates.
func applyOverride(queries []model.Query, override model.Query) []model.Query {
	if override.Location == "" && override.MaxResults <= 0 {
		return queries
	}
	out := make([]model.Query, 0, len(queries))
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		if override.Location != "" {
			q.Location = override.Location
		}
		if override.MaxResults > 0 {
			q.MaxResults = override.MaxResults
		}
		k := strings.ToLower(q.Keywords) + "|" + strings.ToLower(q.Location)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, q)
	}
	return out
}

// cronLogger routes robfig/cron's logging through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
