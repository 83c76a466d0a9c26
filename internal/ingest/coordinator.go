// Package ingest runs ingestion: it fans a query out to the selected source
// adapters, normalizes what they return and hands every posting to the
// deduplication engine, one at a time, in the order it was received.
package ingest

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmate/discovery-service/internal/clock"
	"jobmate/discovery-service/internal/dedup"
	"jobmate/discovery-service/internal/events"
	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/scraper"
)

// Resolver applies one dedup decision.
type Resolver interface {
	Resolve(ctx context.Context, candidate model.Posting, now time.Time) (model.Decision, error)
}

// Options bound one run.
type Options struct {
	Concurrency   int           // adapters fetched at once
	SourceTimeout time.Duration // per fetch attempt
	MaxPostings   int           // postings handed to dedup per run
}

// DefaultOptions mirror the configuration defaults.
var DefaultOptions = Options{Concurrency: 4, SourceTimeout: 45 * time.Second, MaxPostings: 1000}

// Coordinator executes ingestion runs. Runs may overlap; each posting write
// is its own transaction in the store.
type Coordinator struct {
	registry *scraper.Registry
	dedup    Resolver
	events   events.Publisher
	clock    clock.Clock
	opts     Options
	log      *zap.Logger
}

// New returns a coordinator. Zero option fields take DefaultOptions values;
// pub defaults to events.Nop.
func New(reg *scraper.Registry, r Resolver, pub events.Publisher, clk clock.Clock, opts Options, log *zap.Logger) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions.Concurrency
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultOptions.SourceTimeout
	}
	if opts.MaxPostings <= 0 {
		opts.MaxPostings = DefaultOptions.MaxPostings
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Coordinator{registry: reg, dedup: r, events: pub, clock: clk, opts: opts, log: log.Named("ingest")}
}

// Sources lists the registered source tags.
func (c *Coordinator) Sources() []model.Source { return c.registry.Sources() }

type fetched struct {
	adapter  scraper.Adapter
	raws     []model.RawPosting
	err      error
	attempts int
}

// Validate reports ErrUnknownSource for sources that are not registered.
func (c *Coordinator) Validate(sources []model.Source) error {
	_, err := c.registry.Select(sources)
	return err
}

// Run ingests q from sources (every registered source when empty). Source
// failures are recorded in the report and never fail the run; only an
// unknown source or cancellation returns an error. Postings committed before
// cancellation stay committed.
func (c *Coordinator) Run(ctx context.Context, sources []model.Source, q model.Query) (model.IngestionReport, error) {
	adapters, err := c.registry.Select(sources)
	if err != nil {
		return model.IngestionReport{}, err
	}

	report := model.IngestionReport{RunID: uuid.NewString(), StartedAt: c.clock.Now(), FailedSources: []model.Source{}}
	log := c.log.With(zap.String("run_id", report.RunID))
	log.Info("ingestion started",
		zap.String("keywords", q.Keywords),
		zap.String("location", q.Location),
		zap.Int("sources", len(adapters)))

	results := make(chan fetched)
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	go func() {
		for _, a := range adapters {
			a := a
			g.Go(func() error {
				results <- c.fetch(ctx, a, q, log)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	limit := c.opts.MaxPostings
	if q.Budget > 0 && q.Budget < limit {
		limit = q.Budget
	}
	for res := range results {
		if res.err != nil {
			c.recordFailure(&report, res, log)
		}
		c.ingest(ctx, res, limit, &report, log)
	}

	sort.Slice(report.FailedSources, func(i, j int) bool { return report.FailedSources[i] < report.FailedSources[j] })
	sort.Slice(report.SourceFailures, func(i, j int) bool { return report.SourceFailures[i].Source < report.SourceFailures[j].Source })
	report.FinishedAt = c.clock.Now()

	log.Info("ingestion finished",
		zap.Int("found", report.Found),
		zap.Int("processed", report.Processed),
		zap.Int("stored", report.Stored),
		zap.Int("updated", report.Updated),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed_writes", report.FailedWrites),
		zap.Int("rejected", report.Rejected),
		zap.Int("capped", report.Capped),
		zap.Any("failed_sources", report.FailedSources))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	c.publish(ctx, report, log)
	return report, nil
}

// fetch calls one adapter with its own timeout per attempt and retries a
// transient failure once.
func (c *Coordinator) fetch(ctx context.Context, a scraper.Adapter, q model.Query, log *zap.Logger) fetched {
	res := fetched{adapter: a}
	for res.attempts < 2 {
		res.attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.SourceTimeout)
		raws, err := a.Fetch(attemptCtx, q)
		cancel()
		res.raws, res.err = raws, err
		if err == nil || ctx.Err() != nil || scraper.KindOf(err) != scraper.KindTransient {
			break
		}
		if res.attempts < 2 {
			log.Warn("transient source failure, retrying",
				zap.String("source", string(a.Source())), zap.Error(err))
		}
	}
	return res
}

func (c *Coordinator) recordFailure(report *model.IngestionReport, res fetched, log *zap.Logger) {
	src := res.adapter.Source()
	kind := scraper.KindOf(res.err)
	report.FailedSources = append(report.FailedSources, src)
	report.SourceFailures = append(report.SourceFailures, model.SourceFailure{
		Source:   src,
		Kind:     string(kind),
		Attempts: res.attempts,
		Error:    res.err.Error(),
	})
	log.Warn("source skipped",
		zap.String("source", string(src)),
		zap.String("kind", string(kind)),
		zap.Int("attempts", res.attempts),
		zap.Int("partial", len(res.raws)),
		zap.Error(res.err))
}

func (c *Coordinator) ingest(ctx context.Context, res fetched, limit int, report *model.IngestionReport, log *zap.Logger) {
	report.Found += len(res.raws)
	for _, raw := range res.raws {
		if ctx.Err() != nil {
			return
		}
		if report.Processed >= limit {
			report.Capped++
			continue
		}
		report.Processed++

		now := c.clock.Now()
		posting := res.adapter.Normalize(raw, now)
		d, err := c.dedup.Resolve(ctx, posting, now)
		switch {
		case errors.Is(err, dedup.ErrInvalidCandidate):
			report.Rejected++
			continue
		case err != nil:
			report.FailedWrites++
			log.Warn("posting write failed",
				zap.String("source", string(raw.Source)),
				zap.String("url", posting.CanonicalURL),
				zap.Error(err))
			continue
		}
		switch d.Kind {
		case model.DecisionNew:
			report.Stored++
		case model.DecisionUpdate:
			report.Updated++
		case model.DecisionDuplicate:
			report.Duplicates++
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, report model.IngestionReport, log *zap.Logger) {
	err := c.events.Publish(ctx, events.PostingsIngested, map[string]any{
		"runId":         report.RunID,
		"stored":        report.Stored,
		"updated":       report.Updated,
		"duplicates":    report.Duplicates,
		"failedSources": report.FailedSources,
	})
	if err != nil {
		log.Warn("publish "+events.PostingsIngested+" failed", zap.Error(err))
	}
}
