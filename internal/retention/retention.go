// Package retention retires postings that have not been re-sighted within
// the staleness threshold. A posting referenced by any application is never
// deleted, and a failed reference check retains the posting.
package retention

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobmate/discovery-service/internal/events"
	"jobmate/discovery-service/internal/model"
)

// DefaultBatchSize is the number of stale postings read per page.
const DefaultBatchSize = 200

// Store is the posting and reference access a sweep needs.
type Store interface {
	ListStale(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]model.Posting, error)
	HasApplication(ctx context.Context, postingID string) (bool, error)
	DeleteStalePosting(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

// Invalidator drops cached matches that reference deleted postings.
type Invalidator interface {
	InvalidatePostings(ctx context.Context, ids []string) error
}

// Engine runs retention sweeps.
type Engine struct {
	store     Store
	cache     Invalidator
	events    events.Publisher
	batchSize int
	log       *zap.Logger
}

// New returns an engine. cache may be nil; pub defaults to events.Nop.
func New(s Store, cache Invalidator, pub events.Publisher, batchSize int, log *zap.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{store: s, cache: cache, events: pub, batchSize: batchSize, log: log.Named("retention")}
}

// Sweep deletes every unreferenced posting last seen before now-staleAfter.
// Postings are scanned in id order, one page at a time. Each delete
// re-checks staleness and references in the store, so a posting re-sighted
// or applied to mid-sweep survives.
//
// A scan error stops the sweep; deletions already committed stay committed
// and are reported.
func (e *Engine) Sweep(ctx context.Context, staleAfter time.Duration, now time.Time) (model.RetentionReport, error) {
	started := time.Now()
	cutoff := now.Add(-staleAfter)
	report := model.RetentionReport{StartedAt: now, Cutoff: cutoff}
	log := e.log.With(zap.Time("cutoff", cutoff))

	err := e.scan(ctx, cutoff, &report)
	if len(report.DeletedIDs) > 0 {
		e.retire(ctx, report)
	}
	report.FinishedAt = now.Add(time.Since(started))

	fields := []zap.Field{
		zap.Int("scanned", report.Scanned),
		zap.Int("deleted", report.Deleted),
		zap.Int("retained_due_to_reference", report.RetainedDueToReference),
		zap.Int("check_errors", report.CheckErrors),
		zap.Int("delete_errors", report.DeleteErrors),
	}
	if err != nil {
		log.Error("retention sweep aborted", append(fields, zap.Error(err))...)
		return report, err
	}
	log.Info("retention sweep complete", fields...)
	return report, nil
}

func (e *Engine) scan(ctx context.Context, cutoff time.Time, report *model.RetentionReport) error {
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := e.store.ListStale(ctx, cutoff, afterID, e.batchSize)
		if err != nil {
			return fmt.Errorf("list stale postings: %w", err)
		}
		for _, p := range batch {
			afterID = p.ID
			report.Scanned++
			e.consider(ctx, p, cutoff, report)
		}
		if len(batch) < e.batchSize {
			return nil
		}
	}
}

func (e *Engine) consider(ctx context.Context, p model.Posting, cutoff time.Time, report *model.RetentionReport) {
	log := e.log.With(zap.String("posting_id", p.ID))

	referenced, err := e.store.HasApplication(ctx, p.ID)
	if err != nil {
		report.CheckErrors++
		log.Warn("reference check failed, retaining", zap.Error(err))
		return
	}
	if referenced {
		report.RetainedDueToReference++
		log.Debug("retained: referenced by an application")
		return
	}

	deleted, err := e.store.DeleteStalePosting(ctx, p.ID, cutoff)
	if err != nil {
		report.DeleteErrors++
		log.Warn("delete posting failed", zap.Error(err))
		return
	}
	if !deleted {
		log.Debug("posting no longer eligible")
		return
	}
	report.Deleted++
	report.DeletedIDs = append(report.DeletedIDs, p.ID)
}

func (e *Engine) retire(ctx context.Context, report model.RetentionReport) {
	if e.cache != nil {
		if err := e.cache.InvalidatePostings(ctx, report.DeletedIDs); err != nil {
			e.log.Warn("invalidate cached matches failed", zap.Error(err))
		}
	}
	err := e.events.Publish(ctx, events.PostingsRetired, map[string]any{
		"postingIds": report.DeletedIDs,
		"deleted":    report.Deleted,
		"cutoff":     report.Cutoff,
	})
	if err != nil {
		e.log.Warn("publish "+events.PostingsRetired+" failed", zap.Error(err))
	}
}
