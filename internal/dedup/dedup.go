// Package dedup decides whether a normalized posting is new, an update of a
// stored posting, or a duplicate of one.
//
// Two tiers are checked in order. The URL tier matches on canonical URL and
// refreshes the stored row. The fuzzy tier matches on the normalized
// (title, company, location) key of postings first seen inside the window
// and only records the re-sighting. Distinct openings that share a fuzzy
// key inside the window are merged; that is accepted.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/store"
)

// DefaultWindow is the fuzzy-tier look-back.
const DefaultWindow = 30 * 24 * time.Hour

// ErrInvalidCandidate is returned for postings without a title.
var ErrInvalidCandidate = errors.New("dedup: candidate has no title")

// Store is the posting persistence the engine needs.
type Store interface {
	FindByURL(ctx context.Context, url string) (*model.Posting, error)
	FindFuzzy(ctx context.Context, key model.FuzzyKey, since time.Time) (*model.Posting, error)
	InsertPosting(ctx context.Context, p *model.Posting, window time.Duration) (string, error)
	UpdatePosting(ctx context.Context, p *model.Posting, window time.Duration) error
	TouchPosting(ctx context.Context, id string, seenAt time.Time) error
}

// Engine resolves candidates against the store. It is safe for concurrent
// use; the store re-checks both tiers on insert.
type Engine struct {
	store  Store
	window time.Duration
	log    *zap.Logger
}

// New returns an engine with the given fuzzy window. A non-positive window
// selects DefaultWindow.
func New(s Store, window time.Duration, log *zap.Logger) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{store: s, window: window, log: log.Named("dedup")}
}

// Window returns the fuzzy-tier look-back in use.
func (e *Engine) Window() time.Duration { return e.window }

// Resolve classifies candidate as seen at now and applies the decision:
// NEW inserts, UPDATE replaces descriptive fields and advances last_seen_at,
// DUPLICATE only advances last_seen_at of the matched posting.
//
// When the insert loses a race against a concurrent writer the store
// reports a conflict and the candidate is resolved once more.
func (e *Engine) Resolve(ctx context.Context, candidate model.Posting, now time.Time) (model.Decision, error) {
	if candidate.Title == "" {
		return model.Decision{}, ErrInvalidCandidate
	}
	candidate.FirstSeenAt = now
	candidate.LastSeenAt = now

	for attempt := 0; ; attempt++ {
		d, err := e.resolve(ctx, candidate, now)
		if errors.Is(err, store.ErrConflict) && attempt == 0 {
			e.log.Debug("insert conflict, re-resolving",
				zap.String("url", candidate.CanonicalURL),
				zap.String("key", candidate.FuzzyKey().String()))
			continue
		}
		return d, err
	}
}

func (e *Engine) resolve(ctx context.Context, c model.Posting, now time.Time) (model.Decision, error) {
	if c.CanonicalURL != "" {
		existing, err := e.store.FindByURL(ctx, c.CanonicalURL)
		switch {
		case err == nil:
			c.ID = existing.ID
			c.FirstSeenAt = existing.FirstSeenAt
			if err := e.store.UpdatePosting(ctx, &c, e.window); err != nil {
				return model.Decision{}, fmt.Errorf("update posting %s: %w", existing.ID, err)
			}
			return model.Decision{Kind: model.DecisionUpdate, PostingID: existing.ID}, nil
		case !errors.Is(err, store.ErrNotFound):
			return model.Decision{}, fmt.Errorf("find by url: %w", err)
		}
	}

	existing, err := e.store.FindFuzzy(ctx, c.FuzzyKey(), now.Add(-e.window))
	switch {
	case err == nil:
		if err := e.store.TouchPosting(ctx, existing.ID, now); err != nil {
			return model.Decision{}, fmt.Errorf("touch posting %s: %w", existing.ID, err)
		}
		return model.Decision{Kind: model.DecisionDuplicate, PostingID: existing.ID}, nil
	case !errors.Is(err, store.ErrNotFound):
		return model.Decision{}, fmt.Errorf("find fuzzy: %w", err)
	}

	if c.PostedAt == nil {
		posted := now
		c.PostedAt = &posted
	}
	id, err := e.store.InsertPosting(ctx, &c, e.window)
	if err != nil {
		return model.Decision{}, fmt.Errorf("insert posting: %w", err)
	}
	return model.Decision{Kind: model.DecisionNew, PostingID: id}, nil
}
