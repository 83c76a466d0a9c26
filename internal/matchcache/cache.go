// Package matchcache caches ranked match lists per user and candidate-set
// version. The version is part of the key, so any insert, re-sighting or
// deletion of a posting makes earlier entries unreachable; they then age out
// with their TTL. Entries referencing retired postings are also removed
// eagerly through InvalidatePostings.
package matchcache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"jobmate/discovery-service/internal/clock"
	"jobmate/discovery-service/internal/model"
)

// DefaultTTL bounds how long a computed match list is served.
const DefaultTTL = time.Hour

// Backend stores cache entries. Get returns (nil, nil) on a miss.
type Backend interface {
	Get(ctx context.Context, key string) (*model.CacheEntry, error)
	Set(ctx context.Context, entry model.CacheEntry, ttl time.Duration) error
	InvalidatePostings(ctx context.Context, postingIDs []string) (int, error)
}

// ComputeFunc produces the match list on a miss.
type ComputeFunc func(ctx context.Context) ([]model.MatchResult, error)

// Cache coalesces concurrent misses per key and never stores failures.
type Cache struct {
	backend Backend
	ttl     time.Duration
	clock   clock.Clock
	group   singleflight.Group
	log     *zap.Logger
}

// New returns a cache over backend. A non-positive ttl selects DefaultTTL.
func New(backend Backend, ttl time.Duration, clk clock.Clock, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{backend: backend, ttl: ttl, clock: clk, log: log.Named("matchcache")}
}

// Key is the cache key of userID's matches at version.
func Key(userID string, version model.SetVersion) string {
	return "matches:" + userID + ":" + version.String()
}

// GetOrCompute returns the cached list for (userID, version) or computes,
// stores and returns it. Backend errors degrade to computing without the
// cache; compute errors are returned as is and nothing is stored.
func (c *Cache) GetOrCompute(ctx context.Context, userID string, version model.SetVersion, compute ComputeFunc) ([]model.MatchResult, error) {
	key := Key(userID, version)
	log := c.log.With(zap.String("key", key))

	entry, err := c.backend.Get(ctx, key)
	if err != nil {
		log.Warn("cache read failed, computing", zap.Error(err))
	}
	if entry != nil {
		log.Debug("cache hit", zap.Int("matches", len(entry.Matches)))
		return entry.Matches, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		matches, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			matches = []model.MatchResult{}
		}
		e := model.CacheEntry{Key: key, Matches: matches, ExpiresAt: c.clock.Now().Add(c.ttl)}
		if err := c.backend.Set(ctx, e, c.ttl); err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
		return matches, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("cache miss coalesced")
	}
	return v.([]model.MatchResult), nil
}

// InvalidatePostings removes every entry referencing one of ids.
func (c *Cache) InvalidatePostings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := c.backend.InvalidatePostings(ctx, ids)
	if err != nil {
		return fmt.Errorf("invalidate %d postings: %w", len(ids), err)
	}
	c.log.Debug("cache entries invalidated", zap.Int("postings", len(ids)), zap.Int("entries", n))
	return nil
}
