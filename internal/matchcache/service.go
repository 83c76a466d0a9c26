package matchcache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jobmate/discovery-service/internal/model"
)

// Store is the read side the match service needs.
type Store interface {
	CandidateVersion(ctx context.Context) (model.SetVersion, error)
	ListCandidates(ctx context.Context, limit int) ([]model.Posting, error)
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
}

// Scorer ranks candidate postings for a profile.
type Scorer interface {
	Score(ctx context.Context, profile model.UserProfile, postings []model.Posting) ([]model.MatchResult, error)
}

// Service serves a user's ranked matches through the cache.
type Service struct {
	cache  *Cache
	store  Store
	scorer Scorer
	limit  int
	log    *zap.Logger
}

// NewService wires the cache to the store and scorer. limit caps the
// candidates scored per computation; zero means no cap.
func NewService(cache *Cache, s Store, scorer Scorer, limit int, log *zap.Logger) *Service {
	return &Service{cache: cache, store: s, scorer: scorer, limit: limit, log: log.Named("matches")}
}

// Matches returns userID's ranked matches for the current candidate set.
// Scoring failures are returned, never an empty list in their place.
func (s *Service) Matches(ctx context.Context, userID string) ([]model.MatchResult, error) {
	version, err := s.store.CandidateVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("candidate version: %w", err)
	}
	return s.cache.GetOrCompute(ctx, userID, version, func(ctx context.Context) ([]model.MatchResult, error) {
		profile, err := s.store.GetProfile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get profile %s: %w", userID, err)
		}
		postings, err := s.store.ListCandidates(ctx, s.limit)
		if err != nil {
			return nil, fmt.Errorf("list candidates: %w", err)
		}
		matches, err := s.scorer.Score(ctx, *profile, postings)
		if err != nil {
			return nil, err
		}
		s.log.Info("matches computed",
			zap.String("user_id", userID),
			zap.Int("candidates", len(postings)),
			zap.Int("matches", len(matches)))
		return matches, nil
	})
}

// InvalidatePostings drops cached entries that reference ids.
func (s *Service) InvalidatePostings(ctx context.Context, ids []string) error {
	return s.cache.InvalidatePostings(ctx, ids)
}
