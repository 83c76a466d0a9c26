// Package relevance scores postings against a user profile by semantic
// similarity of their embeddings.
package relevance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"jobmate/discovery-service/internal/clock"
	"jobmate/discovery-service/internal/embedding"
	"jobmate/discovery-service/internal/model"
)

// DefaultFloor is the minimum score a match must reach to be returned.
const DefaultFloor = 50

// maxPostingText bounds the text embedded per posting.
const maxPostingText = 8000

// ErrScoringUnavailable is returned when the embedding service fails.
// Callers may retry later; the failure must not be cached.
var ErrScoringUnavailable = errors.New("relevance: scoring temporarily unavailable")

// VectorCache stores posting vectors per (posting, model, content hash).
type VectorCache interface {
	LoadEmbeddings(ctx context.Context, modelName string, want map[string]string) (map[string][]float32, error)
	SaveEmbeddings(ctx context.Context, items []model.PostingEmbedding) error
}

// Scorer ranks postings for a profile. Scores are deterministic for a given
// (profile, posting, model).
type Scorer struct {
	embedder embedding.Embedder
	vectors  VectorCache
	floor    float64
	clock    clock.Clock
	log      *zap.Logger
}

// NewScorer returns a scorer. vectors may be nil to disable vector caching.
func NewScorer(e embedding.Embedder, vectors VectorCache, floor float64, clk clock.Clock, log *zap.Logger) *Scorer {
	return &Scorer{embedder: e, vectors: vectors, floor: floor, clock: clk, log: log.Named("relevance")}
}

// Floor returns the configured minimum score.
func (s *Scorer) Floor() float64 { return s.floor }

// Score returns the postings scoring at or above the floor, highest first,
// ties broken by posting id.
func (s *Scorer) Score(ctx context.Context, profile model.UserProfile, postings []model.Posting) ([]model.MatchResult, error) {
	profileText := ProfileText(profile)
	if profileText == "" {
		s.log.Info("profile has no scoring signals", zap.String("user_id", profile.UserID))
		return []model.MatchResult{}, nil
	}

	excl := NewExclusion(profile)
	kept := make([]model.Posting, 0, len(postings))
	for _, p := range postings {
		if out, term := excl.Excluded(p); out {
			s.log.Debug("posting excluded", zap.String("posting_id", p.ID), zap.String("term", term))
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return []model.MatchResult{}, nil
	}

	profileVec, err := s.embedder.Embed(ctx, profileText)
	if err != nil {
		return nil, fmt.Errorf("%w: embed profile: %v", ErrScoringUnavailable, err)
	}
	vectors, err := s.postingVectors(ctx, kept)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	results := make([]model.MatchResult, 0, len(kept))
	for _, p := range kept {
		score := Percent(Cosine(profileVec, vectors[p.ID]))
		if score < s.floor {
			continue
		}
		results = append(results, model.MatchResult{
			UserID:     profile.UserID,
			PostingID:  p.ID,
			Title:      p.Title,
			Company:    p.Company,
			Score:      score,
			Reasons:    Reasons(profile, excl, p, score),
			ComputedAt: now,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PostingID < results[j].PostingID
	})
	return results, nil
}

// postingVectors loads cached vectors and embeds only the misses. Cache
// errors degrade to a full re-embed.
func (s *Scorer) postingVectors(ctx context.Context, postings []model.Posting) (map[string][]float32, error) {
	modelName := s.embedder.Model()
	texts := make(map[string]string, len(postings))
	hashes := make(map[string]string, len(postings))
	for _, p := range postings {
		texts[p.ID] = PostingText(p)
		hashes[p.ID] = ContentHash(texts[p.ID])
	}

	vectors := make(map[string][]float32, len(postings))
	if s.vectors != nil {
		cached, err := s.vectors.LoadEmbeddings(ctx, modelName, hashes)
		if err != nil {
			s.log.Warn("load cached embeddings failed", zap.Error(err))
		}
		for id, v := range cached {
			vectors[id] = v
		}
	}

	var missIDs []string
	for _, p := range postings {
		if _, ok := vectors[p.ID]; !ok {
			missIDs = append(missIDs, p.ID)
		}
	}
	if len(missIDs) == 0 {
		return vectors, nil
	}

	batch := make([]string, len(missIDs))
	for i, id := range missIDs {
		batch[i] = texts[id]
	}
	embedded, err := s.embedder.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: embed postings: %v", ErrScoringUnavailable, err)
	}
	if len(embedded) != len(missIDs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d postings", ErrScoringUnavailable, len(embedded), len(missIDs))
	}

	fresh := make([]model.PostingEmbedding, len(missIDs))
	for i, id := range missIDs {
		vectors[id] = embedded[i]
		fresh[i] = model.PostingEmbedding{PostingID: id, Model: modelName, ContentHash: hashes[id], Vector: embedded[i]}
	}
	if s.vectors != nil {
		if err := s.vectors.SaveEmbeddings(ctx, fresh); err != nil {
			s.log.Warn("save embeddings failed", zap.Int("count", len(fresh)), zap.Error(err))
		}
	}
	s.log.Debug("embedded postings", zap.Int("misses", len(missIDs)), zap.Int("cached", len(postings)-len(missIDs)))
	return vectors, nil
}

// ProfileText renders the profile signals embedded for matching.
func ProfileText(p model.UserProfile) string {
	var lines []string
	add := func(label string, values ...string) {
		var kept []string
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			lines = append(lines, label+": "+strings.Join(kept, ", "))
		}
	}
	add("Target roles", p.TargetTitles()...)
	add("Seniority", p.Seniority)
	add("Technical skills", p.TechnicalSkills...)
	add("Tools", p.ToolSkills...)
	add("Soft skills", p.SoftSkills...)
	add("Industries", p.Industries...)
	add("Work mode", string(p.WorkMode))
	add("Experience", p.ExperienceSummary)
	return strings.Join(lines, "\n")
}

// PostingText is the text embedded for a posting: title, company and
// description.
func PostingText(p model.Posting) string {
	text := strings.TrimSpace(p.Title + "\n" + p.Company + "\n" + p.Description)
	if len(text) > maxPostingText {
		cut := maxPostingText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// ContentHash identifies the embedded text of a posting.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

// Cosine returns the cosine similarity of a and b, or 0 when the vectors
// differ in length or one is zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Percent maps a cosine similarity onto [0, 100] with two decimals.
func Percent(cos float64) float64 {
	v := math.Max(0, math.Min(1, cos)) * 100
	return math.Round(v*100) / 100
}
