package model

import (
	"fmt"
	"time"
)

// DecisionKind is the outcome of deduplicating one candidate posting.
type DecisionKind string

const (
	DecisionNew       DecisionKind = "NEW"
	DecisionUpdate    DecisionKind = "UPDATE"
	DecisionDuplicate DecisionKind = "DUPLICATE"
)

// Decision carries the dedup outcome and the id of the stored row it
// resolved to (the inserted row for NEW).
type Decision struct {
	Kind      DecisionKind `json:"kind"`
	PostingID string       `json:"postingId"`
}

// MatchResult is one scored posting for one user. Score is a percentage in
// [0, 100].
type MatchResult struct {
	UserID     string    `json:"userId"`
	PostingID  string    `json:"postingId"`
	Title      string    `json:"title"`
	Company    string    `json:"company"`
	Score      float64   `json:"score"`
	Reasons    []string  `json:"reasons"`
	ComputedAt time.Time `json:"computedAt"`
}

// CacheEntry is a ranked match list stored under one cache key.
type CacheEntry struct {
	Key       string        `json:"key"`
	Matches   []MatchResult `json:"matches"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// PostingIDs lists the postings referenced by the entry.
func (e CacheEntry) PostingIDs() []string {
	ids := make([]string, 0, len(e.Matches))
	for _, m := range e.Matches {
		ids = append(ids, m.PostingID)
	}
	return ids
}

// SetVersion marks the state of the candidate posting set. Any insert or
// re-sighting advances MaxLastSeen; any deletion changes Count.
type SetVersion struct {
	MaxLastSeen time.Time `json:"maxLastSeen"`
	Count       int64     `json:"count"`
}

// String renders the version as a cache-key token.
func (v SetVersion) String() string {
	return fmt.Sprintf("%d.%d", v.MaxLastSeen.UTC().UnixNano(), v.Count)
}
