package model

import "time"

// SourceFailure describes why one adapter failed during a run.
type SourceFailure struct {
	Source   Source `json:"source"`
	Kind     string `json:"kind"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// IngestionReport summarises one ingestion run.
type IngestionReport struct {
	RunID          string          `json:"runId"`
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     time.Time       `json:"finishedAt"`
	Found          int             `json:"found"`
	Processed      int             `json:"processed"`
	Stored         int             `json:"stored"`
	Updated        int             `json:"updated"`
	Duplicates     int             `json:"duplicates"`
	FailedWrites   int             `json:"failedWrites"`
	Rejected       int             `json:"rejected"`
	Capped         int             `json:"capped"`
	FailedSources  []Source        `json:"failedSources"`
	SourceFailures []SourceFailure `json:"sourceFailures,omitempty"`
}

// Merge folds other into r. Used when a scheduled run executes several
// queries.
func (r *IngestionReport) Merge(other IngestionReport) {
	if r.StartedAt.IsZero() || (!other.StartedAt.IsZero() && other.StartedAt.Before(r.StartedAt)) {
		r.StartedAt = other.StartedAt
	}
	if other.FinishedAt.After(r.FinishedAt) {
		r.FinishedAt = other.FinishedAt
	}
	r.Found += other.Found
	r.Processed += other.Processed
	r.Stored += other.Stored
	r.Updated += other.Updated
	r.Duplicates += other.Duplicates
	r.FailedWrites += other.FailedWrites
	r.Rejected += other.Rejected
	r.Capped += other.Capped
	seen := make(map[Source]bool, len(r.FailedSources))
	for _, s := range r.FailedSources {
		seen[s] = true
	}
	for _, s := range other.FailedSources {
		if !seen[s] {
			seen[s] = true
			r.FailedSources = append(r.FailedSources, s)
		}
	}
	r.SourceFailures = append(r.SourceFailures, other.SourceFailures...)
}

// RetentionReport summarises one retention sweep.
type RetentionReport struct {
	StartedAt              time.Time `json:"startedAt"`
	FinishedAt             time.Time `json:"finishedAt"`
	Cutoff                 time.Time `json:"cutoff"`
	Scanned                int       `json:"scanned"`
	Deleted                int       `json:"deleted"`
	RetainedDueToReference int       `json:"retainedDueToReference"`
	CheckErrors            int       `json:"checkErrors"`
	DeleteErrors           int       `json:"deleteErrors"`
	DeletedIDs             []string  `json:"deletedIds,omitempty"`
}
