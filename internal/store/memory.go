package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobmate/discovery-service/internal/model"
)

// MemoryStore is an in-process implementation of every store capability.
// A single mutex makes each operation atomic, which gives the same
// guarantees the PostgreSQL store gets from transactions.
type MemoryStore struct {
	mu           sync.Mutex
	postings     map[string]model.Posting
	byURL        map[string]string
	applications map[string]model.Application
	profiles     map[string]model.UserProfile
	configs      []model.SearchConfig
	embeddings   map[string]model.PostingEmbedding // posting id + "|" + model

	// Failure hooks for tests.
	FailInsert   error
	FailHasCheck error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		postings:     make(map[string]model.Posting),
		byURL:        make(map[string]string),
		applications: make(map[string]model.Application),
		profiles:     make(map[string]model.UserProfile),
		embeddings:   make(map[string]model.PostingEmbedding),
	}
}

// FindByURL returns the posting holding url, or ErrNotFound.
func (m *MemoryStore) FindByURL(_ context.Context, url string) (*model.Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if url == "" {
		return nil, ErrNotFound
	}
	id, ok := m.byURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	p := clonePosting(m.postings[id])
	return &p, nil
}

// FindFuzzy returns the most recently first-seen posting with key whose
// first_seen_at is not before since.
func (m *MemoryStore) FindFuzzy(_ context.Context, key model.FuzzyKey, since time.Time) (*model.Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Posting
	for _, p := range m.postings {
		if p.FuzzyKey() != key || p.FirstSeenAt.Before(since) {
			continue
		}
		if best == nil || p.FirstSeenAt.After(best.FirstSeenAt) ||
			(p.FirstSeenAt.Equal(best.FirstSeenAt) && p.ID < best.ID) {
			c := clonePosting(p)
			best = &c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// GetPosting returns one posting by id.
func (m *MemoryStore) GetPosting(_ context.Context, id string) (*model.Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.postings[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clonePosting(p)
	return &c, nil
}

// InsertPosting stores p as a new row after re-checking both dedup tiers.
func (m *MemoryStore) InsertPosting(_ context.Context, p *model.Posting, window time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return "", m.FailInsert
	}
	if p.CanonicalURL != "" {
		if _, ok := m.byURL[p.CanonicalURL]; ok {
			return "", ErrConflict
		}
	}
	if m.collidesLocked("", p.FuzzyKey(), p.FirstSeenAt.Add(-window), p.FirstSeenAt.Add(window)) {
		return "", ErrConflict
	}

	c := clonePosting(*p)
	c.ID = uuid.NewString()
	m.postings[c.ID] = c
	if c.CanonicalURL != "" {
		m.byURL[c.CanonicalURL] = c.ID
	}
	return c.ID, nil
}

// UpdatePosting mirrors PostgresStore.UpdatePosting.
func (m *MemoryStore) UpdatePosting(_ context.Context, p *model.Posting, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.postings[p.ID]
	if !ok {
		return ErrNotFound
	}
	if !m.collidesLocked(p.ID, p.FuzzyKey(), p.FirstSeenAt.Add(-window), p.FirstSeenAt.Add(window)) {
		cur.Title, cur.Company, cur.Location = p.Title, p.Company, p.Location
	}
	cur.Description = p.Description
	cur.Salary = p.Salary
	cur.EmploymentType = p.EmploymentType
	cur.RemoteMode = p.RemoteMode
	cur.ExperienceLevel = p.ExperienceLevel
	cur.Skills = append([]string(nil), p.Skills...)
	cur.Requirements = append([]string(nil), p.Requirements...)
	cur.Responsibilities = append([]string(nil), p.Responsibilities...)
	if p.LastSeenAt.After(cur.LastSeenAt) {
		cur.LastSeenAt = p.LastSeenAt
	}
	if p.PostedAt != nil {
		t := *p.PostedAt
		cur.PostedAt = &t
	}
	m.postings[p.ID] = cur
	return nil
}

// TouchPosting advances last_seen_at of id to seenAt when it is later.
func (m *MemoryStore) TouchPosting(_ context.Context, id string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.postings[id]
	if !ok {
		return ErrNotFound
	}
	if seenAt.After(p.LastSeenAt) {
		p.LastSeenAt = seenAt
		m.postings[id] = p
	}
	return nil
}

// ListCandidates returns up to limit postings, most recently seen first.
// A limit of zero or less returns every posting.
func (m *MemoryStore) ListCandidates(_ context.Context, limit int) ([]model.Posting, error) {
	m.mu.Lock()
	all := m.snapshotLocked()
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastSeenAt.Equal(all[j].LastSeenAt) {
			return all[i].LastSeenAt.After(all[j].LastSeenAt)
		}
		return all[i].ID < all[j].ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// CandidateVersion returns the current max last_seen_at and row count.
func (m *MemoryStore) CandidateVersion(_ context.Context) (model.SetVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := model.SetVersion{Count: int64(len(m.postings))}
	for _, p := range m.postings {
		if p.LastSeenAt.After(v.MaxLastSeen) {
			v.MaxLastSeen = p.LastSeenAt
		}
	}
	return v, nil
}

// ListStale returns up to limit postings last seen before cutoff with id
// greater than afterID, ordered by id.
func (m *MemoryStore) ListStale(_ context.Context, cutoff time.Time, afterID string, limit int) ([]model.Posting, error) {
	m.mu.Lock()
	all := m.snapshotLocked()
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	var out []model.Posting
	for _, p := range all {
		if p.ID <= afterID || !p.LastSeenAt.Before(cutoff) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// DeleteStalePosting deletes id if it is still older than cutoff and
// unreferenced, together with its embeddings.
func (m *MemoryStore) DeleteStalePosting(_ context.Context, id string, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.postings[id]
	if !ok || !p.LastSeenAt.Before(cutoff) {
		return false, nil
	}
	for _, a := range m.applications {
		if a.PostingID == id {
			return false, nil
		}
	}
	delete(m.postings, id)
	if p.CanonicalURL != "" {
		delete(m.byURL, p.CanonicalURL)
	}
	for k, e := range m.embeddings {
		if e.PostingID == id {
			delete(m.embeddings, k)
		}
	}
	return true, nil
}

// HasApplication reports whether any application references postingID.
func (m *MemoryStore) HasApplication(_ context.Context, postingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailHasCheck != nil {
		return false, m.FailHasCheck
	}
	for _, a := range m.applications {
		if a.PostingID == postingID {
			return true, nil
		}
	}
	return false, nil
}

// CreateApplication records that userID acted on postingID.
func (m *MemoryStore) CreateApplication(_ context.Context, userID, postingID, status string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.postings[postingID]; !ok {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	for id, a := range m.applications {
		if a.UserID == userID && a.PostingID == postingID {
			a.UpdatedAt = now
			m.applications[id] = a
			return &a, nil
		}
	}
	a := model.Application{
		ID:        uuid.NewString(),
		UserID:    userID,
		PostingID: postingID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.applications[a.ID] = a
	return &a, nil
}

// GetApplication returns one application owned by userID.
func (m *MemoryStore) GetApplication(_ context.Context, userID, appID string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[appID]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	return &a, nil
}

// SetApplicationStatus moves an application owned by userID to status.
func (m *MemoryStore) SetApplicationStatus(_ context.Context, userID, appID, status string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[appID]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	m.applications[appID] = a
	return &a, nil
}

// PutProfile stores the scoring read model of one user.
func (m *MemoryStore) PutProfile(p model.UserProfile) {
	m.mu.Lock()
	m.profiles[p.UserID] = p
	m.mu.Unlock()
}

// GetProfile returns the scoring read model of userID.
func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// AddSearchConfig registers an active search config.
func (m *MemoryStore) AddSearchConfig(c model.SearchConfig) {
	m.mu.Lock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.configs = append(m.configs, c)
	m.mu.Unlock()
}

// LoadActiveConfigs returns every registered search config.
func (m *MemoryStore) LoadActiveConfigs(_ context.Context) ([]model.SearchConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SearchConfig(nil), m.configs...), nil
}

// LoadEmbeddings returns cached vectors whose content hash matches want.
func (m *MemoryStore) LoadEmbeddings(_ context.Context, modelName string, want map[string]string) (map[string][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]float32, len(want))
	for id, hash := range want {
		e, ok := m.embeddings[id+"|"+modelName]
		if ok && e.ContentHash == hash {
			out[id] = append([]float32(nil), e.Vector...)
		}
	}
	return out, nil
}

// SaveEmbeddings upserts vectors keyed by (posting, model). Vectors of
// postings that no longer exist are dropped.
func (m *MemoryStore) SaveEmbeddings(_ context.Context, items []model.PostingEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range items {
		if _, ok := m.postings[e.PostingID]; !ok {
			continue
		}
		e.Vector = append([]float32(nil), e.Vector...)
		m.embeddings[e.PostingID+"|"+e.Model] = e
	}
	return nil
}

// EmbeddingCount is the number of cached vectors.
func (m *MemoryStore) EmbeddingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.embeddings)
}

// Len is the number of stored postings.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.postings)
}

func (m *MemoryStore) collidesLocked(selfID string, key model.FuzzyKey, from, to time.Time) bool {
	for id, p := range m.postings {
		if id == selfID || p.FuzzyKey() != key {
			continue
		}
		if !p.FirstSeenAt.Before(from) && !p.FirstSeenAt.After(to) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) snapshotLocked() []model.Posting {
	out := make([]model.Posting, 0, len(m.postings))
	for _, p := range m.postings {
		out = append(out, clonePosting(p))
	}
	return out
}

func clonePosting(p model.Posting) model.Posting {
	p.Skills = append([]string(nil), p.Skills...)
	p.Requirements = append([]string(nil), p.Requirements...)
	p.Responsibilities = append([]string(nil), p.Responsibilities...)
	if p.PostedAt != nil {
		t := *p.PostedAt
		p.PostedAt = &t
	}
	return p
}
