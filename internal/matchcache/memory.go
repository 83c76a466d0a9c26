package matchcache

import (
	"context"
	"sync"
	"time"

	"jobmate/discovery-service/internal/clock"
	"jobmate/discovery-service/internal/model"
)

// MemoryBackend keeps entries in process. Used when REDIS_URL is unset and
// in tests.
type MemoryBackend struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]model.CacheEntry
	byID    map[string]map[string]struct{}
}

// NewMemoryBackend returns an empty backend that expires entries by clk.
func NewMemoryBackend(clk clock.Clock) *MemoryBackend {
	return &MemoryBackend{
		clock:   clk,
		entries: make(map[string]model.CacheEntry),
		byID:    make(map[string]map[string]struct{}),
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*model.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !m.clock.Now().Before(e.ExpiresAt) {
		m.deleteLocked(key)
		return nil, nil
	}
	e.Matches = append([]model.MatchResult(nil), e.Matches...)
	return &e, nil
}

func (m *MemoryBackend) Set(_ context.Context, entry model.CacheEntry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(entry.Key)
	entry.ExpiresAt = m.clock.Now().Add(ttl)
	entry.Matches = append([]model.MatchResult(nil), entry.Matches...)
	m.entries[entry.Key] = entry
	for _, id := range entry.PostingIDs() {
		keys, ok := m.byID[id]
		if !ok {
			keys = make(map[string]struct{})
			m.byID[id] = keys
		}
		keys[entry.Key] = struct{}{}
	}
	return nil
}

func (m *MemoryBackend) InvalidatePostings(_ context.Context, postingIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range postingIDs {
		for key := range m.byID[id] {
			if _, ok := m.entries[key]; ok {
				m.deleteLocked(key)
				n++
			}
		}
		delete(m.byID, id)
	}
	return n, nil
}

// Len is the number of live entries.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryBackend) deleteLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	for _, id := range e.PostingIDs() {
		if keys := m.byID[id]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.byID, id)
			}
		}
	}
}
