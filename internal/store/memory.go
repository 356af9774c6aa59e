package store

import (
	"context"
	"sync"
	"time"

	"github.com/mohammad-safakhou/casewatch/models"
)

// Memory keeps collections and cache entries in process memory. It backs tests and the
// "memory" backends.
type Memory struct {
	mu          sync.Mutex
	collections map[string]Snapshot
	cache       map[string]models.CacheEntry
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]Snapshot),
		cache:       make(map[string]models.CacheEntry),
		now:         time.Now,
	}
}

func (m *Memory) LoadCollection(ctx context.Context, name string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.collections[name]
	return Snapshot{Records: cloneRecords(snap.Records), Revision: snap.Revision}, nil
}

func (m *Memory) SaveCollection(ctx context.Context, name string, records []models.Record, expectedRevision int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.collections[name]
	if cur.Revision != expectedRevision {
		return cur.Revision, models.ErrConflict
	}
	next := Snapshot{Records: cloneRecords(records), Revision: cur.Revision + 1}
	m.collections[name] = next
	return next.Revision, nil
}

func (m *Memory) GetCacheEntry(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[fingerprint]
	return e, ok, nil
}

func (m *Memory) HitCacheEntry(ctx context.Context, fingerprint string, notBefore time.Time) (models.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[fingerprint]
	if !ok || (!notBefore.IsZero() && e.ResultAt.Before(notBefore)) {
		return models.CacheEntry{}, false, nil
	}
	e.AccessCount++
	e.UpdatedAt = m.now().UTC()
	m.cache[fingerprint] = e
	return e, true, nil
}

func (m *Memory) UpsertCacheEntry(ctx context.Context, entry models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if cur, ok := m.cache[entry.Fingerprint]; ok {
		entry.AccessCount = cur.AccessCount
	} else {
		entry.AccessCount = 0
	}
	entry.UpdatedAt = now
	entry.ResultAt = now
	m.cache[entry.Fingerprint] = entry
	return nil
}
