package savedsearch

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps saved searches for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]SavedSearch
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]SavedSearch)}
}

func (m *MemoryStore) List(ctx context.Context) ([]SavedSearch, error) {
	m.mu.RLock()
	out := make([]SavedSearch, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (SavedSearch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[id]
	if !ok {
		return SavedSearch{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Insert(ctx context.Context, s SavedSearch) error {
	m.mu.Lock()
	m.items[s.ID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func sortNewestFirst(out []SavedSearch) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}
