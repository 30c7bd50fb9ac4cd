package btree

import (
	"context"
	"sync"
)

// PageID identifies a node page. Zero is never a valid page.
type PageID uint64

// InvalidPage is the root of an empty tree.
const InvalidPage PageID = 0

// Persister loads and stores encoded node pages.
type Persister interface {
	LoadPage(ctx context.Context, id PageID) ([]byte, error)
	SavePage(ctx context.Context, id PageID, data []byte) error
}

// PageDeleter is implemented by persisters that can reclaim pages.
type PageDeleter interface {
	DeletePage(ctx context.Context, id PageID) error
}

// MemoryPersister keeps pages in memory.
type MemoryPersister struct {
	mu    sync.RWMutex
	pages map[PageID][]byte
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{pages: make(map[PageID][]byte)}
}

// LoadPage implements Persister.
func (m *MemoryPersister) LoadPage(_ context.Context, id PageID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.pages[id]
	if !ok {
		return nil, ErrPageNotFound
	}
	return append([]byte(nil), data...), nil
}

// SavePage implements Persister.
func (m *MemoryPersister) SavePage(_ context.Context, id PageID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pages[id] = append([]byte(nil), data...)
	return nil
}

// DeletePage implements PageDeleter.
func (m *MemoryPersister) DeletePage(_ context.Context, id PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pages, id)
	return nil
}

// Len returns the number of stored pages.
func (m *MemoryPersister) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

// Corrupt overwrites a page with data. Used to exercise integrity checks.
func (m *MemoryPersister) Corrupt(id PageID, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[id] = data
}
