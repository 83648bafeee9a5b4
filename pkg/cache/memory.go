package cache

import (
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	data         []byte
	meta         *Metadata
	createdAt    time.Time
	lastAccessAt time.Time
}

// MemoryStore is an in-memory implementation of Store. It mirrors FileStore
// semantics (TTL on read, last-access eviction order) and exists for tests
// and for deployments that do not want a shared directory.
type MemoryStore struct {
	data map[string]*memEntry
	ttl  time.Duration
	mu   sync.Mutex
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*memEntry),
		ttl:  ttl,
	}
}

func (m *MemoryStore) Get(name string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.data[name]
	if !exists {
		return nil, ErrMiss
	}
	if m.ttl > 0 && time.Since(e.createdAt) > m.ttl {
		delete(m.data, name)
		return nil, ErrMiss
	}

	e.lastAccessAt = time.Now()

	data := make([]byte, len(e.data))
	copy(data, e.data)

	return &Entry{
		Key:          name,
		Data:         data,
		Meta:         e.meta,
		CreatedAt:    e.createdAt,
		LastAccessAt: e.lastAccessAt,
	}, nil
}

func (m *MemoryStore) Put(name string, data []byte, meta *Metadata) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = &memEntry{
		data:         stored,
		meta:         meta,
		createdAt:    now,
		lastAccessAt: now,
	}
	return nil
}

func (m *MemoryStore) EvictIfOverBudget(maxTotalBytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	names := make([]string, 0, len(m.data))
	for name, e := range m.data {
		total += int64(len(e.data))
		names = append(names, name)
	}
	if total <= maxTotalBytes {
		return nil
	}

	sort.Slice(names, func(i, j int) bool {
		return m.data[names[i]].lastAccessAt.Before(m.data[names[j]].lastAccessAt)
	})

	target := maxTotalBytes * 8 / 10
	for _, name := range names {
		if total <= target {
			break
		}
		total -= int64(len(m.data[name].data))
		delete(m.data, name)
	}
	return nil
}
