package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. The zero quota means unlimited.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	size  int64
	quota int64
}

// NewMemoryStore creates an empty MemoryStore with the given byte quota (0 = unlimited).
func NewMemoryStore(quota int64) *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]string),
		quota: quota,
	}
}

// Get returns the value for key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.size + entrySize(key, value)
	if old, ok := m.data[key]; ok {
		next -= entrySize(key, old)
	}
	if m.quota > 0 && next > m.quota {
		return &StoreError{Op: "set", Key: key, Err: ErrQuotaExceeded}
	}
	m.data[key] = value
	m.size = next
	return nil
}

// Remove deletes key.
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.size -= entrySize(key, old)
		delete(m.data, key)
	}
	return nil
}

// Keys returns every key with the prefix, sorted.
func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return filterKeys(keys, prefix), nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
