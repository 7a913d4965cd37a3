package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process secondary store. Entries expire lazily
// on read; Sweep offers a best-effort periodic purge with no compaction
// guarantee.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the value for key, expiring it lazily if its TTL passed.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expireAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expireAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of live and expired-but-unswept entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep runs a periodic purge of expired entries until ctx is done.
func (m *MemoryStore) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.purgeExpired()
		}
	}
}

func (m *MemoryStore) purgeExpired() {
	now := m.now()
	m.mu.Lock()
	for key, e := range m.entries {
		if now.After(e.expireAt) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}
