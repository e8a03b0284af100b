package cache

import (
	"context"
	"sync"
	"time"
)

type item struct {
	val       []byte
	expiresAt int64 // unix nanos; 0 = never
}

func (it item) expired(now int64) bool {
	return it.expiresAt != 0 && now > it.expiresAt
}

// Memory is a thread-safe in-process Store with per-entry expiration.
// When full, the entry closest to expiry is evicted.
type Memory struct {
	mu       sync.RWMutex
	items    map[string]item
	maxItems int
	now      func() time.Time
}

// NewMemory creates a Memory store; maxItems <= 0 means unbounded.
func NewMemory(maxItems int) *Memory {
	return &Memory{
		items:    make(map[string]item),
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || it.expired(m.now().UnixNano()) {
		return nil, ErrMiss
	}
	out := make([]byte, len(it.val))
	copy(out, it.val)
	return out, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	var exp int64
	if ttl > 0 {
		exp = m.now().Add(ttl).UnixNano()
	}
	cp := make([]byte, len(val))
	copy(cp, val)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[key]; !exists && m.maxItems > 0 && len(m.items) >= m.maxItems {
		m.evictLocked()
	}
	m.items[key] = item{val: cp, expiresAt: exp}
	return nil
}

// Del implements Store.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// evictLocked drops expired entries, or failing that the one expiring first.
func (m *Memory) evictLocked() {
	now := m.now().UnixNano()
	var (
		victim string
		soon   int64
		found  bool
	)
	for k, it := range m.items {
		if it.expired(now) {
			delete(m.items, k)
			continue
		}
		if !found || (it.expiresAt != 0 && (soon == 0 || it.expiresAt < soon)) {
			victim, soon, found = k, it.expiresAt, true
		}
	}
	if len(m.items) >= m.maxItems && found {
		delete(m.items, victim)
	}
}
