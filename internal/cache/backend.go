// Package cache implements read-through / write-invalidate caching of
// JSON-encoded records over a byte backend with per-entry TTL.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss reports that a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Backend is a byte-oriented key/value store with expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend keeps entries in process. Expired entries are dropped lazily
// on read.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryBackend returns an empty MemoryBackend using the wall clock.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithClock(time.Now)
}

// NewMemoryBackendWithClock returns a MemoryBackend driven by now.
func NewMemoryBackendWithClock(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: now}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		if current, ok := m.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrMiss
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: stored, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryBackend) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
