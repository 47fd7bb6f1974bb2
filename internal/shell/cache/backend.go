// Package cache provides the hostname resolution cache used by the request
// router, with pluggable in-process and Redis backends.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/linkhost/internal/core/proxy"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is a cached resolution. A negative entry has Found false.
type Entry struct {
	Found bool
	Route proxy.Route
}

// Backend stores entries with a per-entry TTL.
type Backend interface {
	// Get returns the entry for key and whether it was present and unexpired.
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// =============================================================================
// Memory Backend
// =============================================================================

// DefaultMaxEntries bounds the in-process backend.
const DefaultMaxEntries = 10000

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryBackend is a size-bounded in-process LRU with lazy per-entry expiry.
// When full, the least recently used entry is evicted.
type MemoryBackend struct {
	items *lru.Cache[string, memoryItem]
	now   func() time.Time
}

// NewMemoryBackend creates an empty in-process backend holding at most
// maxEntries entries. A non-positive maxEntries uses DefaultMaxEntries.
func NewMemoryBackend(maxEntries int) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	items, err := lru.New[string, memoryItem](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryBackend{items: items, now: time.Now}, nil
}

func (m *MemoryBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	item, ok := m.items.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if !m.now().Before(item.expiresAt) {
		m.items.Remove(key)
		return Entry{}, false, nil
	}
	return item.entry, true, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	m.items.Add(key, memoryItem{entry: e, expiresAt: m.now().Add(ttl)})
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryBackend) Len() int {
	return m.items.Len()
}
