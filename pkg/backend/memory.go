package backend

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	tags    []string
	expires time.Time // zero = no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Memory is an in-process backend. Expired entries are dropped lazily on
// access or by PurgeExpired.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	tags    map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		tags:    make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Get returns the stored bytes for id.
func (m *Memory) Get(ctx context.Context, id string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if entry.expired(m.now()) {
		m.mu.Lock()
		m.removeExpired(id)
		m.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.data...), true, nil
}

// Set stores data under id, replacing any previous entry and its tags.
func (m *Memory) Set(ctx context.Context, id string, data []byte, tags []string, ttl time.Duration) error {
	entry := memoryEntry{
		data: append([]byte(nil), data...),
		tags: append([]string(nil), tags...),
	}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(id)
	m.entries[id] = entry
	for _, tag := range tags {
		ids, ok := m.tags[tag]
		if !ok {
			ids = make(map[string]struct{})
			m.tags[tag] = ids
		}
		ids[id] = struct{}{}
	}
	return nil
}

// Has reports whether an unexpired entry exists for id.
func (m *Memory) Has(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	return ok && !entry.expired(m.now()), nil
}

// Remove deletes the entry for id.
func (m *Memory) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(id)
	return nil
}

// FindIdentifiersByTag returns the sorted identifiers of unexpired entries carrying tag.
func (m *Memory) FindIdentifiersByTag(ctx context.Context, tag string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	ids := make([]string, 0, len(m.tags[tag]))
	for id := range m.tags[tag] {
		if m.entries[id].expired(now) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// PurgeExpired removes all expired entries and returns how many were removed.
func (m *Memory) PurgeExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	purged := 0
	for id, entry := range m.entries {
		if entry.expired(now) {
			m.remove(id)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// removeExpired removes id only if it is still expired; the entry may have
// been replaced between releasing the read lock and acquiring the write lock.
func (m *Memory) removeExpired(id string) {
	if entry, ok := m.entries[id]; ok && entry.expired(m.now()) {
		m.remove(id)
	}
}

func (m *Memory) remove(id string) {
	entry, ok := m.entries[id]
	if !ok {
		return
	}
	for _, tag := range entry.tags {
		delete(m.tags[tag], id)
		if len(m.tags[tag]) == 0 {
			delete(m.tags, tag)
		}
	}
	delete(m.entries, id)
}
