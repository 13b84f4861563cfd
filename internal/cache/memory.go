package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultCapacity is the number of result sets a MemoryStore keeps when none is configured.
const DefaultCapacity = 1000

// MemoryStore is an in-process LRU store.
type MemoryStore struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type memoryItem struct {
	key   string
	entry Entry
}

// NewMemoryStore creates a store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the entry for key and marks it recently used.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.lru.MoveToFront(elem)
		return elem.Value.(*memoryItem).entry, true, nil
	}
	return Entry{}, false, nil
}

// Set stores the entry for key, evicting the least recently used entry if at capacity.
func (s *MemoryStore) Set(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.lru.MoveToFront(elem)
		elem.Value = &memoryItem{key: key, entry: e}
		return nil
	}

	elem := s.lru.PushFront(&memoryItem{key: key, entry: e})
	s.entries[key] = elem

	if s.lru.Len() > s.capacity {
		if oldest := s.lru.Back(); oldest != nil {
			s.lru.Remove(oldest)
			delete(s.entries, oldest.Value.(*memoryItem).key)
		}
	}
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.lru.Remove(elem)
		delete(s.entries, key)
	}
	return nil
}

// DeleteExpired removes key if its current entry is expired at now.
func (s *MemoryStore) DeleteExpired(_ context.Context, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok && elem.Value.(*memoryItem).entry.Expired(now) {
		s.lru.Remove(elem)
		delete(s.entries, key)
	}
	return nil
}

// Purge removes every entry expired at now and returns how many were removed.
func (s *MemoryStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, elem := range s.entries {
		if elem.Value.(*memoryItem).entry.Expired(now) {
			s.lru.Remove(elem)
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
