package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/i474232898/templog/internal/series"
)

// ErrOutsideRetention is returned when a write targets a date older than
// every date a full store keeps.
var ErrOutsideRetention = errors.New("date is older than the retained history")

// MemoryStore is a concurrency-safe in-memory series.Provider.
// It keeps nothing across restarts and is meant for development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	// key: ISO date, value: reading
	data map[string]float64

	// maxHistory caps the number of dates kept, dropping the oldest first.
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited. Otherwise a full store
// rejects new dates older than its oldest one with ErrOutsideRetention.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]float64),
		maxHistory: maxHistory,
	}
}

// List returns all readings ordered by date.
func (s *MemoryStore) List(ctx context.Context) ([]series.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.sortedKeysLocked()
	out := make([]series.Record, 0, len(keys))
	for _, k := range keys {
		v := s.data[k]
		out = append(out, series.Record{Date: k, Temperature: &v})
	}
	return out, nil
}

// Upsert stores the reading for e.Date and enforces retention.
func (s *MemoryStore) Upsert(ctx context.Context, e series.Entry) error {
	key := e.Date.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && s.maxHistory > 0 && len(s.data) >= s.maxHistory {
		if keys := s.sortedKeysLocked(); key < keys[0] {
			return ErrOutsideRetention
		}
	}
	s.data[key] = e.Temperature

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.data) > s.maxHistory {
		keys := s.sortedKeysLocked()
		for _, k := range keys[:len(keys)-s.maxHistory] {
			delete(s.data, k)
		}
	}
	return nil
}

// Delete removes the reading for date.
func (s *MemoryStore) Delete(ctx context.Context, date series.Date) error {
	key := date.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return series.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// ISO dates sort chronologically as strings.
func (s *MemoryStore) sortedKeysLocked() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
