package mapstore

import (
	"context"
	"sync"
	"time"

	"github.com/mirrorfx/router/internal/models"
)

type closedEntry struct {
	expiry time.Time
}

type positionKey struct {
	sourceAccountID  string
	sourcePositionID string
}

// MemoryStore is an in-process Store used by tests and by local dry runs
// where losing mappings on restart is acceptable.
type MemoryStore struct {
	mu        sync.RWMutex
	mappings  map[models.MappingKey]models.Mapping
	closed    map[positionKey]closedEntry
	closedTTL time.Duration
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClosedTTL overrides the recently-closed TTL.
func WithMemoryClosedTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.closedTTL = d }
}

// WithMemoryClock overrides the time source (tests).
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		mappings:  make(map[models.MappingKey]models.Mapping),
		closed:    make(map[positionKey]closedEntry),
		closedTTL: DefaultClosedTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateMapping implements Store.
func (s *MemoryStore) CreateMapping(_ context.Context, m models.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mappings[m.Key()]; exists {
		return nil
	}
	s.mappings[m.Key()] = m
	return nil
}

// GetMapping implements Store.
func (s *MemoryStore) GetMapping(_ context.Context, sourceAccountID, sourcePositionID, destAccountID string) (*models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[models.MappingKey{
		SourceAccountID:  sourceAccountID,
		SourcePositionID: sourcePositionID,
		DestAccountID:    destAccountID,
	}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// GetPositionMappings implements Store.
func (s *MemoryStore) GetPositionMappings(_ context.Context, sourceAccountID, sourcePositionID string) ([]models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Mapping
	for k, m := range s.mappings {
		if k.SourceAccountID == sourceAccountID && k.SourcePositionID == sourcePositionID {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetAccountMappings implements Store.
func (s *MemoryStore) GetAccountMappings(_ context.Context, sourceAccountID string) ([]models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Mapping
	for k, m := range s.mappings {
		if k.SourceAccountID == sourceAccountID {
			out = append(out, m)
		}
	}
	return out, nil
}

// FindByDestPosition implements Store.
func (s *MemoryStore) FindByDestPosition(_ context.Context, destAccountID, destPositionID string, _ []string) (*models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.mappings {
		if m.DestAccountID == destAccountID && m.DestPositionID == destPositionID {
			found := m
			return &found, nil
		}
	}
	return nil, nil
}

// DeleteMapping implements Store.
func (s *MemoryStore) DeleteMapping(_ context.Context, sourceAccountID, sourcePositionID, destAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, models.MappingKey{
		SourceAccountID:  sourceAccountID,
		SourcePositionID: sourcePositionID,
		DestAccountID:    destAccountID,
	})
	return nil
}

// RecordClose implements Store.
func (s *MemoryStore) RecordClose(_ context.Context, info models.CloseInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey{sourceAccountID: info.SourceAccountID, sourcePositionID: info.SourcePositionID}
	s.closed[key] = closedEntry{expiry: s.now().Add(s.closedTTL)}
	return nil
}

// WasRecentlyClosed implements Store.
func (s *MemoryStore) WasRecentlyClosed(_ context.Context, sourceAccountID, sourcePositionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey{sourceAccountID: sourceAccountID, sourcePositionID: sourcePositionID}
	entry, ok := s.closed[key]
	if !ok {
		return false, nil
	}
	if s.now().After(entry.expiry) {
		delete(s.closed, key)
		return false, nil
	}
	return true, nil
}

// Warm implements Store. Nothing to do: everything already lives in memory.
func (s *MemoryStore) Warm(context.Context, []string) error { return nil }

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
