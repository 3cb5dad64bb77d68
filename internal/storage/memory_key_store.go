package storage

import (
	"context"
	"sync"
)

var _ KeyStore = (*InMemoryKeyStore)(nil)

// InMemoryKeyStore is the KeyStore for local development and tests;
// deployments use the PostgreSQL-backed PersistentKeyStore. Two indexes
// cover the hot path (lookup by key string during auth) and the management
// path (by id); ListByClient scans, which is fine at dev-store sizes.
// All returned records are copies, so callers cannot mutate store state.
type InMemoryKeyStore struct {
	mu    sync.RWMutex
	byKey map[string]*APIKey
	byID  map[string]*APIKey
}

// NewInMemoryKeyStore creates an empty in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		byKey: make(map[string]*APIKey),
		byID:  make(map[string]*APIKey),
	}
}

// FindByKey looks a key up by its key string.
func (s *InMemoryKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.byKey[key]
	if !ok {
		return nil, false
	}

	clone := *stored

	return &clone, true
}

// Add stores a new key. Both the id and the key string must be unused.
func (s *InMemoryKeyStore) Add(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil {
		return ErrKeyNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byID[apiKey.ID]; taken {
		return ErrKeyAlreadyExists
	}

	if _, taken := s.byKey[apiKey.Key]; taken {
		return ErrKeyAlreadyExists
	}

	clone := *apiKey
	s.byID[clone.ID] = &clone
	s.byKey[clone.Key] = &clone

	return nil
}

// Update replaces the record with the same id, re-indexing when the key
// string changed.
func (s *InMemoryKeyStore) Update(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil {
		return ErrKeyNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[apiKey.ID]
	if !ok {
		return ErrKeyNotFound
	}

	if current.Key != apiKey.Key {
		delete(s.byKey, current.Key)
	}

	clone := *apiKey
	s.byID[clone.ID] = &clone
	s.byKey[clone.Key] = &clone

	return nil
}

// Delete removes the record with the given id.
func (s *InMemoryKeyStore) Delete(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[keyID]
	if !ok {
		return ErrKeyNotFound
	}

	delete(s.byID, keyID)
	delete(s.byKey, current.Key)

	return nil
}

// ListByClient returns every key belonging to the client. Unknown clients
// yield an empty, non-nil slice.
func (s *InMemoryKeyStore) ListByClient(_ context.Context, clientID string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*APIKey{}

	for _, stored := range s.byID {
		if stored.ClientID != clientID {
			continue
		}

		clone := *stored
		result = append(result, &clone)
	}

	return result, nil
}
