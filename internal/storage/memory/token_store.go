package memory

import (
	"context"
	"sync"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Token
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byID: make(map[string]*domain.Token),
	}
}

// UpsertBatch writes tokens keyed by id. Existing rows keep name and symbol.
func (s *TokenStore) UpsertBatch(_ context.Context, tokens []*domain.Token) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	for _, t := range tokens {
		if t == nil || t.ID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tokens {
		if existing, ok := s.byID[t.ID]; ok {
			existing.TotalSupply = t.TotalSupply
			existing.VolumeUSD = t.VolumeUSD
			existing.Decimals = t.Decimals
			continue
		}
		tokenCopy := *t
		s.byID[t.ID] = &tokenCopy
	}

	return int64(len(tokens)), nil
}

// GetByID retrieves a token by id. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByID(_ context.Context, id string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tokenCopy := *t
	return &tokenCopy, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
