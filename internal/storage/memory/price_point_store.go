package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/storage"
)

// PricePointStore is an in-memory implementation of storage.PricePointStore.
type PricePointStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PricePoint // keyed by (token_id, price_usd, timestamp)
}

// NewPricePointStore creates a new in-memory price point store.
func NewPricePointStore() *PricePointStore {
	return &PricePointStore{
		data: make(map[string]*domain.PricePoint),
	}
}

// pointKey generates the unique key for a price point.
// decimal.String drops trailing zeros, so 525 and 525.0 collide like NUMERIC does.
func pointKey(p *domain.PricePoint) string {
	return fmt.Sprintf("%s|%s|%d", p.TokenID, p.PriceUSD.String(), p.Timestamp.Unix())
}

// InsertBatch adds points, skipping any whose key already exists.
func (s *PricePointStore) InsertBatch(_ context.Context, points []*domain.PricePoint) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}

	for _, p := range points {
		if p == nil || p.TokenID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted int64
	for _, p := range points {
		key := pointKey(p)
		if _, exists := s.data[key]; exists {
			continue
		}
		pointCopy := *p
		s.data[key] = &pointCopy
		inserted++
	}

	return inserted, nil
}

// MaxPeriodStartByToken returns the latest period start per token.
func (s *PricePointStore) MaxPeriodStartByToken(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int64)
	for _, p := range s.data {
		if cur, ok := result[p.TokenID]; !ok || p.PeriodStartUnix > cur {
			result[p.TokenID] = p.PeriodStartUnix
		}
	}
	return result, nil
}

// GetByTokenID retrieves all points for a token, ordered by timestamp ASC.
func (s *PricePointStore) GetByTokenID(_ context.Context, tokenID string) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.data {
		if p.TokenID == tokenID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].PriceUSD.LessThan(result[j].PriceUSD)
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// DeleteBefore removes points with PeriodStartUnix < cutoffUnix.
func (s *PricePointStore) DeleteBefore(_ context.Context, cutoffUnix int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, p := range s.data {
		if p.PeriodStartUnix < cutoffUnix {
			delete(s.data, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored points.
func (s *PricePointStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.PricePointStore = (*PricePointStore)(nil)
