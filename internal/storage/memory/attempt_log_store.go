package memory

import (
	"context"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// AttemptLogStore is an in-memory implementation of storage.AttemptLogStore.
// Records are kept in insertion order, which for a single engine is also
// attempted_at order.
type AttemptLogStore struct {
	mu       sync.RWMutex
	byTrader map[string][]*domain.ExecutionAttempt
}

// NewAttemptLogStore creates a new in-memory attempt log store.
func NewAttemptLogStore() *AttemptLogStore {
	return &AttemptLogStore{
		byTrader: make(map[string][]*domain.ExecutionAttempt),
	}
}

// Compile-time interface check.
var _ storage.AttemptLogStore = (*AttemptLogStore)(nil)

// Insert appends one attempt record.
func (s *AttemptLogStore) Insert(_ context.Context, a *domain.ExecutionAttempt) error {
	if a == nil || a.TraderID == "" || a.AttemptRef == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.byTrader[a.TraderID] = append(s.byTrader[a.TraderID], &cp)
	return nil
}

// GetByTraderID retrieves attempts for a trader, ordered by attempted_at ASC.
func (s *AttemptLogStore) GetByTraderID(_ context.Context, traderID string) ([]*domain.ExecutionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.byTrader[traderID]
	out := make([]*domain.ExecutionAttempt, len(recs))
	for i, r := range recs {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}
