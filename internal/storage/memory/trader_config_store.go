package memory

import (
	"context"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

// TraderConfigStore is an in-memory implementation of
// storage.TraderConfigStore.
type TraderConfigStore struct {
	mu          sync.RWMutex
	data        map[string]*domain.TraderConfig // keyed by trader_id
	byAuthority map[string]string               // authority -> trader_id
}

// NewTraderConfigStore creates a new in-memory trader config store.
func NewTraderConfigStore() *TraderConfigStore {
	return &TraderConfigStore{
		data:        make(map[string]*domain.TraderConfig),
		byAuthority: make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.TraderConfigStore = (*TraderConfigStore)(nil)

// Insert adds a new config. Returns ErrDuplicateKey if trader_id or the
// authority already exists.
func (s *TraderConfigStore) Insert(_ context.Context, c *domain.TraderConfig) error {
	if c == nil || c.TraderID == "" || c.Authority == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.TraderID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byAuthority[c.Authority]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[c.TraderID] = c.Clone()
	s.byAuthority[c.Authority] = c.TraderID
	return nil
}

// GetByID retrieves a config by trader ID. Returns ErrNotFound if not exists.
func (s *TraderConfigStore) GetByID(_ context.Context, traderID string) (*domain.TraderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[traderID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

// GetByAuthority retrieves the config owned by an authority.
func (s *TraderConfigStore) GetByAuthority(_ context.Context, authority string) (*domain.TraderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	traderID, exists := s.byAuthority[authority]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return s.data[traderID].Clone(), nil
}

// CommitExecution persists attempt accounting for a trader.
func (s *TraderConfigStore) CommitExecution(_ context.Context, traderID string, totalSwaps uint64, lastSwapTimestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[traderID]
	if !exists {
		return storage.ErrNotFound
	}
	if lastSwapTimestamp < c.LastSwapTimestamp {
		return storage.ErrStaleWrite
	}

	c.TotalSwaps = totalSwaps
	c.LastSwapTimestamp = lastSwapTimestamp
	return nil
}

// SetPaused flips the emergency-stop flag.
func (s *TraderConfigStore) SetPaused(_ context.Context, traderID string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[traderID]
	if !exists {
		return storage.ErrNotFound
	}
	c.Paused = paused
	return nil
}
