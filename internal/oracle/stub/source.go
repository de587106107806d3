// Package stub provides a fixed-value oracle source for tests and local
// runs without a price feed.
package stub

import (
	"context"
	"sync"

	"swap-guard/internal/domain"
	"swap-guard/internal/oracle"
)

// Source serves configurable observations per asset.
type Source struct {
	mu  sync.RWMutex
	obs map[string]domain.PriceObservation
	err error
}

// NewSource creates an empty stub source.
func NewSource() *Source {
	return &Source{obs: make(map[string]domain.PriceObservation)}
}

// Set installs the observation returned for an asset.
func (s *Source) Set(asset string, obs domain.PriceObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs[asset] = obs
}

// Fail makes every GetPrice call return err until reset with Fail(nil).
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// GetPrice returns the configured observation or oracle.ErrUnavailable.
func (s *Source) GetPrice(_ context.Context, asset string) (domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return domain.PriceObservation{}, s.err
	}
	obs, ok := s.obs[asset]
	if !ok {
		return domain.PriceObservation{}, oracle.ErrUnavailable
	}
	return obs, nil
}
