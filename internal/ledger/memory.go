package ledger

import (
	"context"
	"sync"
)

// MemoryLedger is an in-memory Ledger for tests and local runs.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]uint64 // keyed by account|asset
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]uint64)}
}

// SetBalance installs a balance.
func (l *MemoryLedger) SetBalance(account, asset string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account+"|"+asset] = amount
}

// BalanceOf returns the balance, zero for unknown accounts.
func (l *MemoryLedger) BalanceOf(_ context.Context, account, asset string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account+"|"+asset], nil
}

// Compile-time interface check.
var _ Ledger = (*MemoryLedger)(nil)
