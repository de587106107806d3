// Package ledger exposes read-only token balance lookups. Transfers are
// performed by the venue, never by this module.
package ledger

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the ledger cannot be queried.
var ErrUnavailable = errors.New("ledger unavailable")

// Ledger reads token balances.
type Ledger interface {
	// BalanceOf returns the balance of asset held by account, in base
	// units. An unknown account holds zero.
	BalanceOf(ctx context.Context, account, asset string) (uint64, error)
}
