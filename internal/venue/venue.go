// Package venue defines the external swap venue capability consumed by
// the engine. The engine never depends on a venue's internal
// representation; it passes an instruction and receives a receipt.
package venue

import (
	"context"
	"errors"
)

// Venue-surfaced errors.
var (
	// ErrSlippageExceeded is returned when the venue cannot satisfy the
	// minimum output bound.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrInsufficientLiquidity is returned when the venue cannot fill
	// the requested amount.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrUnavailable is returned when the venue cannot be reached or
	// reports an internal failure.
	ErrUnavailable = errors.New("venue unavailable")
)

// SwapInstruction describes one swap to execute.
// Wire shape mirrors an AMM swap: input amount plus a minimum output
// bound enforced by the venue.
type SwapInstruction struct {
	SourceAsset      string
	DestinationAsset string
	AmountIn         uint64
	MinOutput        uint64
	AuthorizedCaller string // base58 identity on whose behalf the swap runs
}

// SwapReceipt is the venue's report of a completed swap.
type SwapReceipt struct {
	TxReference    string
	RealizedOutput uint64
}

// Venue performs asset exchanges.
type Venue interface {
	// Swap executes the instruction and returns the realized output.
	// Failures are one of the package errors, possibly wrapped.
	Swap(ctx context.Context, in SwapInstruction) (SwapReceipt, error)
}
