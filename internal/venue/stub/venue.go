// Package stub provides a scriptable swap venue for tests and local runs.
package stub

import (
	"context"
	"fmt"
	"sync"

	"swap-guard/internal/venue"
)

// Venue fills swaps at a fixed rate unless scripted to fail.
type Venue struct {
	mu sync.Mutex

	// RatePPM is the output per input unit in parts-per-million of the
	// destination asset (1_000_000 = 1:1). Applied to every fill.
	RatePPM uint64

	err   error
	calls []venue.SwapInstruction
	seq   int
}

// NewVenue creates a stub venue filling 1:1.
func NewVenue() *Venue {
	return &Venue{RatePPM: 1_000_000}
}

// Fail makes subsequent Swap calls return err until reset with Fail(nil).
func (v *Venue) Fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

// Calls returns the instructions received so far.
func (v *Venue) Calls() []venue.SwapInstruction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]venue.SwapInstruction(nil), v.calls...)
}

// Swap records the instruction and fills at RatePPM, honoring the
// instruction's minimum output the way a real venue would.
func (v *Venue) Swap(_ context.Context, in venue.SwapInstruction) (venue.SwapReceipt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.calls = append(v.calls, in)
	if v.err != nil {
		return venue.SwapReceipt{}, v.err
	}

	out := in.AmountIn / 1_000_000 * v.RatePPM
	if rem := in.AmountIn % 1_000_000; rem > 0 {
		out += rem * v.RatePPM / 1_000_000
	}
	if out < in.MinOutput {
		return venue.SwapReceipt{}, fmt.Errorf("%w: filled %d below floor %d", venue.ErrSlippageExceeded, out, in.MinOutput)
	}

	v.seq++
	return venue.SwapReceipt{
		TxReference:    fmt.Sprintf("stub-tx-%06d", v.seq),
		RealizedOutput: out,
	}, nil
}
