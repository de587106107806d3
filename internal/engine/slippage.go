package engine

import "math/big"

const bpsDenominator = 10_000

// MinOutput computes the slippage-bounded output floor:
// amount * price * (10000 - slippageBps) / 10000, floored.
// The intermediate product can exceed uint64, so the computation runs in
// big integers. A bound that does not fit uint64 fails closed: no venue
// would fill it and a truncated bound would under-protect the trader.
func MinOutput(amount uint64, price int64, slippageBps uint32) (uint64, bool) {
	if price <= 0 || slippageBps > uint32(bpsDenominator) {
		return 0, false
	}

	v := new(big.Int).SetUint64(amount)
	v.Mul(v, big.NewInt(price))
	v.Mul(v, big.NewInt(int64(bpsDenominator-slippageBps)))
	v.Quo(v, big.NewInt(bpsDenominator))

	if !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}
