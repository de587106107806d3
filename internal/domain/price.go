package domain

// PriceObservation is an ephemeral oracle reading. Untrusted until
// validated on every call; the oracle is the primary external attack
// surface of the engine.
type PriceObservation struct {
	Asset      string // base58 mint address the price refers to
	Price      int64  // base units, must be positive after validation
	Confidence uint64 // same unit as Price
	ObservedAt int64  // unix seconds the observation was published
}
