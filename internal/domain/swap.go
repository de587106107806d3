package domain

// SwapRequest is a single execution request. Not persisted.
type SwapRequest struct {
	TraderID         string
	SourceAsset      string // base58 mint address
	DestinationAsset string // base58 mint address
	Amount           uint64 // source asset base units; 0 = config default
	CallerIdentity   string // base58 ed25519 public key
	CurrentTime      int64  // unix seconds; 0 = engine clock
}

// SwapOutcome is the result of a successful execution.
type SwapOutcome struct {
	AttemptRef     string // deterministic attempt reference
	TxReference    string // venue transaction reference
	AmountIn       uint64
	MinOutput      uint64 // slippage-bounded floor passed to the venue
	RealizedOutput uint64 // amount reported by the venue
	Price          int64  // validated oracle price used for the decision
	ExecutedAt     int64  // unix seconds
}

// Band classifies a validated price against a short/long threshold pair.
type Band string

const (
	BandShort Band = "SHORT" // price below the short threshold
	BandMid   Band = "MID"   // price between the thresholds
	BandLong  Band = "LONG"  // price above the long threshold
)

// BandCondition is the caller-supplied gate for band executions.
type BandCondition struct {
	ShortThreshold int64
	LongThreshold  int64
	Target         Band
}

// ClassifyBand places price into a band. Thresholds must already be
// validated (0 < short < long).
func ClassifyBand(price, short, long int64) Band {
	switch {
	case price < short:
		return BandShort
	case price > long:
		return BandLong
	default:
		return BandMid
	}
}
