package domain

// Execution limits shared by the engine and the config store.
const (
	// CooldownSeconds is the minimum time between executions per trader.
	CooldownSeconds = 60

	// MaxSwapAmount is the largest swap amount accepted, in base units.
	MaxSwapAmount = uint64(1_000_000_000_000)

	// PriceUpperBound is the exclusive upper bound for prices and
	// thresholds, in base units.
	PriceUpperBound = int64(10_000_000_000)

	// MaxSlippageBps is the inclusive upper bound for slippage tolerance
	// (1000 bps = 10%).
	MaxSlippageBps = uint32(1000)
)

// TraderConfig is the per-trader persisted state.
// Corresponds to trader_configs table in PostgreSQL.
// Mutated only by the engine; authority is immutable after creation.
type TraderConfig struct {
	TraderID          string // deterministic, derived from authority
	Authority         string // base58 ed25519 public key
	PriceThreshold    int64  // price level that gates execution
	DefaultSwapAmount uint64 // source asset base units per execution
	SlippageBps       uint32 // 0..1000
	TotalSwaps        uint64 // attempt counter, never decreases
	LastSwapTimestamp int64  // unix seconds; 0 = never executed
	Paused            bool   // emergency stop
	CreatedAt         int64  // unix seconds
}

// Clone returns a deep copy.
func (c *TraderConfig) Clone() *TraderConfig {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Equal reports whether two configs are field-for-field identical.
// Used by tests asserting that rejected executions mutate nothing.
func (c *TraderConfig) Equal(o *TraderConfig) bool {
	if c == nil || o == nil {
		return c == o
	}
	return *c == *o
}
