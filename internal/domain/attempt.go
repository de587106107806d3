package domain

// ExecutionAttempt is a telemetry record of one execution attempt,
// successful or not. Append-only; never consulted by any decision path.
// The engine's own state remains just the counter and timestamp on
// TraderConfig.
type ExecutionAttempt struct {
	AttemptRef       string
	TraderID         string
	SourceAsset      string
	DestinationAsset string
	AmountIn         uint64
	MinOutput        uint64
	RealizedOutput   uint64 // 0 unless the venue filled
	Price            int64  // 0 when rejected before oracle validation
	Outcome          string // stable outcome code, "OK" on success
	TxReference      string // empty unless the venue filled
	AttemptedAt      int64  // unix seconds
}
