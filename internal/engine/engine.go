// Package engine implements conditional swap execution: a fixed sequence
// of precondition checks, persisted attempt accounting, and a single
// venue interaction. Accounting is committed before the venue call and is
// never rolled back, so a failed interaction still consumes the cooldown.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"swap-guard/internal/domain"
	"swap-guard/internal/identity"
	"swap-guard/internal/idhash"
	"swap-guard/internal/ledger"
	"swap-guard/internal/observability"
	"swap-guard/internal/oracle"
	"swap-guard/internal/policy"
	"swap-guard/internal/ratelimit"
	"swap-guard/internal/storage"
	"swap-guard/internal/venue"
)

// Clock returns the current time in unix seconds.
type Clock func() int64

// Engine executes conditional swaps against a single venue.
// Executions for the same trader are serialized; different traders run
// independently.
type Engine struct {
	store    storage.TraderConfigStore
	pairs    *policy.PairPolicy
	source   oracle.Source
	venue    venue.Venue
	balances ledger.Ledger           // nil disables the balance precondition
	attempts storage.AttemptLogStore // nil disables attempt telemetry
	clock    Clock
	logger   *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-trader, never shrinks
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger enables the source-balance precondition.
func WithLedger(l ledger.Ledger) Option {
	return func(e *Engine) { e.balances = l }
}

// WithAttemptLog enables best-effort attempt telemetry. Engine decisions
// never depend on it; write failures are logged and dropped.
func WithAttemptLog(s storage.AttemptLogStore) Option {
	return func(e *Engine) { e.attempts = s }
}

// WithClock overrides the engine clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(store storage.TraderConfigStore, pairs *policy.PairPolicy, source oracle.Source, v venue.Venue, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		pairs:  pairs,
		source: source,
		venue:  v,
		clock:  func() int64 { return time.Now().Unix() },
		logger: log.New(log.Writer(), "[engine] ", log.LstdFlags),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InitializeTrader creates a trader config. The trader ID is derived
// deterministically from the authority, so each authority owns exactly
// one config.
func (e *Engine) InitializeTrader(ctx context.Context, authority string, priceThreshold int64, defaultSwapAmount uint64, slippageBps uint32) (*domain.TraderConfig, error) {
	if _, err := identity.Parse(authority); err != nil {
		return nil, fmt.Errorf("%w: authority: %v", ErrInvalidInput, err)
	}
	if priceThreshold <= 0 || priceThreshold >= domain.PriceUpperBound {
		return nil, fmt.Errorf("%w: price threshold out of range", ErrInvalidInput)
	}
	if defaultSwapAmount == 0 || defaultSwapAmount > domain.MaxSwapAmount {
		return nil, fmt.Errorf("%w: default swap amount out of range", ErrInvalidInput)
	}
	if slippageBps > domain.MaxSlippageBps {
		return nil, fmt.Errorf("%w: slippage tolerance above %d bps", ErrInvalidInput, domain.MaxSlippageBps)
	}

	cfg := &domain.TraderConfig{
		TraderID:          idhash.ComputeTraderID(authority),
		Authority:         authority,
		PriceThreshold:    priceThreshold,
		DefaultSwapAmount: defaultSwapAmount,
		SlippageBps:       slippageBps,
		CreatedAt:         e.clock(),
	}
	if err := e.store.Insert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("insert trader config: %w", err)
	}

	observability.RecordTraderInitialized()
	e.logger.Printf("trader initialized: id=%s threshold=%d", cfg.TraderID, cfg.PriceThreshold)
	return cfg.Clone(), nil
}

// SetPaused flips a trader's emergency stop. Only the config authority
// may call it.
func (e *Engine) SetPaused(ctx context.Context, traderID, caller string, paused bool) error {
	lock := e.traderLock(traderID)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := e.store.GetByID(ctx, traderID)
	if err != nil {
		return fmt.Errorf("load trader config: %w", err)
	}
	if caller != cfg.Authority {
		return ErrUnauthorized
	}
	if err := e.store.SetPaused(ctx, traderID, paused); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}

	e.logger.Printf("trader %s paused=%v", traderID, paused)
	return nil
}

// ExecuteTrade runs one conditional swap gated on the configured price
// threshold: the swap proceeds only when the validated price is at or
// above it.
func (e *Engine) ExecuteTrade(ctx context.Context, req domain.SwapRequest) (*domain.SwapOutcome, error) {
	return e.execute(ctx, req, func(price int64, cfg *domain.TraderConfig) error {
		if price < cfg.PriceThreshold {
			return fmt.Errorf("%w: price %d below threshold %d", ErrPriceThresholdNotMet, price, cfg.PriceThreshold)
		}
		return nil
	})
}

// ExecuteBandSwap runs one conditional swap gated on a caller-supplied
// price band: the validated price is classified against the two
// thresholds and the swap proceeds only when the classification matches
// the target band.
func (e *Engine) ExecuteBandSwap(ctx context.Context, req domain.SwapRequest, cond domain.BandCondition) (*domain.SwapOutcome, error) {
	if cond.ShortThreshold <= 0 || cond.ShortThreshold >= cond.LongThreshold || cond.LongThreshold >= domain.PriceUpperBound {
		return nil, fmt.Errorf("%w: band thresholds must satisfy 0 < short < long < price bound", ErrInvalidInput)
	}
	switch cond.Target {
	case domain.BandShort, domain.BandMid, domain.BandLong:
	default:
		return nil, fmt.Errorf("%w: unknown band %q", ErrInvalidInput, cond.Target)
	}

	return e.execute(ctx, req, func(price int64, _ *domain.TraderConfig) error {
		if band := domain.ClassifyBand(price, cond.ShortThreshold, cond.LongThreshold); band != cond.Target {
			return fmt.Errorf("%w: price %d is %s, want %s", ErrConditionNotMet, price, band, cond.Target)
		}
		return nil
	})
}

// priceGate decides whether a validated price permits execution.
type priceGate func(price int64, cfg *domain.TraderConfig) error

// execute is the shared check/effect/interaction sequence. The check
// order is fixed; each failure is typed and leaves the config untouched.
// Once effects are committed, a venue failure does not revert them.
func (e *Engine) execute(ctx context.Context, req domain.SwapRequest, gate priceGate) (outcome *domain.SwapOutcome, err error) {
	defer func() { observability.RecordExecution(Code(err)) }()

	lock := e.traderLock(req.TraderID)
	lock.Lock()
	defer lock.Unlock()

	now := req.CurrentTime
	if now == 0 {
		now = e.clock()
	}

	cfg, err := e.store.GetByID(ctx, req.TraderID)
	if err != nil {
		return nil, fmt.Errorf("load trader config: %w", err)
	}

	// Checks. Order matters: cheap identity and state checks first, the
	// oracle round trip last.
	if req.CallerIdentity != cfg.Authority {
		observability.RecordCheckFailure("authority")
		return nil, ErrUnauthorized
	}
	if cfg.Paused {
		observability.RecordCheckFailure("paused")
		return nil, ErrSystemPaused
	}
	if !ratelimit.Allowed(cfg.LastSwapTimestamp, now, domain.CooldownSeconds) {
		observability.RecordCheckFailure("cooldown")
		return nil, fmt.Errorf("%w: %ds remaining", ErrRateLimited, ratelimit.Remaining(cfg.LastSwapTimestamp, now, domain.CooldownSeconds))
	}
	if !e.pairs.Allows(req.SourceAsset, req.DestinationAsset) {
		observability.RecordCheckFailure("pair")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTokenPair, req.SourceAsset, req.DestinationAsset)
	}

	amount := req.Amount
	if amount == 0 {
		amount = cfg.DefaultSwapAmount
	}
	if amount == 0 || amount > domain.MaxSwapAmount {
		observability.RecordCheckFailure("amount")
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	if e.balances != nil {
		start := time.Now()
		balance, berr := e.balances.BalanceOf(ctx, cfg.Authority, req.SourceAsset)
		observability.RecordLedgerLatency(time.Since(start).Seconds())
		if berr != nil {
			return nil, fmt.Errorf("look up source balance: %w", berr)
		}
		if balance < amount {
			observability.RecordCheckFailure("balance")
			return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, amount)
		}
	}

	start := time.Now()
	obs, err := e.source.GetPrice(ctx, req.SourceAsset)
	observability.RecordOracleLatency("source", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetch price: %w", err)
	}
	rejectedRef := idhash.ComputeAttemptRef(req.TraderID, cfg.TotalSwaps, now)
	if err := oracle.Validate(obs, now); err != nil {
		observability.RecordCheckFailure("oracle")
		e.recordAttempt(ctx, &domain.ExecutionAttempt{
			AttemptRef: rejectedRef, TraderID: req.TraderID,
			SourceAsset: req.SourceAsset, DestinationAsset: req.DestinationAsset,
			AmountIn: amount, Outcome: Code(err), AttemptedAt: now,
		})
		return nil, err
	}
	if err := gate(obs.Price, cfg); err != nil {
		observability.RecordCheckFailure("condition")
		e.recordAttempt(ctx, &domain.ExecutionAttempt{
			AttemptRef: rejectedRef, TraderID: req.TraderID,
			SourceAsset: req.SourceAsset, DestinationAsset: req.DestinationAsset,
			AmountIn: amount, Price: obs.Price, Outcome: Code(err), AttemptedAt: now,
		})
		return nil, err
	}

	// Re-validate the stored tolerance: a config written out of band
	// must not widen the output floor past the protocol bound.
	if cfg.SlippageBps > domain.MaxSlippageBps {
		observability.RecordCheckFailure("slippage")
		return nil, fmt.Errorf("%w: slippage tolerance %d bps above %d", ErrInvalidInput, cfg.SlippageBps, domain.MaxSlippageBps)
	}
	minOut, ok := MinOutput(amount, obs.Price, cfg.SlippageBps)
	if !ok {
		observability.RecordCheckFailure("amount")
		return nil, fmt.Errorf("%w: output bound overflow", ErrInvalidAmount)
	}

	// Effects. Committed before the venue interaction so a failed or
	// replayed interaction still consumes the cooldown and counter.
	if cfg.TotalSwaps == math.MaxUint64 {
		return nil, ErrCounterOverflow
	}
	newTotal := cfg.TotalSwaps + 1
	if err := e.store.CommitExecution(ctx, req.TraderID, newTotal, now); err != nil {
		return nil, fmt.Errorf("commit execution: %w", err)
	}
	attemptRef := idhash.ComputeAttemptRef(req.TraderID, newTotal, now)

	// Interaction. No retry: the venue call is not idempotent and the
	// accounting above already happened.
	start = time.Now()
	receipt, err := e.venue.Swap(ctx, venue.SwapInstruction{
		SourceAsset:      req.SourceAsset,
		DestinationAsset: req.DestinationAsset,
		AmountIn:         amount,
		MinOutput:        minOut,
		AuthorizedCaller: cfg.Authority,
	})
	observability.RecordVenueLatency(time.Since(start).Seconds())
	if err != nil {
		e.logger.Printf("venue swap failed: trader=%s ref=%s err=%v", req.TraderID, attemptRef, err)
		e.recordAttempt(ctx, &domain.ExecutionAttempt{
			AttemptRef: attemptRef, TraderID: req.TraderID,
			SourceAsset: req.SourceAsset, DestinationAsset: req.DestinationAsset,
			AmountIn: amount, MinOutput: minOut, Price: obs.Price,
			Outcome: Code(err), AttemptedAt: now,
		})
		return nil, fmt.Errorf("venue swap: %w", err)
	}

	observability.RecordFill(amount, now)
	e.recordAttempt(ctx, &domain.ExecutionAttempt{
		AttemptRef: attemptRef, TraderID: req.TraderID,
		SourceAsset: req.SourceAsset, DestinationAsset: req.DestinationAsset,
		AmountIn: amount, MinOutput: minOut, RealizedOutput: receipt.RealizedOutput,
		Price: obs.Price, Outcome: "OK", TxReference: receipt.TxReference,
		AttemptedAt: now,
	})
	e.logger.Printf("swap filled: trader=%s ref=%s in=%d out=%d tx=%s", req.TraderID, attemptRef, amount, receipt.RealizedOutput, receipt.TxReference)

	return &domain.SwapOutcome{
		AttemptRef:     attemptRef,
		TxReference:    receipt.TxReference,
		AmountIn:       amount,
		MinOutput:      minOut,
		RealizedOutput: receipt.RealizedOutput,
		Price:          obs.Price,
		ExecutedAt:     now,
	}, nil
}

// traderLock returns the mutex serializing executions for one trader.
func (e *Engine) traderLock(traderID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[traderID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[traderID] = lock
	}
	return lock
}

// recordAttempt writes best-effort telemetry for one attempt. Rejections
// before the effects phase pass the pre-increment counter reference;
// committed attempts pass the real attempt reference.
func (e *Engine) recordAttempt(ctx context.Context, a *domain.ExecutionAttempt) {
	if e.attempts == nil {
		return
	}
	if err := e.attempts.Insert(ctx, a); err != nil {
		e.logger.Printf("attempt log write failed: %v", err)
	}
}
