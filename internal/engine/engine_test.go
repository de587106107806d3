package engine

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"swap-guard/internal/domain"
	"swap-guard/internal/identity"
	"swap-guard/internal/idhash"
	"swap-guard/internal/ledger"
	"swap-guard/internal/oracle"
	oraclestub "swap-guard/internal/oracle/stub"
	"swap-guard/internal/policy"
	"swap-guard/internal/storage"
	"swap-guard/internal/storage/memory"
	"swap-guard/internal/venue"
	venuestub "swap-guard/internal/venue/stub"
)

const testNow = int64(1_700_000_000)

type testEnv struct {
	engine   *Engine
	store    *memory.TraderConfigStore
	source   *oraclestub.Source
	venue    *venuestub.Venue
	attempts *memory.AttemptLogStore
	cfg      *domain.TraderConfig
}

func newAuthority(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return identity.Encode(pub)
}

// newTestEnv wires an engine with stub oracle and venue and one trader:
// threshold 40000, default amount 1_000_000, slippage 200 bps. The oracle
// serves price 45000 and the venue fills at exactly that rate.
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	store := memory.NewTraderConfigStore()
	source := oraclestub.NewSource()
	ven := venuestub.NewVenue()
	attempts := memory.NewAttemptLogStore()

	opts = append([]Option{
		WithClock(func() int64 { return testNow }),
		WithAttemptLog(attempts),
	}, opts...)
	eng := New(store, policy.NewPairPolicy(policy.DefaultPairs()), source, ven, opts...)

	cfg, err := eng.InitializeTrader(context.Background(), newAuthority(t), 40000, 1_000_000, 200)
	if err != nil {
		t.Fatalf("InitializeTrader failed: %v", err)
	}

	source.Set(domain.MintWSOL, domain.PriceObservation{
		Asset:      domain.MintWSOL,
		Price:      45000,
		Confidence: 100,
		ObservedAt: testNow,
	})
	ven.RatePPM = 45_000 * 1_000_000

	return &testEnv{engine: eng, store: store, source: source, venue: ven, attempts: attempts, cfg: cfg}
}

func (env *testEnv) request() domain.SwapRequest {
	return domain.SwapRequest{
		TraderID:         env.cfg.TraderID,
		SourceAsset:      domain.MintWSOL,
		DestinationAsset: domain.MintUSDC,
		CallerIdentity:   env.cfg.Authority,
		CurrentTime:      testNow,
	}
}

// mustBeUnchanged asserts the stored config is field-for-field identical
// to the snapshot taken at setup.
func (env *testEnv) mustBeUnchanged(t *testing.T) {
	t.Helper()
	got, err := env.store.GetByID(context.Background(), env.cfg.TraderID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.Equal(env.cfg) {
		t.Errorf("config mutated by rejected execution:\n got %+v\nwant %+v", got, env.cfg)
	}
}

func TestExecuteTrade_Success(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.engine.ExecuteTrade(context.Background(), env.request())
	if err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}

	// 1_000_000 * 45000 * 9800 / 10000
	if want := uint64(44_100_000_000); out.MinOutput != want {
		t.Errorf("MinOutput: got %d, want %d", out.MinOutput, want)
	}
	if out.AmountIn != 1_000_000 {
		t.Errorf("AmountIn: got %d, want default 1000000", out.AmountIn)
	}
	if out.Price != 45000 {
		t.Errorf("Price: got %d, want 45000", out.Price)
	}
	if out.RealizedOutput < out.MinOutput {
		t.Errorf("RealizedOutput %d below MinOutput %d", out.RealizedOutput, out.MinOutput)
	}
	if out.TxReference == "" || out.AttemptRef == "" {
		t.Error("missing tx or attempt reference")
	}
	if out.ExecutedAt != testNow {
		t.Errorf("ExecutedAt: got %d, want %d", out.ExecutedAt, testNow)
	}

	got, _ := env.store.GetByID(context.Background(), env.cfg.TraderID)
	if got.TotalSwaps != 1 {
		t.Errorf("TotalSwaps: got %d, want 1", got.TotalSwaps)
	}
	if got.LastSwapTimestamp != testNow {
		t.Errorf("LastSwapTimestamp: got %d, want %d", got.LastSwapTimestamp, testNow)
	}

	calls := env.venue.Calls()
	if len(calls) != 1 {
		t.Fatalf("venue calls: got %d, want 1", len(calls))
	}
	if calls[0].MinOutput != out.MinOutput {
		t.Errorf("venue received MinOutput %d, want %d", calls[0].MinOutput, out.MinOutput)
	}
	if calls[0].AuthorizedCaller != env.cfg.Authority {
		t.Errorf("venue received caller %s, want authority", calls[0].AuthorizedCaller)
	}

	recs, _ := env.attempts.GetByTraderID(context.Background(), env.cfg.TraderID)
	if len(recs) != 1 || recs[0].Outcome != "OK" {
		t.Errorf("attempt log: got %+v, want one OK record", recs)
	}
}

func TestExecuteTrade_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	req := env.request()
	req.CallerIdentity = newAuthority(t)

	_, err := env.engine.ExecuteTrade(context.Background(), req)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	env.mustBeUnchanged(t)
	if len(env.venue.Calls()) != 0 {
		t.Error("venue must not be called on rejection")
	}
}

func TestExecuteTrade_Paused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.engine.SetPaused(ctx, env.cfg.TraderID, env.cfg.Authority, true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}

	_, err := env.engine.ExecuteTrade(ctx, env.request())
	if !errors.Is(err, ErrSystemPaused) {
		t.Fatalf("expected ErrSystemPaused, got %v", err)
	}

	// Unpause and the same request fills.
	if err := env.engine.SetPaused(ctx, env.cfg.TraderID, env.cfg.Authority, false); err != nil {
		t.Fatalf("unpause failed: %v", err)
	}
	if _, err := env.engine.ExecuteTrade(ctx, env.request()); err != nil {
		t.Fatalf("ExecuteTrade after unpause failed: %v", err)
	}
}

func TestExecuteTrade_AuthorityCheckedBeforePause(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.engine.SetPaused(ctx, env.cfg.TraderID, env.cfg.Authority, true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}

	req := env.request()
	req.CallerIdentity = newAuthority(t)

	_, err := env.engine.ExecuteTrade(ctx, req)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before pause check, got %v", err)
	}
}

func TestExecuteTrade_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.ExecuteTrade(ctx, env.request()); err != nil {
		t.Fatalf("first execution failed: %v", err)
	}

	// 30 seconds later: still cooling down.
	req := env.request()
	req.CurrentTime = testNow + 30
	env.source.Set(domain.MintWSOL, domain.PriceObservation{
		Asset: domain.MintWSOL, Price: 45000, Confidence: 100, ObservedAt: testNow + 30,
	})

	_, err := env.engine.ExecuteTrade(ctx, req)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Exactly at the cooldown boundary: allowed.
	req.CurrentTime = testNow + domain.CooldownSeconds
	env.source.Set(domain.MintWSOL, domain.PriceObservation{
		Asset: domain.MintWSOL, Price: 45000, Confidence: 100, ObservedAt: req.CurrentTime,
	})
	if _, err := env.engine.ExecuteTrade(ctx, req); err != nil {
		t.Fatalf("execution at cooldown boundary failed: %v", err)
	}
}

func TestExecuteTrade_PairNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	req := env.request()
	req.SourceAsset = domain.MintUSDC
	req.DestinationAsset = domain.MintUSDT

	_, err := env.engine.ExecuteTrade(context.Background(), req)
	if !errors.Is(err, ErrInvalidTokenPair) {
		t.Fatalf("expected ErrInvalidTokenPair, got %v", err)
	}
	env.mustBeUnchanged(t)
}

func TestExecuteTrade_ReversedPairAllowed(t *testing.T) {
	env := newTestEnv(t)

	req := env.request()
	req.SourceAsset = domain.MintUSDC
	req.DestinationAsset = domain.MintWSOL
	env.source.Set(domain.MintUSDC, domain.PriceObservation{
		Asset: domain.MintUSDC, Price: 45000, Confidence: 100, ObservedAt: testNow,
	})

	if _, err := env.engine.ExecuteTrade(context.Background(), req); err != nil {
		t.Fatalf("reversed pair should be allowed: %v", err)
	}
}

func TestExecuteTrade_AmountBounds(t *testing.T) {
	env := newTestEnv(t)

	req := env.request()
	req.Amount = domain.MaxSwapAmount + 1

	_, err := env.engine.ExecuteTrade(context.Background(), req)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	env.mustBeUnchanged(t)
}

func TestExecuteTrade_InsufficientBalance(t *testing.T) {
	balances := ledger.NewMemoryLedger()
	env := newTestEnv(t, WithLedger(balances))

	balances.SetBalance(env.cfg.Authority, domain.MintWSOL, 999_999)

	_, err := env.engine.ExecuteTrade(context.Background(), env.request())
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	env.mustBeUnchanged(t)

	balances.SetBalance(env.cfg.Authority, domain.MintWSOL, 1_000_000)
	if _, err := env.engine.ExecuteTrade(context.Background(), env.request()); err != nil {
		t.Fatalf("execution with exact balance failed: %v", err)
	}
}

func TestExecuteTrade_ThresholdNotMet(t *testing.T) {
	env := newTestEnv(t)

	env.source.Set(domain.MintWSOL, domain.PriceObservation{
		Asset: domain.MintWSOL, Price: 35000, Confidence: 100, ObservedAt: testNow,
	})

	_, err := env.engine.ExecuteTrade(context.Background(), env.request())
	if !errors.Is(err, ErrPriceThresholdNotMet) {
		t.Fatalf("expected ErrPriceThresholdNotMet, got %v", err)
	}
	env.mustBeUnchanged(t)
	if len(env.venue.Calls()) != 0 {
		t.Error("venue must not be called when the threshold is not met")
	}
}

func TestExecuteTrade_ThresholdBoundary(t *testing.T) {
	env := newTestEnv(t)

	// price == threshold executes.
	env.source.Set(domain.MintWSOL, domain.PriceObservation{
		Asset: domain.MintWSOL, Price: 40000, Confidence: 100, ObservedAt: testNow,
	})
	env.venue.RatePPM = 40_000 * 1_000_000

	if _, err := env.engine.ExecuteTrade(context.Background(), env.request()); err != nil {
		t.Fatalf("execution at threshold failed: %v", err)
	}
}

func TestExecuteTrade_StalePriceRejected(t *testing.T) {
	env := newTestEnv(t)

	env.source.Set(domain.MintWSOL, domain.PriceObservation{
		Asset: domain.MintWSOL, Price: 45000, Confidence: 100,
		ObservedAt: testNow - oracle.MaxStalenessSeconds - 1,
	})

	_, err := env.engine.ExecuteTrade(context.Background(), env.request())
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
	env.mustBeUnchanged(t)
}

func TestExecuteTrade_OracleUnavailable(t *testing.T) {
	env := newTestEnv(t)

	env.source.Fail(oracle.ErrUnavailable)

	_, err := env.engine.ExecuteTrade(context.Background(), env.request())
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Fatalf("expected oracle unavailable, got %v", err)
	}
	env.mustBeUnchanged(t)
}

// A venue failure after the effects phase keeps the counter and timestamp:
// failed interactions still consume the cooldown.
func TestExecuteTrade_VenueFailureKeepsAccounting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.venue.Fail(venue.ErrUnavailable)

	_, err := env.engine.ExecuteTrade(ctx, env.request())
	if !errors.Is(err, venue.ErrUnavailable) {
		t.Fatalf("expected venue unavailable, got %v", err)
	}

	got, _ := env.store.GetByID(ctx, env.cfg.TraderID)
	if got.TotalSwaps != 1 {
		t.Errorf("TotalSwaps: got %d, want 1 after venue failure", got.TotalSwaps)
	}
	if got.LastSwapTimestamp != testNow {
		t.Errorf("LastSwapTimestamp: got %d, want %d after venue failure", got.LastSwapTimestamp, testNow)
	}

	// The failed attempt consumed the cooldown.
	env.venue.Fail(nil)
	req := env.request()
	req.CurrentTime = testNow + 10
	_, err = env.engine.ExecuteTrade(ctx, req)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after failed attempt, got %v", err)
	}
}

func TestExecuteTrade_SlippageExceededSurfaced(t *testing.T) {
	env := newTestEnv(t)

	// Venue fills below the floor.
	env.venue.RatePPM = 40_000 * 1_000_000

	_, err := env.engine.ExecuteTrade(context.Background(), env.request())
	if !errors.Is(err, venue.ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}

	// Accounting was still consumed.
	got, _ := env.store.GetByID(context.Background(), env.cfg.TraderID)
	if got.TotalSwaps != 1 {
		t.Errorf("TotalSwaps: got %d, want 1", got.TotalSwaps)
	}
}

// A config whose stored tolerance exceeds the protocol bound must be
// rejected at execution time, not executed with a widened output floor.
func TestExecuteTrade_StoredSlippageAboveMaxRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	authority := newAuthority(t)
	tampered := &domain.TraderConfig{
		TraderID:          idhash.ComputeTraderID(authority),
		Authority:         authority,
		PriceThreshold:    40000,
		DefaultSwapAmount: 1_000_000,
		SlippageBps:       5000,
		CreatedAt:         testNow,
	}
	if err := env.store.Insert(ctx, tampered); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	req := env.request()
	req.TraderID = tampered.TraderID
	req.CallerIdentity = authority

	_, err := env.engine.ExecuteTrade(ctx, req)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(env.venue.Calls()) != 0 {
		t.Error("venue must not be called with an unenforceable output floor")
	}

	got, _ := env.store.GetByID(ctx, tampered.TraderID)
	if got.TotalSwaps != 0 || got.LastSwapTimestamp != 0 {
		t.Errorf("rejected execution mutated accounting: %+v", got)
	}
}

func TestExecuteTrade_UnknownTrader(t *testing.T) {
	env := newTestEnv(t)

	req := env.request()
	req.TraderID = "nonexistent"

	_, err := env.engine.ExecuteTrade(context.Background(), req)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecuteBandSwap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Price 45000 with short=42000, long=48000 classifies MID.
	cond := domain.BandCondition{ShortThreshold: 42000, LongThreshold: 48000, Target: domain.BandMid}
	if _, err := env.engine.ExecuteBandSwap(ctx, env.request(), cond); err != nil {
		t.Fatalf("band swap in MID failed: %v", err)
	}

	// Same price against a SHORT target is rejected without mutation.
	env2 := newTestEnv(t)
	cond.Target = domain.BandShort
	_, err := env2.engine.ExecuteBandSwap(ctx, env2.request(), cond)
	if !errors.Is(err, ErrConditionNotMet) {
		t.Fatalf("expected ErrConditionNotMet, got %v", err)
	}
	env2.mustBeUnchanged(t)
}

func TestExecuteBandSwap_InvalidThresholds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []domain.BandCondition{
		{ShortThreshold: 0, LongThreshold: 48000, Target: domain.BandMid},
		{ShortThreshold: 48000, LongThreshold: 42000, Target: domain.BandMid},
		{ShortThreshold: 42000, LongThreshold: 42000, Target: domain.BandMid},
		{ShortThreshold: 42000, LongThreshold: domain.PriceUpperBound, Target: domain.BandMid},
		{ShortThreshold: 42000, LongThreshold: 48000, Target: domain.Band("SIDEWAYS")},
	}
	for _, cond := range cases {
		if _, err := env.engine.ExecuteBandSwap(ctx, env.request(), cond); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("cond %+v: expected ErrInvalidInput, got %v", cond, err)
		}
	}
}

func TestInitializeTrader_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name        string
		authority   string
		threshold   int64
		amount      uint64
		slippageBps uint32
		wantErr     error
	}{
		{"bad authority", "not-a-key", 40000, 1_000_000, 200, ErrInvalidInput},
		{"zero threshold", newAuthority(t), 0, 1_000_000, 200, ErrInvalidInput},
		{"threshold at bound", newAuthority(t), domain.PriceUpperBound, 1_000_000, 200, ErrInvalidInput},
		{"zero amount", newAuthority(t), 40000, 0, 200, ErrInvalidInput},
		{"amount above max", newAuthority(t), 40000, domain.MaxSwapAmount + 1, 200, ErrInvalidInput},
		{"slippage above max", newAuthority(t), 40000, 1_000_000, 1001, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.InitializeTrader(ctx, tc.authority, tc.threshold, tc.amount, tc.slippageBps)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	// Max slippage is inclusive.
	cfg, err := env.engine.InitializeTrader(ctx, newAuthority(t), 40000, 1_000_000, 1000)
	if err != nil {
		t.Fatalf("slippage 1000 bps should be accepted: %v", err)
	}
	if cfg.TotalSwaps != 0 || cfg.LastSwapTimestamp != 0 || cfg.Paused {
		t.Errorf("fresh config not zeroed: %+v", cfg)
	}
}

func TestInitializeTrader_Duplicate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.InitializeTrader(context.Background(), env.cfg.Authority, 50000, 2_000_000, 100)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestSetPaused_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.SetPaused(context.Background(), env.cfg.TraderID, newAuthority(t), true)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	env.mustBeUnchanged(t)
}

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "OK"},
		{ErrUnauthorized, "UNAUTHORIZED"},
		{ErrRateLimited, "RATE_LIMITED"},
		{ErrPriceThresholdNotMet, "PRICE_THRESHOLD_NOT_MET"},
		{ErrConditionNotMet, "CONDITION_NOT_MET"},
		{oracle.ErrStalePrice, "STALE_PRICE"},
		{venue.ErrSlippageExceeded, "SLIPPAGE_EXCEEDED"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tc := range cases {
		if got := Code(tc.err); got != tc.want {
			t.Errorf("Code(%v): got %s, want %s", tc.err, got, tc.want)
		}
	}
}
