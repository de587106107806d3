// Package main runs the swap-guard service: an HTTP API in front of the
// conditional swap execution engine, with store, oracle, venue, and
// ledger wiring plus health/status/metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mr-tron/base58"

	"swap-guard/internal/domain"
	"swap-guard/internal/engine"
	"swap-guard/internal/identity"
	"swap-guard/internal/ledger"
	"swap-guard/internal/observability"
	"swap-guard/internal/oracle"
	oraclestub "swap-guard/internal/oracle/stub"
	"swap-guard/internal/policy"
	"swap-guard/internal/storage"
	chstore "swap-guard/internal/storage/clickhouse"
	"swap-guard/internal/storage/memory"
	"swap-guard/internal/storage/migrations"
	pgstore "swap-guard/internal/storage/postgres"
	"swap-guard/internal/venue"
	venuestub "swap-guard/internal/venue/stub"
)

// Server holds the engine and the state exposed on /status.
type Server struct {
	engine   *engine.Engine
	store    storage.TraderConfigStore
	attempts storage.AttemptLogStore
	logger   *log.Logger

	mu         sync.Mutex
	started    time.Time
	executions int
	fills      int
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP API listen address")
	oracleEndpoint := flag.String("oracle-endpoint", os.Getenv("ORACLE_ENDPOINT"), "Oracle HTTP endpoint")
	oracleWSEndpoint := flag.String("oracle-ws-endpoint", os.Getenv("ORACLE_WS_ENDPOINT"), "Oracle WebSocket endpoint (preferred over HTTP when set)")
	venueEndpoint := flag.String("venue-endpoint", os.Getenv("VENUE_ENDPOINT"), "Swap venue HTTP endpoint")
	ledgerEndpoint := flag.String("ledger-endpoint", os.Getenv("LEDGER_ENDPOINT"), "Token ledger JSON-RPC endpoint (empty disables the balance check)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (empty disables attempt telemetry)")
	pairList := flag.String("pairs", os.Getenv("ALLOWED_PAIRS"), "Comma-separated SOURCE:DEST asset pairs (empty uses defaults)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	useStubs := flag.Bool("use-stubs", false, "Use stub oracle and venue for local runs")
	requireSignatures := flag.Bool("require-signatures", false, "Require a signature header on execute requests")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useStubs {
		if *oracleEndpoint == "" && *oracleWSEndpoint == "" {
			logger.Fatal("--oracle-endpoint or --oracle-ws-endpoint is required (use --use-stubs for local runs)")
		}
		if *venueEndpoint == "" {
			logger.Fatal("--venue-endpoint is required (use --use-stubs for local runs)")
		}
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	pairs := policy.ParsePairList(*pairList)
	if len(pairs) == 0 {
		pairs = policy.DefaultPairs()
	}
	pairPolicy := policy.NewPairPolicy(pairs)
	logger.Printf("Allowed pairs: %d", len(pairPolicy.Pairs()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	store, attempts, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Oracle source
	source, sourceClose, err := createOracleSource(ctx, *useStubs, *oracleEndpoint, *oracleWSEndpoint, pairPolicy)
	if err != nil {
		logger.Fatalf("Failed to create oracle source: %v", err)
	}
	defer sourceClose()

	// Venue
	var ven venue.Venue
	if *useStubs {
		ven = venuestub.NewVenue()
		logger.Println("Using stub venue")
	} else {
		ven = venue.NewHTTPVenue(*venueEndpoint)
	}

	// Engine
	opts := []engine.Option{
		engine.WithLogger(log.New(os.Stdout, "[engine] ", log.LstdFlags)),
	}
	if *ledgerEndpoint != "" {
		opts = append(opts, engine.WithLedger(ledger.NewRPCLedger(*ledgerEndpoint)))
	}
	if attempts != nil {
		opts = append(opts, engine.WithAttemptLog(attempts))
	}
	eng := engine.New(store, pairPolicy, source, ven, opts...)

	server := &Server{
		engine:   eng,
		store:    store,
		attempts: attempts,
		logger:   logger,
		started:  time.Now(),
	}

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           server.routes(*requireSignatures),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	logger.Printf("Listening on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores wires the trader config store and the optional attempt log.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.TraderConfigStore, storage.AttemptLogStore, func(), error) {
	if useMemory {
		return memory.NewTraderConfigStore(), memory.NewAttemptLogStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}
	store := pgstore.NewTraderConfigStore(pool)

	if clickhouseDSN == "" {
		return store, nil, func() { pool.Close() }, nil
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	attempts := chstore.NewAttemptLogStore(chConn)

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return store, attempts, cleanup, nil
}

// createOracleSource picks the streaming source when a WS endpoint is set,
// otherwise the polling source. Stub mode serves a fixed price for every
// allow-listed asset.
func createOracleSource(ctx context.Context, useStubs bool, httpEndpoint, wsEndpoint string, pairs *policy.PairPolicy) (oracle.Source, func(), error) {
	if useStubs {
		src := oraclestub.NewSource()
		now := time.Now().Unix()
		for _, p := range pairs.Pairs() {
			for _, asset := range []string{p.A, p.B} {
				src.Set(asset, domain.PriceObservation{Asset: asset, Price: 50_000, Confidence: 100, ObservedAt: now})
			}
		}
		return src, func() {}, nil
	}

	if wsEndpoint != "" {
		assets := make(map[string]struct{})
		for _, p := range pairs.Pairs() {
			assets[p.A] = struct{}{}
			assets[p.B] = struct{}{}
		}
		list := make([]string, 0, len(assets))
		for a := range assets {
			list = append(list, a)
		}
		src, err := oracle.NewWSSource(ctx, wsEndpoint, list, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("connect oracle stream: %w", err)
		}
		return src, func() { src.Close() }, nil
	}

	return oracle.NewHTTPSource(httpEndpoint), func() {}, nil
}

// routes builds the HTTP mux.
func (s *Server) routes(requireSignatures bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/traders", s.handleInitializeTrader)
	mux.HandleFunc("GET /v1/traders/{id}", s.handleGetTrader)
	mux.HandleFunc("POST /v1/traders/{id}/pause", s.handleSetPaused)
	mux.HandleFunc("POST /v1/traders/{id}/execute", s.withSignature(requireSignatures, s.handleExecute))
	mux.HandleFunc("GET /v1/traders/{id}/attempts", s.handleGetAttempts)

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	return mux
}

type initializeRequest struct {
	Authority         string `json:"authority"`
	PriceThreshold    int64  `json:"price_threshold"`
	DefaultSwapAmount uint64 `json:"default_swap_amount"`
	SlippageBps       uint32 `json:"slippage_bps"`
}

type traderResponse struct {
	TraderID          string `json:"trader_id"`
	Authority         string `json:"authority"`
	PriceThreshold    int64  `json:"price_threshold"`
	DefaultSwapAmount uint64 `json:"default_swap_amount"`
	SlippageBps       uint32 `json:"slippage_bps"`
	TotalSwaps        uint64 `json:"total_swaps"`
	LastSwapTimestamp int64  `json:"last_swap_timestamp"`
	Paused            bool   `json:"paused"`
	CreatedAt         int64  `json:"created_at"`
}

func toTraderResponse(c *domain.TraderConfig) traderResponse {
	return traderResponse{
		TraderID:          c.TraderID,
		Authority:         c.Authority,
		PriceThreshold:    c.PriceThreshold,
		DefaultSwapAmount: c.DefaultSwapAmount,
		SlippageBps:       c.SlippageBps,
		TotalSwaps:        c.TotalSwaps,
		LastSwapTimestamp: c.LastSwapTimestamp,
		Paused:            c.Paused,
		CreatedAt:         c.CreatedAt,
	}
}

func (s *Server) handleInitializeTrader(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed JSON body")
		return
	}

	cfg, err := s.engine.InitializeTrader(r.Context(), req.Authority, req.PriceThreshold, req.DefaultSwapAmount, req.SlippageBps)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTraderResponse(cfg))
}

func (s *Server) handleGetTrader(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTraderResponse(cfg))
}

type pauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed JSON body")
		return
	}

	if err := s.engine.SetPaused(r.Context(), r.PathValue("id"), req.Caller, req.Paused); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

type executeRequest struct {
	SourceAsset      string `json:"source_asset"`
	DestinationAsset string `json:"destination_asset"`
	Amount           uint64 `json:"amount"`
	Caller           string `json:"caller"`
	CurrentTime      int64  `json:"current_time"`

	// Band fields are optional; when present the execution is gated on
	// the band instead of the configured threshold.
	Band *bandRequest `json:"band,omitempty"`
}

type bandRequest struct {
	ShortThreshold int64  `json:"short_threshold"`
	LongThreshold  int64  `json:"long_threshold"`
	Target         string `json:"target"`
}

type executeResponse struct {
	AttemptRef     string `json:"attempt_ref"`
	TxReference    string `json:"tx_reference"`
	AmountIn       uint64 `json:"amount_in"`
	MinOutput      uint64 `json:"min_output"`
	RealizedOutput uint64 `json:"realized_output"`
	Price          int64  `json:"price"`
	ExecutedAt     int64  `json:"executed_at"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, body []byte) {
	var req executeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed JSON body")
		return
	}

	swapReq := domain.SwapRequest{
		TraderID:         r.PathValue("id"),
		SourceAsset:      req.SourceAsset,
		DestinationAsset: req.DestinationAsset,
		Amount:           req.Amount,
		CallerIdentity:   req.Caller,
		CurrentTime:      req.CurrentTime,
	}

	var out *domain.SwapOutcome
	var err error
	if req.Band != nil {
		out, err = s.engine.ExecuteBandSwap(r.Context(), swapReq, domain.BandCondition{
			ShortThreshold: req.Band.ShortThreshold,
			LongThreshold:  req.Band.LongThreshold,
			Target:         domain.Band(strings.ToUpper(req.Band.Target)),
		})
	} else {
		out, err = s.engine.ExecuteTrade(r.Context(), swapReq)
	}

	s.mu.Lock()
	s.executions++
	if err == nil {
		s.fills++
	}
	s.mu.Unlock()

	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		AttemptRef:     out.AttemptRef,
		TxReference:    out.TxReference,
		AmountIn:       out.AmountIn,
		MinOutput:      out.MinOutput,
		RealizedOutput: out.RealizedOutput,
		Price:          out.Price,
		ExecutedAt:     out.ExecutedAt,
	})
}

func (s *Server) handleGetAttempts(w http.ResponseWriter, r *http.Request) {
	if s.attempts == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "attempt telemetry is not enabled")
		return
	}
	recs, err := s.attempts.GetByTraderID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// withSignature reads the body and, when required or supplied, verifies
// the X-Signature header (base58 ed25519 signature over the raw body)
// against the caller identity in the payload.
func (s *Server) withSignature(required bool, next func(http.ResponseWriter, *http.Request, []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "unreadable body")
			return
		}

		sigHeader := r.Header.Get("X-Signature")
		if sigHeader == "" {
			if required {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing X-Signature header")
				return
			}
			next(w, r, body)
			return
		}

		var partial struct {
			Caller string `json:"caller"`
		}
		if err := json.Unmarshal(body, &partial); err != nil || partial.Caller == "" {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "caller identity missing")
			return
		}
		sig, err := base58.Decode(sigHeader)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "malformed signature")
			return
		}
		if err := identity.Verify(partial.Caller, body, sig); err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "signature verification failed")
			return
		}
		next(w, r, body)
	}
}

type statusResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Executions int    `json:"executions"`
	Fills      int    `json:"fills"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "running",
		Uptime:     time.Since(s.started).String(),
		Executions: s.executions,
		Fills:      s.fills,
	})
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

// writeEngineError maps a typed engine failure to an HTTP status and a
// stable code.
func writeEngineError(w http.ResponseWriter, err error) {
	code := engine.Code(err)
	writeError(w, httpStatus(code), code, err.Error())
}

func httpStatus(code string) int {
	switch code {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "ALREADY_EXISTS":
		return http.StatusConflict
	case "UNAUTHORIZED":
		return http.StatusForbidden
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	case "SYSTEM_PAUSED", "PRICE_THRESHOLD_NOT_MET", "CONDITION_NOT_MET",
		"INSUFFICIENT_BALANCE", "SLIPPAGE_EXCEEDED", "INSUFFICIENT_LIQUIDITY",
		"COUNTER_OVERFLOW":
		return http.StatusConflict
	case "INVALID_INPUT", "INVALID_AMOUNT", "INVALID_TOKEN_PAIR":
		return http.StatusBadRequest
	case "STALE_PRICE", "FUTURE_PRICE", "INVALID_PRICE", "PRICE_TOO_LARGE",
		"LOW_CONFIDENCE", "ORACLE_UNAVAILABLE", "VENUE_UNAVAILABLE",
		"LEDGER_UNAVAILABLE":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// envOr returns the env var value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
