package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// DefaultTimeout is the default RPC request timeout.
const DefaultTimeout = 15 * time.Second

// RPCLedger implements Ledger over JSON-RPC 2.0
// (getTokenAccountsByOwner-style interface).
type RPCLedger struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

// NewRPCLedger creates a ledger client for a JSON-RPC endpoint.
func NewRPCLedger(endpoint string) *RPCLedger {
	return &RPCLedger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// balanceResult mirrors the token-amount shape of the RPC: the amount is
// a decimal string because u64 does not survive JSON numbers.
type balanceResult struct {
	Value struct {
		Amount string `json:"amount"`
	} `json:"value"`
}

// Compile-time interface check.
var _ Ledger = (*RPCLedger)(nil)

// BalanceOf queries the balance of asset held by account.
func (l *RPCLedger) BalanceOf(ctx context.Context, account, asset string) (uint64, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      l.requestID.Add(1),
		Method:  "getTokenAccountBalance",
		Params:  []interface{}{account, map[string]string{"mint": asset}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if rpcResp.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, rpcResp.Error)
	}

	var result balanceResult
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return 0, fmt.Errorf("%w: decode result: %v", ErrUnavailable, err)
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse amount %q: %v", ErrUnavailable, result.Value.Amount, err)
	}
	return amount, nil
}
