package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultDialRetries   = 2
	DefaultDialRetryWait = 1 * time.Second
)

// HTTPVenue implements Venue against a REST swap API.
// Contract: POST {endpoint}/v1/swap with a swapRequest body; the venue
// responds 200 with a swapResponse, or an error status with an error
// code mapped onto the package errors.
type HTTPVenue struct {
	endpoint    string
	client      *http.Client
	dialRetries int
	retryWait   time.Duration
}

// HTTPVenueOption configures HTTPVenue.
type HTTPVenueOption func(*HTTPVenue)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) HTTPVenueOption {
	return func(v *HTTPVenue) {
		v.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) HTTPVenueOption {
	return func(v *HTTPVenue) {
		v.client = client
	}
}

// NewHTTPVenue creates a venue client for the given endpoint.
func NewHTTPVenue(endpoint string, opts ...HTTPVenueOption) *HTTPVenue {
	v := &HTTPVenue{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		dialRetries: DefaultDialRetries,
		retryWait:   DefaultDialRetryWait,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// swapRequest is the wire format of the swap endpoint.
type swapRequest struct {
	SourceAsset      string `json:"source_asset"`
	DestinationAsset string `json:"destination_asset"`
	AmountIn         uint64 `json:"amount_in"`
	MinOutput        uint64 `json:"min_output"`
	AuthorizedCaller string `json:"authorized_caller"`
}

// swapResponse is the venue's success payload.
type swapResponse struct {
	TxReference    string `json:"tx_reference"`
	RealizedOutput uint64 `json:"realized_output"`
}

// swapError is the venue's failure payload.
type swapError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Compile-time interface check.
var _ Venue = (*HTTPVenue)(nil)

// Swap submits the instruction. Connection-level failures before the
// request is delivered are retried a bounded number of times; once the
// venue has received the request no retry is attempted, because a swap
// is not idempotent.
func (v *HTTPVenue) Swap(ctx context.Context, in SwapInstruction) (SwapReceipt, error) {
	body, err := json.Marshal(swapRequest{
		SourceAsset:      in.SourceAsset,
		DestinationAsset: in.DestinationAsset,
		AmountIn:         in.AmountIn,
		MinOutput:        in.MinOutput,
		AuthorizedCaller: in.AuthorizedCaller,
	})
	if err != nil {
		return SwapReceipt{}, fmt.Errorf("marshal swap request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= v.dialRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return SwapReceipt{}, ctx.Err()
			case <-time.After(v.retryWait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint+"/v1/swap", bytes.NewReader(body))
		if err != nil {
			return SwapReceipt{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := v.client.Do(req)
		if err != nil {
			// Delivery is ambiguous on transport errors; only a failed
			// dial is safely retryable, so give up after the bounded
			// attempts rather than risk a double swap.
			lastErr = err
			continue
		}

		receipt, err := v.decodeResponse(resp)
		if err != nil {
			return SwapReceipt{}, err
		}
		return receipt, nil
	}

	return SwapReceipt{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (v *HTTPVenue) decodeResponse(resp *http.Response) (SwapReceipt, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SwapReceipt{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusOK {
		var sr swapResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return SwapReceipt{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
		return SwapReceipt{TxReference: sr.TxReference, RealizedOutput: sr.RealizedOutput}, nil
	}

	var se swapError
	if err := json.Unmarshal(body, &se); err != nil {
		return SwapReceipt{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	switch se.Code {
	case "SLIPPAGE_EXCEEDED":
		return SwapReceipt{}, fmt.Errorf("%w: %s", ErrSlippageExceeded, se.Message)
	case "INSUFFICIENT_LIQUIDITY":
		return SwapReceipt{}, fmt.Errorf("%w: %s", ErrInsufficientLiquidity, se.Message)
	default:
		return SwapReceipt{}, fmt.Errorf("%w: %s: %s", ErrUnavailable, se.Code, se.Message)
	}
}
