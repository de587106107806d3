package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"swap-guard/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPSource implements Source against a REST price API.
// Endpoint contract: GET {endpoint}/v1/price/{asset} returns
// {"asset": ..., "price": ..., "confidence": ..., "publish_time": ...}.
type HTTPSource struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// HTTPSourceOption configures HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// NewHTTPSource creates a price source backed by a REST endpoint.
func NewHTTPSource(endpoint string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// priceResponse is the wire format of the price endpoint.
type priceResponse struct {
	Asset       string `json:"asset"`
	Price       int64  `json:"price"`
	Confidence  uint64 `json:"confidence"`
	PublishTime int64  `json:"publish_time"`
}

// Compile-time interface check.
var _ Source = (*HTTPSource)(nil)

// GetPrice fetches the latest observation with retries and exponential
// backoff. Transport failures and 5xx responses are retried; any other
// failure is returned immediately as ErrUnavailable.
func (s *HTTPSource) GetPrice(ctx context.Context, asset string) (domain.PriceObservation, error) {
	reqURL := fmt.Sprintf("%s/v1/price/%s", s.endpoint, url.PathEscape(asset))

	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.PriceObservation{}, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		obs, retryable, err := s.fetch(ctx, reqURL, asset)
		if err == nil {
			return obs, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.PriceObservation{}, err
		}
		if !retryable {
			return domain.PriceObservation{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		lastErr = err
	}

	return domain.PriceObservation{}, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, s.maxRetries+1, lastErr)
}

func (s *HTTPSource) fetch(ctx context.Context, reqURL, asset string) (domain.PriceObservation, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.PriceObservation{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.PriceObservation{}, true, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PriceObservation{}, true, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 500 {
		return domain.PriceObservation{}, true, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PriceObservation{}, false, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return domain.PriceObservation{}, false, fmt.Errorf("decode response: %w", err)
	}

	return domain.PriceObservation{
		Asset:      asset,
		Price:      pr.Price,
		Confidence: pr.Confidence,
		ObservedAt: pr.PublishTime,
	}, false, nil
}
