// Package oracle provides price observation sources and the validation
// applied to every observation before it is trusted.
package oracle

import (
	"context"
	"errors"

	"swap-guard/internal/domain"
)

// Validation bounds. Observations outside these are rejected on every
// call; validation at configuration time is not a substitute.
const (
	// MaxStalenessSeconds is the maximum accepted observation age.
	MaxStalenessSeconds = 120

	// MaxConfidenceBps is the maximum accepted confidence interval,
	// as a fraction of price (500 bps = 5%).
	MaxConfidenceBps = 500
)

// Validation and availability errors.
var (
	// ErrUnavailable is returned when no observation can be produced.
	ErrUnavailable = errors.New("oracle unavailable")

	// ErrStalePrice is returned when the observation is older than
	// MaxStalenessSeconds.
	ErrStalePrice = errors.New("stale price observation")

	// ErrFuturePrice is returned when the observation claims to be
	// from the future.
	ErrFuturePrice = errors.New("price observation from the future")

	// ErrInvalidPrice is returned for non-positive prices.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrPriceTooLarge is returned for prices at or above the upper bound.
	ErrPriceTooLarge = errors.New("price exceeds upper bound")

	// ErrLowConfidence is returned when the confidence interval is too
	// wide relative to the price.
	ErrLowConfidence = errors.New("price confidence too low")
)

// Source supplies price observations for an asset.
type Source interface {
	// GetPrice returns the latest observation for the asset, or
	// ErrUnavailable when none can be produced.
	GetPrice(ctx context.Context, asset string) (domain.PriceObservation, error)
}

// Validate rejects observations that are stale, from the future, out of
// price bounds, or too uncertain. now is the request's current time in
// unix seconds. Check order is fixed: staleness, future, price sign,
// price bound, confidence.
func Validate(obs domain.PriceObservation, now int64) error {
	if obs.ObservedAt < now-MaxStalenessSeconds {
		return ErrStalePrice
	}
	if obs.ObservedAt > now {
		return ErrFuturePrice
	}
	if obs.Price <= 0 {
		return ErrInvalidPrice
	}
	if obs.Price >= domain.PriceUpperBound {
		return ErrPriceTooLarge
	}
	// confidence/price > 5% in integer form: conf * 10000 > price * 500,
	// i.e. conf * 20 > price. Price is positive and bounded here, so the
	// products fit comfortably in uint64.
	if obs.Confidence*20 > uint64(obs.Price) {
		return ErrLowConfidence
	}
	return nil
}
