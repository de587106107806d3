package engine

import (
	"errors"

	"swap-guard/internal/ledger"
	"swap-guard/internal/oracle"
	"swap-guard/internal/storage"
	"swap-guard/internal/venue"
)

// Execution check failures. Every rejection path surfaces one of these,
// possibly wrapped.
var (
	// ErrUnauthorized is returned when the caller identity does not match
	// the config authority.
	ErrUnauthorized = errors.New("caller is not the config authority")

	// ErrSystemPaused is returned when the config's emergency stop is set.
	ErrSystemPaused = errors.New("trading is paused")

	// ErrRateLimited is returned when the per-trader cooldown has not
	// elapsed.
	ErrRateLimited = errors.New("cooldown has not elapsed")

	// ErrInvalidTokenPair is returned when the requested pair is not
	// allow-listed.
	ErrInvalidTokenPair = errors.New("asset pair not allowed")

	// ErrInvalidAmount is returned when the swap amount is zero, exceeds
	// the maximum, or produces an output bound that does not fit.
	ErrInvalidAmount = errors.New("invalid swap amount")

	// ErrInvalidInput is returned for malformed configuration parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCounterOverflow is returned when incrementing the swap counter
	// would wrap.
	ErrCounterOverflow = errors.New("swap counter overflow")

	// ErrInsufficientBalance is returned when the trader holds less of
	// the source asset than the swap amount.
	ErrInsufficientBalance = errors.New("insufficient source asset balance")

	// ErrPriceThresholdNotMet is returned when the validated price is
	// below the configured threshold.
	ErrPriceThresholdNotMet = errors.New("price below threshold")

	// ErrConditionNotMet is returned when the validated price does not
	// fall in the requested band.
	ErrConditionNotMet = errors.New("price not in requested band")
)

// Code maps any execution failure to a stable string for the HTTP surface,
// telemetry, and metrics. nil maps to "OK"; unrecognized errors map to
// "INTERNAL".
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrSystemPaused):
		return "SYSTEM_PAUSED"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrInvalidTokenPair):
		return "INVALID_TOKEN_PAIR"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrCounterOverflow):
		return "COUNTER_OVERFLOW"
	case errors.Is(err, ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, ErrPriceThresholdNotMet):
		return "PRICE_THRESHOLD_NOT_MET"
	case errors.Is(err, ErrConditionNotMet):
		return "CONDITION_NOT_MET"
	case errors.Is(err, oracle.ErrStalePrice):
		return "STALE_PRICE"
	case errors.Is(err, oracle.ErrFuturePrice):
		return "FUTURE_PRICE"
	case errors.Is(err, oracle.ErrInvalidPrice):
		return "INVALID_PRICE"
	case errors.Is(err, oracle.ErrPriceTooLarge):
		return "PRICE_TOO_LARGE"
	case errors.Is(err, oracle.ErrLowConfidence):
		return "LOW_CONFIDENCE"
	case errors.Is(err, oracle.ErrUnavailable):
		return "ORACLE_UNAVAILABLE"
	case errors.Is(err, venue.ErrSlippageExceeded):
		return "SLIPPAGE_EXCEEDED"
	case errors.Is(err, venue.ErrInsufficientLiquidity):
		return "INSUFFICIENT_LIQUIDITY"
	case errors.Is(err, venue.ErrUnavailable):
		return "VENUE_UNAVAILABLE"
	case errors.Is(err, ledger.ErrUnavailable):
		return "LEDGER_UNAVAILABLE"
	case errors.Is(err, storage.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, storage.ErrDuplicateKey):
		return "ALREADY_EXISTS"
	default:
		return "INTERNAL"
	}
}
