package storage

import (
	"context"

	"swap-guard/internal/domain"
)

// TraderConfigStore provides access to trader_configs storage.
// Configs are created once and mutated only through the engine.
type TraderConfigStore interface {
	// Insert adds a new config. Returns ErrDuplicateKey if trader_id
	// (or the authority) already exists.
	Insert(ctx context.Context, c *domain.TraderConfig) error

	// GetByID retrieves a config by trader ID. Returns ErrNotFound if
	// not exists.
	GetByID(ctx context.Context, traderID string) (*domain.TraderConfig, error)

	// GetByAuthority retrieves the config owned by an authority.
	// Returns ErrNotFound if not exists.
	GetByAuthority(ctx context.Context, authority string) (*domain.TraderConfig, error)

	// CommitExecution persists attempt accounting: the post-increment
	// swap counter and the new last swap timestamp. Returns ErrStaleWrite
	// if the stored timestamp is newer than lastSwapTimestamp.
	CommitExecution(ctx context.Context, traderID string, totalSwaps uint64, lastSwapTimestamp int64) error

	// SetPaused flips the emergency-stop flag.
	SetPaused(ctx context.Context, traderID string, paused bool) error
}

// AttemptLogStore records execution-attempt telemetry. Optional and
// best-effort: engine behavior must not depend on it.
type AttemptLogStore interface {
	// Insert appends one attempt record.
	Insert(ctx context.Context, a *domain.ExecutionAttempt) error

	// GetByTraderID retrieves attempts for a trader, ordered by
	// attempted_at ASC.
	GetByTraderID(ctx context.Context, traderID string) ([]*domain.ExecutionAttempt, error)
}
