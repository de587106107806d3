package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"swap-guard/internal/domain"
	"swap-guard/internal/observability"
	"swap-guard/internal/storage"
)

// TraderConfigStore implements storage.TraderConfigStore using PostgreSQL.
type TraderConfigStore struct {
	pool *Pool
}

// NewTraderConfigStore creates a new TraderConfigStore.
func NewTraderConfigStore(pool *Pool) *TraderConfigStore {
	return &TraderConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TraderConfigStore = (*TraderConfigStore)(nil)

// Insert adds a new config. Returns ErrDuplicateKey if trader_id or the
// authority already exists.
func (s *TraderConfigStore) Insert(ctx context.Context, c *domain.TraderConfig) error {
	if c == nil || c.TraderID == "" || c.Authority == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trader_configs (
			trader_id, authority, price_threshold, default_swap_amount,
			slippage_bps, total_swaps, last_swap_timestamp, paused, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		c.TraderID, c.Authority, c.PriceThreshold, int64(c.DefaultSwapAmount),
		int32(c.SlippageBps), int64(c.TotalSwaps), c.LastSwapTimestamp, c.Paused, c.CreatedAt,
	)
	observability.RecordDBQuery("postgres", "insert_trader_config", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trader config: %w", err)
	}
	return nil
}

// GetByID retrieves a config by trader ID. Returns ErrNotFound if not exists.
func (s *TraderConfigStore) GetByID(ctx context.Context, traderID string) (*domain.TraderConfig, error) {
	query := `
		SELECT
			trader_id, authority, price_threshold, default_swap_amount,
			slippage_bps, total_swaps, last_swap_timestamp, paused, created_at
		FROM trader_configs
		WHERE trader_id = $1
	`

	start := time.Now()
	c, err := scanTraderConfig(s.pool.QueryRow(ctx, query, traderID))
	observability.RecordDBQuery("postgres", "get_trader_config_by_id", time.Since(start).Seconds(), err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trader config by id: %w", err)
	}
	return c, nil
}

// GetByAuthority retrieves the config owned by an authority.
func (s *TraderConfigStore) GetByAuthority(ctx context.Context, authority string) (*domain.TraderConfig, error) {
	query := `
		SELECT
			trader_id, authority, price_threshold, default_swap_amount,
			slippage_bps, total_swaps, last_swap_timestamp, paused, created_at
		FROM trader_configs
		WHERE authority = $1
	`

	start := time.Now()
	c, err := scanTraderConfig(s.pool.QueryRow(ctx, query, authority))
	observability.RecordDBQuery("postgres", "get_trader_config_by_authority", time.Since(start).Seconds(), err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trader config by authority: %w", err)
	}
	return c, nil
}

// CommitExecution persists attempt accounting. The update is conditional so
// the timestamp never moves backwards even under concurrent commits.
func (s *TraderConfigStore) CommitExecution(ctx context.Context, traderID string, totalSwaps uint64, lastSwapTimestamp int64) error {
	query := `
		UPDATE trader_configs
		SET total_swaps = $2, last_swap_timestamp = $3
		WHERE trader_id = $1 AND last_swap_timestamp <= $3
	`

	start := time.Now()
	tag, err := s.pool.Exec(ctx, query, traderID, int64(totalSwaps), lastSwapTimestamp)
	observability.RecordDBQuery("postgres", "commit_execution", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("commit execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a rejected stale write.
		if _, err := s.GetByID(ctx, traderID); err != nil {
			return err
		}
		return storage.ErrStaleWrite
	}
	return nil
}

// SetPaused flips the emergency-stop flag.
func (s *TraderConfigStore) SetPaused(ctx context.Context, traderID string, paused bool) error {
	query := `
		UPDATE trader_configs
		SET paused = $2
		WHERE trader_id = $1
	`

	start := time.Now()
	tag, err := s.pool.Exec(ctx, query, traderID, paused)
	observability.RecordDBQuery("postgres", "set_paused", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanTraderConfig scans a single row into a TraderConfig.
func scanTraderConfig(row pgx.Row) (*domain.TraderConfig, error) {
	var c domain.TraderConfig
	var defaultSwapAmount, totalSwaps int64
	var slippageBps int32

	err := row.Scan(
		&c.TraderID, &c.Authority, &c.PriceThreshold, &defaultSwapAmount,
		&slippageBps, &totalSwaps, &c.LastSwapTimestamp, &c.Paused, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.DefaultSwapAmount = uint64(defaultSwapAmount)
	c.TotalSwaps = uint64(totalSwaps)
	c.SlippageBps = uint32(slippageBps)
	return &c, nil
}
