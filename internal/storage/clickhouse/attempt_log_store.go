package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"swap-guard/internal/domain"
	"swap-guard/internal/observability"
	"swap-guard/internal/storage"
)

// AttemptLogStore implements storage.AttemptLogStore using ClickHouse.
// MergeTree enforces no uniqueness; attempt refs are unique by construction
// upstream, so inserts go straight through.
type AttemptLogStore struct {
	conn *Conn
}

// NewAttemptLogStore creates a new AttemptLogStore.
func NewAttemptLogStore(conn *Conn) *AttemptLogStore {
	return &AttemptLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AttemptLogStore = (*AttemptLogStore)(nil)

// Insert appends one attempt record.
func (s *AttemptLogStore) Insert(ctx context.Context, a *domain.ExecutionAttempt) (err error) {
	if a == nil || a.TraderID == "" || a.AttemptRef == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_attempt", time.Since(start).Seconds(), err)
	}()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO attempt_log (
			attempt_ref, trader_id, source_asset, destination_asset,
			amount_in, min_output, realized_output, price,
			outcome, tx_reference, attempted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		a.AttemptRef, a.TraderID, a.SourceAsset, a.DestinationAsset,
		a.AmountIn, a.MinOutput, a.RealizedOutput, a.Price,
		a.Outcome, a.TxReference, a.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTraderID retrieves attempts for a trader, ordered by attempted_at ASC.
func (s *AttemptLogStore) GetByTraderID(ctx context.Context, traderID string) ([]*domain.ExecutionAttempt, error) {
	query := `
		SELECT
			attempt_ref, trader_id, source_asset, destination_asset,
			amount_in, min_output, realized_output, price,
			outcome, tx_reference, attempted_at
		FROM attempt_log
		WHERE trader_id = ?
		ORDER BY attempted_at ASC, attempt_ref ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, traderID)
	observability.RecordDBQuery("clickhouse", "get_attempts_by_trader", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query attempts by trader id: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// scanAttempts scans multiple rows.
func scanAttempts(rows driver.Rows) ([]*domain.ExecutionAttempt, error) {
	var attempts []*domain.ExecutionAttempt

	for rows.Next() {
		var a domain.ExecutionAttempt

		err := rows.Scan(
			&a.AttemptRef, &a.TraderID, &a.SourceAsset, &a.DestinationAsset,
			&a.AmountIn, &a.MinOutput, &a.RealizedOutput, &a.Price,
			&a.Outcome, &a.TxReference, &a.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}

		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}

	return attempts, nil
}
