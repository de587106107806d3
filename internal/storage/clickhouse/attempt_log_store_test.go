package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"swap-guard/internal/domain"
	"swap-guard/internal/storage"
)

func TestAttemptLogStore_InsertAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAttemptLogStore(conn)
	ctx := context.Background()

	attempts := []*domain.ExecutionAttempt{
		{
			AttemptRef:       "ref-1",
			TraderID:         "trader1",
			SourceAsset:      "WSOL",
			DestinationAsset: "USDC",
			AmountIn:         1_000_000,
			MinOutput:        44_100_000_000,
			Price:            45000,
			Outcome:          "PRICE_THRESHOLD_NOT_MET",
			AttemptedAt:      1_700_000_000,
		},
		{
			AttemptRef:       "ref-2",
			TraderID:         "trader1",
			SourceAsset:      "WSOL",
			DestinationAsset: "USDC",
			AmountIn:         1_000_000,
			MinOutput:        44_100_000_000,
			RealizedOutput:   44_500_000_000,
			Price:            45000,
			Outcome:          "OK",
			TxReference:      "tx-abc",
			AttemptedAt:      1_700_000_100,
		},
	}
	for _, a := range attempts {
		require.NoError(t, store.Insert(ctx, a))
	}

	got, err := store.GetByTraderID(ctx, "trader1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by attempted_at ASC.
	require.Equal(t, "ref-1", got[0].AttemptRef)
	require.Equal(t, "ref-2", got[1].AttemptRef)
	require.Equal(t, "OK", got[1].Outcome)
	require.Equal(t, uint64(44_500_000_000), got[1].RealizedOutput)
	require.Equal(t, "tx-abc", got[1].TxReference)
}

func TestAttemptLogStore_InsertInvalid(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAttemptLogStore(conn)
	ctx := context.Background()

	err := store.Insert(ctx, &domain.ExecutionAttempt{TraderID: "trader1"})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAttemptLogStore_GetEmpty(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAttemptLogStore(conn)

	got, err := store.GetByTraderID(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, got)
}
