package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func TestTradeStore_Postgres(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		trade := &domain.TradeRecord{
			TradeID:       "trade1",
			DedupKey:      "pair1",
			BaseMint:      "mint1",
			PoolAddress:   "pool1",
			Wallet:        "wallet1",
			Status:        domain.StatusConfirmed,
			TxSignature:   "sig1",
			Attempts:      2,
			SpentLamports: 50_000_000,
			Score:         3.5,
			EventSlot:     12345,
			CompletedAt:   1000,
		}
		require.NoError(t, store.Insert(ctx, trade))

		got, err := store.GetByID(ctx, "trade1")
		require.NoError(t, err)
		require.Equal(t, domain.StatusConfirmed, got.Status)
		require.Equal(t, uint64(50_000_000), got.SpentLamports)
		require.Equal(t, "sig1", got.TxSignature)
	})

	t.Run("duplicate trade_id", func(t *testing.T) {
		err := store.Insert(ctx, &domain.TradeRecord{TradeID: "trade1", DedupKey: "pair1", CompletedAt: 1})
		require.True(t, errors.Is(err, storage.ErrDuplicateKey), "got %v", err)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetByID(ctx, "missing")
		require.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("get by dedup key ordered", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, &domain.TradeRecord{
			TradeID: "trade2", DedupKey: "pair1", Status: domain.StatusFailed,
			Failure: domain.FailExhausted, CompletedAt: 500,
		}))

		got, err := store.GetByDedupKey(ctx, "pair1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "trade2", got[0].TradeID)
		require.Equal(t, "trade1", got[1].TradeID)
		require.Equal(t, domain.FailExhausted, got[0].Failure)
	})

	t.Run("get by time range", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, &domain.TradeRecord{
			TradeID: "trade3", DedupKey: "pair2", Status: domain.StatusAbandoned,
			Reason: "no wallet available", CompletedAt: 2000,
		}))

		got, err := store.GetByTimeRange(ctx, 900, 2100)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "trade1", got[0].TradeID)
		require.Equal(t, "trade3", got[1].TradeID)
	})
}
