package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/repository"
)

func snapshot(conid, account, symbol string, qty int64, fetchedAt time.Time) *models.PositionSnapshot {
	return &models.PositionSnapshot{
		Conid:                   conid,
		InternalAccountID:       account,
		Symbol:                  symbol,
		AccountingQuantity:      decimal.NewNullDecimal(decimal.NewFromInt(qty)),
		MarketValue:             decimal.NewNullDecimal(decimal.NewFromInt(300)),
		ComputedCashFlowOnEntry: decimal.NewNullDecimal(decimal.NewFromInt(500)),
		FetchedAt:               fetchedAt,
	}
}

func TestPositionsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	t.Run("InsertPositionSnapshots assigns ids", func(t *testing.T) {
		testDB.TruncateAll(t)

		snapshots := []*models.PositionSnapshot{
			snapshot("123", "acct-1", "META 251220C560", -10, time.Time{}),
			snapshot("456", "acct-1", "SPY 260116P450", 5, time.Time{}),
		}
		snapshots[0].LegalEntity = "Fund LP"

		require.NoError(t, testDB.InsertPositionSnapshots(ctx, snapshots))
		assert.NotZero(t, snapshots[0].ID)
		assert.Greater(t, snapshots[1].ID, snapshots[0].ID)
		assert.False(t, snapshots[0].FetchedAt.IsZero())
	})

	t.Run("EarliestObservation returns the first row by id", func(t *testing.T) {
		testDB.TruncateAll(t)

		first := time.Date(2025, 11, 20, 15, 19, 2, 0, time.UTC)
		// inserted later but with an earlier timestamp: ordering is by id, not by time
		require.NoError(t, testDB.InsertPositionSnapshots(ctx, []*models.PositionSnapshot{
			snapshot("123", "acct-1", "META 251220C560", -10, first),
		}))
		require.NoError(t, testDB.InsertPositionSnapshots(ctx, []*models.PositionSnapshot{
			snapshot("123", "acct-1", "META 251220C560", -10, first.Add(-48*time.Hour)),
			snapshot("123", "acct-2", "META 251220C560", -10, first.Add(24*time.Hour)),
		}))

		observedAt, err := testDB.EarliestObservation(ctx, "123", "acct-1")
		require.NoError(t, err)
		assert.True(t, first.Equal(observedAt))

		observedAt, err = testDB.EarliestObservation(ctx, "123", "acct-2")
		require.NoError(t, err)
		assert.True(t, first.Add(24*time.Hour).Equal(observedAt))
	})

	t.Run("EarliestObservation returns ErrNotFound for unknown position", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.EarliestObservation(ctx, "999", "acct-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("GetLatestPositions returns the newest row per conid", func(t *testing.T) {
		testDB.TruncateAll(t)

		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, testDB.InsertPositionSnapshots(ctx, []*models.PositionSnapshot{
			snapshot("123", "acct-1", "META 251220C560", -10, now.Add(-time.Hour)),
			snapshot("456", "acct-1", "SPY 260116P450", 5, now.Add(-time.Hour)),
			snapshot("123", "acct-1", "META 251220C560", -8, now),
			snapshot("789", "acct-2", "QQQ 260116C500", 1, now),
		}))

		latest, err := testDB.GetLatestPositions(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, latest, 2)

		assert.Equal(t, "123", latest[0].Conid)
		assert.True(t, latest[0].AccountingQuantity.Decimal.Equal(decimal.NewFromInt(-8)))
		assert.Equal(t, "456", latest[1].Conid)
		assert.Empty(t, latest[1].LegalEntity)
	})

	t.Run("GetLatestPositions keeps null numeric fields null", func(t *testing.T) {
		testDB.TruncateAll(t)

		s := snapshot("123", "acct-1", "META 251220C560", -10, time.Time{})
		s.MarketValue = decimal.NullDecimal{}
		require.NoError(t, testDB.InsertPositionSnapshots(ctx, []*models.PositionSnapshot{s}))

		latest, err := testDB.GetLatestPositions(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.False(t, latest[0].MarketValue.Valid)
		assert.True(t, latest[0].ComputedCashFlowOnEntry.Valid)
	})

	t.Run("GetPositionKeysSince filters by fetched_at", func(t *testing.T) {
		testDB.TruncateAll(t)

		now := time.Now().UTC()
		require.NoError(t, testDB.InsertPositionSnapshots(ctx, []*models.PositionSnapshot{
			snapshot("123", "acct-1", "META 251220C560", -10, now.Add(-72*time.Hour)),
			snapshot("456", "acct-1", "SPY 260116P450", 5, now),
			snapshot("456", "acct-1", "SPY 260116P450", 5, now),
		}))

		keys, err := testDB.GetPositionKeysSince(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []models.PositionKey{{Conid: "456", InternalAccountID: "acct-1"}}, keys)
	})
}
