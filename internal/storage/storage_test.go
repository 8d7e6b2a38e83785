package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetfx/internal/config"
	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
)

func TestUnconfiguredStoreReturnsErrNotConfigured(t *testing.T) {
	ctx := context.Background()
	var s *Store

	assert.ErrorIs(t, s.InsertSnapshot(ctx, SnapshotRecord{}), ErrNotConfigured)
	_, err := s.ListRecentSnapshots(ctx, currency.USD, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.ListSnapshotsBetween(ctx, currency.USD, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.CountSnapshots(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, _, err = s.LastAlertAt(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, _, err = s.TryAdvisoryLock(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	s.Close()
}

func TestNewPoolRequiresDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{})
	require.Error(t, err)
}

func TestRatesPayloadRoundTrip(t *testing.T) {
	table := map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.9123"),
		currency.JPY: decimal.RequireFromString("151.7"),
	}
	payload, err := encodeRates(table)
	require.NoError(t, err)

	got, err := decodeRates(payload)
	require.NoError(t, err)
	assert.True(t, got[currency.EUR].Equal(table[currency.EUR]))
	assert.True(t, got[currency.JPY].Equal(table[currency.JPY]))

	_, err = decodeRates([]byte("nope"))
	assert.Error(t, err)
}

func TestRecordSnapshotConversion(t *testing.T) {
	snap := rates.NewSnapshot(currency.USD, map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.9"),
	}, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "Sat, 01 Mar 2025")

	rec := RecordFromSnapshot(snap)
	back := rec.Snapshot()
	assert.Equal(t, snap.Base, back.Base)
	assert.Equal(t, snap.FetchedAt, back.FetchedAt)
	assert.Equal(t, snap.ProviderUpdatedAt, back.ProviderUpdatedAt)
	assert.True(t, back.Rates()[currency.EUR].Equal(decimal.RequireFromString("0.9")))
}
