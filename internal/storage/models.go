package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
)

// SnapshotRecord is a persisted successful refresh.
type SnapshotRecord struct {
	ID                int64
	Base              currency.Code
	FetchedAt         time.Time
	ProviderUpdatedAt string
	Rates             map[currency.Code]decimal.Decimal
	CreatedAt         time.Time
}

// RecordFromSnapshot captures snap for history.
func RecordFromSnapshot(snap *rates.Snapshot) SnapshotRecord {
	return SnapshotRecord{
		Base:              snap.Base,
		FetchedAt:         snap.FetchedAt,
		ProviderUpdatedAt: snap.ProviderUpdatedAt,
		Rates:             snap.Rates(),
	}
}

// Snapshot rebuilds the immutable snapshot.
func (r SnapshotRecord) Snapshot() *rates.Snapshot {
	return rates.NewSnapshot(r.Base, r.Rates, r.FetchedAt, r.ProviderUpdatedAt)
}

// AlertRecord captures an emitted warning for cooldown and auditing.
type AlertRecord struct {
	ID        int64
	Kind      string
	Base      currency.Code
	Message   string
	CreatedAt time.Time
}
