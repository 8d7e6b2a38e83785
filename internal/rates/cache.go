package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"budgetfx/internal/currency"
	"budgetfx/internal/kv"
)

// SnapshotKey is the single cache slot holding the most recent snapshot.
const SnapshotKey = "exchangeRates"

// Cache persists at most one snapshot.
type Cache interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
}

type cachedSnapshot struct {
	Rates        map[currency.Code]decimal.Decimal `json:"rates"`
	LastUpdate   string                            `json:"lastUpdate"`
	BaseCurrency currency.Code                     `json:"baseCurrency"`
	FetchedAt    time.Time                         `json:"fetchedAt"`
}

// KVCache stores the snapshot as JSON under SnapshotKey.
type KVCache struct {
	store kv.Store
}

// NewKVCache wraps a key-value store.
func NewKVCache(store kv.Store) *KVCache {
	return &KVCache{store: store}
}

// LoadSnapshot decodes the cached snapshot, returning kv.ErrNotFound when the slot is empty.
func (c *KVCache) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	raw, err := c.store.Get(ctx, SnapshotKey)
	if err != nil {
		return nil, err
	}

	var cached cachedSnapshot
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	if cached.BaseCurrency == "" || len(cached.Rates) == 0 {
		return nil, fmt.Errorf("decode cached snapshot: %w", ErrMissingRates)
	}

	return NewSnapshot(cached.BaseCurrency, cached.Rates, cached.FetchedAt, cached.LastUpdate), nil
}

// SaveSnapshot overwrites the slot, whatever base it held before.
func (c *KVCache) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	body, err := json.Marshal(cachedSnapshot{
		Rates:        snap.table,
		LastUpdate:   snap.ProviderUpdatedAt,
		BaseCurrency: snap.Base,
		FetchedAt:    snap.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.store.Put(ctx, SnapshotKey, body)
}

var _ Cache = (*KVCache)(nil)
