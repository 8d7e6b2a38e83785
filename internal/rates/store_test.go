package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetfx/internal/currency"
	"budgetfx/internal/kv"
)

type providerFunc func(ctx context.Context, base currency.Code) (*Snapshot, error)

func (f providerFunc) FetchRates(ctx context.Context, base currency.Code) (*Snapshot, error) {
	return f(ctx, base)
}

type failingCache struct{}

func (failingCache) LoadSnapshot(context.Context) (*Snapshot, error) {
	return nil, errors.New("storage disabled")
}

func (failingCache) SaveSnapshot(context.Context, *Snapshot) error {
	return errors.New("storage disabled")
}

func usdSnapshot(eur string) *Snapshot {
	return NewSnapshot(currency.USD, map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString(eur),
		currency.GBP: decimal.RequireFromString("0.8"),
	}, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), "Thu, 02 Jan 2025 00:00:01 +0000")
}

func TestSnapshotRateBaseIsImplicit(t *testing.T) {
	snap := NewSnapshot(currency.USD, map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.9"),
		currency.JPY: decimal.Zero,
	}, time.Now(), "")

	rate, ok := snap.Rate(currency.USD)
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	_, ok = snap.Rate(currency.JPY)
	assert.False(t, ok, "zero rates are unusable")

	_, ok = snap.Rate("XYZ")
	assert.False(t, ok)

	var nilSnap *Snapshot
	_, ok = nilSnap.Rate(currency.USD)
	assert.False(t, ok)
}

func TestRefreshInstallsAndPersists(t *testing.T) {
	cache := NewKVCache(kv.NewMemory())
	store := NewStore(providerFunc(func(context.Context, currency.Code) (*Snapshot, error) {
		return usdSnapshot("0.9"), nil
	}), cache, Options{}, zerolog.Nop())

	var notified atomic.Int32
	store.OnChange(func(*Snapshot) { notified.Add(1) })

	res, err := store.Refresh(context.Background(), currency.USD)
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Same(t, res.Snapshot, store.Current())
	assert.EqualValues(t, 1, notified.Load())

	cached, err := cache.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, currency.USD, cached.Base)
	assert.True(t, cached.Rates()[currency.EUR].Equal(decimal.RequireFromString("0.9")))
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	fail := false
	store := NewStore(providerFunc(func(context.Context, currency.Code) (*Snapshot, error) {
		if fail {
			return nil, errors.New("network unreachable")
		}
		return usdSnapshot("0.9"), nil
	}), nil, Options{}, zerolog.Nop())

	first, err := store.Refresh(context.Background(), currency.USD)
	require.NoError(t, err)

	fail = true
	res, err := store.Refresh(context.Background(), currency.USD)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Same(t, first.Snapshot, store.Current())

	var fe *FetchError
	require.ErrorAs(t, res.Warning, &fe)
	assert.Equal(t, currency.USD, fe.Base)
}

func TestRefreshFailureFallsBackToMatchingCache(t *testing.T) {
	ctx := context.Background()
	cache := NewKVCache(kv.NewMemory())
	require.NoError(t, cache.SaveSnapshot(ctx, usdSnapshot("0.91")))

	store := NewStore(providerFunc(func(context.Context, currency.Code) (*Snapshot, error) {
		return nil, &FetchError{Base: currency.USD, StatusCode: 503, Err: errors.New("unavailable")}
	}), cache, Options{}, zerolog.Nop())

	res, err := store.Refresh(ctx, currency.USD)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	require.NotNil(t, store.Current())
	assert.True(t, store.Current().Rates()[currency.EUR].Equal(decimal.RequireFromString("0.91")))

	var fe *FetchError
	require.ErrorAs(t, res.Warning, &fe)
	assert.Equal(t, 503, fe.StatusCode)
}

func TestRefreshFailureWithoutMatchingCacheFails(t *testing.T) {
	ctx := context.Background()
	cache := NewKVCache(kv.NewMemory())
	require.NoError(t, cache.SaveSnapshot(ctx, usdSnapshot("0.9")))

	store := NewStore(providerFunc(func(context.Context, currency.Code) (*Snapshot, error) {
		return nil, errors.New("dial tcp: connection refused")
	}), cache, Options{}, zerolog.Nop())

	res, err := store.Refresh(ctx, currency.EUR)
	require.Error(t, err)
	assert.Nil(t, res.Snapshot)
	assert.Nil(t, store.Current())

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, currency.EUR, fe.Base)
}

func TestLoadAdoptsCachedSnapshotBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	cache := NewKVCache(kv.NewMemory())
	require.NoError(t, cache.SaveSnapshot(ctx, usdSnapshot("0.88")))

	release := make(chan struct{})
	store := NewStore(providerFunc(func(ctx context.Context, _ currency.Code) (*Snapshot, error) {
		<-release
		return usdSnapshot("0.95"), nil
	}), cache, Options{}, zerolog.Nop())

	outcome := store.Start(ctx, currency.USD)

	cur := store.Current()
	require.NotNil(t, cur, "cached snapshot must be available immediately")
	assert.True(t, cur.Rates()[currency.EUR].Equal(decimal.RequireFromString("0.88")))
	assert.True(t, store.Loading())

	close(release)
	got := <-outcome
	require.NoError(t, got.Err)
	assert.True(t, store.Current().Rates()[currency.EUR].Equal(decimal.RequireFromString("0.95")))
	assert.False(t, store.Loading())
}

func TestLoadIgnoresCacheForOtherBase(t *testing.T) {
	ctx := context.Background()
	cache := NewKVCache(kv.NewMemory())
	require.NoError(t, cache.SaveSnapshot(ctx, usdSnapshot("0.9")))

	store := NewStore(nil, cache, Options{}, zerolog.Nop())
	snap, ok := store.Load(ctx, currency.EUR)
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func TestPersistenceFailuresAreSwallowed(t *testing.T) {
	store := NewStore(providerFunc(func(context.Context, currency.Code) (*Snapshot, error) {
		return usdSnapshot("0.9"), nil
	}), failingCache{}, Options{}, zerolog.Nop())

	_, ok := store.Load(context.Background(), currency.USD)
	assert.False(t, ok)

	res, err := store.Refresh(context.Background(), currency.USD)
	require.NoError(t, err)
	assert.NotNil(t, res.Snapshot)
}

func TestEnsureBaseSkipsMatchingSnapshot(t *testing.T) {
	var calls atomic.Int32
	store := NewStore(providerFunc(func(_ context.Context, base currency.Code) (*Snapshot, error) {
		calls.Add(1)
		snap := usdSnapshot("0.9")
		snap.Base = base
		return snap, nil
	}), nil, Options{}, zerolog.Nop())

	ctx := context.Background()
	_, err := store.EnsureBase(ctx, currency.USD)
	require.NoError(t, err)
	_, err = store.EnsureBase(ctx, currency.USD)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	_, err = store.EnsureBase(ctx, currency.EUR)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, currency.EUR, store.Current().Base)
}

func TestOlderResponseIsDiscarded(t *testing.T) {
	started := make(chan currency.Code, 2)
	releaseUSD := make(chan struct{})

	store := NewStore(providerFunc(func(_ context.Context, base currency.Code) (*Snapshot, error) {
		started <- base
		if base == currency.USD {
			<-releaseUSD
		}
		snap := usdSnapshot("0.9")
		snap.Base = base
		return snap, nil
	}), nil, Options{}, zerolog.Nop())

	ctx := context.Background()
	var wg sync.WaitGroup
	var slow Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		slow, _ = store.Refresh(ctx, currency.USD)
	}()
	require.Equal(t, currency.USD, <-started)

	fast, err := store.Refresh(ctx, currency.EUR)
	require.NoError(t, err)
	require.Equal(t, currency.EUR, (<-started))

	close(releaseUSD)
	wg.Wait()

	assert.True(t, slow.Superseded)
	assert.Same(t, fast.Snapshot, store.Current())
	assert.Equal(t, currency.EUR, store.Current().Base)
}

func TestRefreshTimesOut(t *testing.T) {
	store := NewStore(providerFunc(func(ctx context.Context, _ currency.Code) (*Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), nil, Options{Timeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := store.Refresh(context.Background(), currency.USD)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	fetchErrs := make(chan error, 2)

	store := NewStore(providerFunc(func(ctx context.Context, base currency.Code) (*Snapshot, error) {
		started <- struct{}{}
		<-release
		fetchErrs <- ctx.Err()
		return usdSnapshot("0.9"), nil
	}), nil, Options{Timeout: 5 * time.Second}, zerolog.Nop())

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := store.Refresh(first, currency.USD)
		firstDone <- err
	}()
	<-started

	var second Result
	var secondErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, secondErr = store.Refresh(context.Background(), currency.USD)
	}()

	cancel()
	err := <-firstDone
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	wg.Wait()

	require.NoError(t, secondErr)
	require.NotNil(t, second.Snapshot)
	assert.NoError(t, <-fetchErrs, "shared fetch must not inherit the cancellation")
	assert.Equal(t, currency.USD, store.Current().Base)
}
