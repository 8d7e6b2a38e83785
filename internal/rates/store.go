package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"budgetfx/internal/currency"
	"budgetfx/internal/kv"
)

// Provider fetches a fresh snapshot for base from a remote source.
type Provider interface {
	FetchRates(ctx context.Context, base currency.Code) (*Snapshot, error)
}

// Options tune the store.
type Options struct {
	// Timeout bounds each provider call. Defaults to 10s.
	Timeout time.Duration
}

// Result is the outcome of a refresh that produced a usable snapshot.
type Result struct {
	Snapshot *Snapshot
	// Stale is set when the fetch failed and an in-memory or cached snapshot is served instead.
	Stale bool
	// Warning carries the fetch failure behind a stale result.
	Warning error
	// Superseded is set when a newer refresh completed first and this response was discarded.
	Superseded bool
}

// Outcome is delivered by asynchronous refreshes.
type Outcome struct {
	Result
	Err error
}

// Store owns the current snapshot and its cache persistence.
type Store struct {
	provider Provider
	cache    Cache
	logger   zerolog.Logger
	timeout  time.Duration

	group    singleflight.Group
	nextID   atomic.Uint64
	inflight atomic.Int64

	mu        sync.RWMutex
	snapshot  *Snapshot
	installed uint64

	listenersMu sync.Mutex
	listeners   []func(*Snapshot)
}

// NewStore wires a provider and an optional cache. A nil cache behaves like a cold start every time.
func NewStore(provider Provider, cache Cache, opts Options, logger zerolog.Logger) *Store {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{
		provider: provider,
		cache:    cache,
		timeout:  timeout,
		logger:   logger.With().Str("component", "rate_store").Logger(),
	}
}

// Current returns the loaded snapshot, fresh or cached, or nil.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Loading reports whether a refresh is in flight.
func (s *Store) Loading() bool {
	return s.inflight.Load() > 0
}

// OnChange registers fn to run after every installed snapshot.
func (s *Store) OnChange(fn func(*Snapshot)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Load adopts the cached snapshot when its base matches, without touching the network.
func (s *Store) Load(ctx context.Context, base currency.Code) (*Snapshot, bool) {
	cached := s.loadCached(ctx, base)
	if cached == nil {
		return nil, false
	}
	if !s.install(s.nextID.Add(1), cached) {
		return s.Current(), false
	}
	s.logger.Debug().Str("base", string(base)).Time("fetched_at", cached.FetchedAt).Msg("loaded cached snapshot")
	return cached, true
}

// Start loads any matching cached snapshot, then refreshes in the background.
// The returned channel receives exactly one outcome.
func (s *Store) Start(ctx context.Context, base currency.Code) <-chan Outcome {
	s.Load(ctx, base)
	return s.RefreshAsync(ctx, base)
}

// RefreshAsync runs Refresh on its own goroutine.
func (s *Store) RefreshAsync(ctx context.Context, base currency.Code) <-chan Outcome {
	out := make(chan Outcome, 1)
	s.inflight.Add(1)
	go func() {
		res, err := s.Refresh(ctx, base)
		s.inflight.Add(-1)
		out <- Outcome{Result: res, Err: err}
		close(out)
	}()
	return out
}

// EnsureBase refreshes only when the loaded snapshot is missing or for another base.
func (s *Store) EnsureBase(ctx context.Context, base currency.Code) (Result, error) {
	if cur := s.Current(); cur != nil && cur.Base == base {
		return Result{Snapshot: cur}, nil
	}
	return s.Refresh(ctx, base)
}

type refreshOutcome struct {
	res Result
	err error
}

// Refresh fetches rates for base. Concurrent calls for the same base share one fetch.
// A failed fetch degrades to the in-memory or cached snapshot for base when one exists;
// otherwise the *FetchError is returned.
//
// The shared fetch is bounded by the store timeout only, so one caller giving up
// does not fail the others. A caller whose ctx ends first gets a *FetchError
// wrapping ctx.Err() while the fetch completes for the rest.
func (s *Store) Refresh(ctx context.Context, base currency.Code) (Result, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(base), func() (interface{}, error) {
		res, err := s.refresh(shared, base)
		return refreshOutcome{res: res, err: err}, nil
	})
	select {
	case r := <-ch:
		out := r.Val.(refreshOutcome)
		return out.res, out.err
	case <-ctx.Done():
		return Result{}, asFetchError(base, ctx.Err())
	}
}

func (s *Store) refresh(ctx context.Context, base currency.Code) (Result, error) {
	id := s.nextID.Add(1)
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	snap, err := s.provider.FetchRates(fetchCtx, base)
	cancel()

	if err == nil && snap == nil {
		err = ErrMissingRates
	}
	if err == nil {
		if !s.install(id, snap) {
			s.logger.Debug().Uint64("request_id", id).Str("base", string(base)).Msg("discarding superseded rate response")
			return Result{Snapshot: s.Current(), Superseded: true}, nil
		}
		s.persist(ctx, snap)
		s.logger.Info().Str("base", string(base)).
			Int("rates", snap.Len()).
			Str("provider_updated_at", snap.ProviderUpdatedAt).
			Msg("rates refreshed")
		return Result{Snapshot: snap}, nil
	}

	fetchErr := asFetchError(base, err)
	logger := s.logger.With().Err(fetchErr).Str("base", string(base)).Logger()

	if cur := s.Current(); cur != nil && cur.Base == base {
		logger.Warn().Msg("refresh failed; keeping loaded snapshot")
		return Result{Snapshot: cur, Stale: true, Warning: fetchErr}, nil
	}

	if cached := s.loadCached(ctx, base); cached != nil {
		if !s.install(id, cached) {
			return Result{Snapshot: s.Current(), Superseded: true, Warning: fetchErr}, nil
		}
		logger.Warn().Time("fetched_at", cached.FetchedAt).Msg("refresh failed; using cached data")
		return Result{Snapshot: cached, Stale: true, Warning: fetchErr}, nil
	}

	logger.Error().Msg("refresh failed and no cached snapshot matches")
	return Result{}, fetchErr
}

// install replaces the snapshot when id is newer than the installed one.
func (s *Store) install(id uint64, snap *Snapshot) bool {
	s.mu.Lock()
	if id <= s.installed {
		s.mu.Unlock()
		return false
	}
	s.snapshot = snap
	s.installed = id
	s.mu.Unlock()

	s.listenersMu.Lock()
	listeners := make([]func(*Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return true
}

// persist and loadCached are best-effort: storage failures degrade to a cold start.
func (s *Store) persist(ctx context.Context, snap *Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveSnapshot(ctx, snap); err != nil {
		s.logger.Warn().Err(err).Str("base", string(snap.Base)).Msg("failed to persist snapshot")
	}
}

func (s *Store) loadCached(ctx context.Context, base currency.Code) *Snapshot {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Debug().Err(err).Msg("ignoring unreadable cached snapshot")
		}
		return nil
	}
	if cached.Base != base {
		return nil
	}
	return cached
}
