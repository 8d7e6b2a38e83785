package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"budgetfx/internal/alerting"
	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
	"budgetfx/internal/scheduler"
	"budgetfx/internal/storage"
)

// Refresher is the part of rates.Store the service drives.
type Refresher interface {
	Refresh(ctx context.Context, base currency.Code) (rates.Result, error)
}

// Options configure the refresh service.
type Options struct {
	Base          currency.Code
	AlertsEnabled bool
	Cooldown      time.Duration
	LockKey       int64
}

// Service orchestrates scheduled refreshes, history and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	refresher  Refresher
	history    storage.SnapshotHistory
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	locker     storage.AdvisoryLocker
	logger     zerolog.Logger

	base     currency.Code
	alertsOn bool
	cooldown time.Duration
	lockKey  int64
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[alerting.Kind]time.Time
}

// New constructs the refresh service. history, alertStore and notifier may be nil.
func New(opts Options, sched *scheduler.Scheduler, refresher Refresher, history storage.SnapshotHistory, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := history.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		refresher:  refresher,
		history:    history,
		alertStore: alertStore,
		notifier:   notifier,
		locker:     locker,
		logger:     logger.With().Str("component", "service").Logger(),
		base:       opts.Base,
		alertsOn:   opts.AlertsEnabled,
		cooldown:   opts.Cooldown,
		lockKey:    opts.LockKey,
		now:        func() time.Time { return time.Now().UTC() },
		lastSent:   make(map[alerting.Kind]time.Time),
	}
}

// Run begins the refresh loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick performs one scheduled refresh.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("slot", at).Msg("skip slot because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, at)
}

func (s *Service) executeTick(ctx context.Context, at time.Time) error {
	res, err := s.refresher.Refresh(ctx, s.base)
	if err != nil {
		s.alert(ctx, alerting.Notification{Kind: alerting.KindFailed, Base: s.base, At: at, Err: err})
		return fmt.Errorf("refresh %s: %w", s.base, err)
	}

	switch {
	case res.Superseded:
		s.logger.Debug().Time("slot", at).Msg("refresh superseded by a newer one")
	case res.Stale:
		note := alerting.Notification{Kind: alerting.KindStale, Base: s.base, At: at, Err: res.Warning}
		if res.Snapshot != nil {
			note.SnapshotFetchedAt = res.Snapshot.FetchedAt
		}
		s.alert(ctx, note)
	default:
		s.record(ctx, res.Snapshot)
	}
	return nil
}

func (s *Service) record(ctx context.Context, snap *rates.Snapshot) {
	if s.history == nil || snap == nil {
		return
	}
	if err := s.history.InsertSnapshot(ctx, storage.RecordFromSnapshot(snap)); err != nil {
		s.logger.Error().Err(err).Str("base", string(snap.Base)).Msg("failed to record snapshot history")
		return
	}
	s.logger.Info().Str("base", string(snap.Base)).Time("fetched_at", snap.FetchedAt).Msg("snapshot recorded")
}

func (s *Service) alert(ctx context.Context, note alerting.Notification) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	if !s.cooledDown(ctx, note.Kind) {
		s.logger.Debug().Str("kind", string(note.Kind)).Msg("alert suppressed by cooldown")
		return
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("failed to dispatch alert")
		return
	}

	s.mu.Lock()
	s.lastSent[note.Kind] = s.now()
	s.mu.Unlock()

	if s.alertStore != nil {
		record := storage.AlertRecord{Kind: string(note.Kind), Base: note.Base, Message: alerting.Render(note)}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist alert record")
		}
	}
}

// cooledDown reports whether no alert of kind went out within the cooldown,
// consulting both this process and the shared alert log.
func (s *Service) cooledDown(ctx context.Context, kind alerting.Kind) bool {
	if s.cooldown <= 0 {
		return true
	}
	now := s.now()

	s.mu.Lock()
	last, ok := s.lastSent[kind]
	s.mu.Unlock()
	if ok && now.Sub(last) < s.cooldown {
		return false
	}

	if s.alertStore != nil {
		at, found, err := s.alertStore.LastAlertAt(ctx, string(kind))
		if err != nil {
			s.logger.Warn().Err(err).Msg("could not read last alert time")
		} else if found && now.Sub(at) < s.cooldown {
			return false
		}
	}
	return true
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
