package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
	"budgetfx/internal/storage"
)

const day = 24 * time.Hour

// historicalProvider fetches end-of-day rates.
type historicalProvider interface {
	FetchHistorical(ctx context.Context, base currency.Code, day time.Time) (*rates.Snapshot, error)
}

// Backfill loads daily historical snapshots into history.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	base, err := a.resolveBase(opts.Base)
	if err != nil {
		return err
	}

	start := alignForward(opts.From.UTC(), day)
	end := opts.To.UTC()
	if !start.Before(end) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	var history storage.SnapshotHistory
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
		history = store
	}

	processed, failed := a.backfillDays(ctx, a.newProvider(), history, base, start, end, opts.Workers)

	a.Logger.Info().Int64("processed", processed).Int64("failed", failed).Msg("backfill finished")
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d days failed to backfill; see logs", failed, processed+failed)
	}
	return nil
}

func (a *App) backfillDays(ctx context.Context, provider historicalProvider, history storage.SnapshotHistory, base currency.Code, start, end time.Time, workers int) (int64, int64) {
	if workers < 1 {
		workers = 1
	}

	var processed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for d := start; d.Before(end); d = d.Add(day) {
		if gctx.Err() != nil {
			break
		}
		d := d
		g.Go(func() error {
			snap, err := provider.FetchHistorical(gctx, base, d)
			if err == nil && history != nil {
				err = history.InsertSnapshot(gctx, storage.RecordFromSnapshot(snap))
			}
			if err != nil {
				failed.Add(1)
				a.Logger.Error().Err(err).Time("day", d).Msg("backfill failed")
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return processed.Load(), failed.Load()
}

func alignForward(t time.Time, interval time.Duration) time.Time {
	truncated := t.Truncate(interval)
	if truncated.Before(t) {
		return truncated.Add(interval)
	}
	return truncated
}
