package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetfx/internal/alerting"
)

// SimulateAlert sends a sample degraded-refresh notification through the configured channel.
func (a *App) SimulateAlert(ctx context.Context, kind alerting.Kind) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	now := time.Now().UTC()
	note := alerting.Notification{
		Kind: kind,
		Base: a.Config.BaseCurrency(),
		At:   now,
		Err:  errors.New("simulated provider outage"),
	}
	switch kind {
	case alerting.KindStale:
		note.SnapshotFetchedAt = now.Add(-a.Config.Scheduler.Interval)
	case alerting.KindFailed:
	default:
		return fmt.Errorf("unknown alert kind %q", kind)
	}

	if err := a.newNotifier().Notify(ctx, note); err != nil {
		return fmt.Errorf("send simulated alert: %w", err)
	}
	fmt.Fprintf(a.Out, "sent %s alert for %s\n", kind, note.Base)
	return nil
}
