package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"budgetfx/internal/currency"
)

// showColumns are the currencies printed by show, after the base.
var showColumns = []currency.Code{currency.EUR, currency.GBP, currency.BRL, currency.MXN, currency.JPY}

// Show prints recent snapshots from history.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	base, err := a.resolveBase(opts.Base)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentSnapshots(ctx, base, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no snapshots found")
		return nil
	}

	columns := make([]string, 0, len(showColumns))
	for _, code := range showColumns {
		if code != base {
			columns = append(columns, string(code))
		}
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Fetched (UTC)\tAge\t%s\tProvider updated\n", strings.Join(columns, "\t"))

	for _, rec := range records {
		snap := rec.Snapshot()
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			rate, ok := snap.Rate(currency.Code(col))
			if !ok {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, rate.StringFixed(4))
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			rec.FetchedAt.UTC().Format(time.RFC3339),
			humanize.Time(rec.FetchedAt),
			strings.Join(cells, "\t"),
			sanitizeInline(rec.ProviderUpdatedAt),
		)
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	total, err := store.CountSnapshots(ctx)
	if err == nil {
		fmt.Fprintf(a.Out, "%s snapshots stored\n", humanize.Comma(total))
	}
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
