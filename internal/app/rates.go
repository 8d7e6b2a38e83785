package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"budgetfx/internal/convert"
	"budgetfx/internal/currency"
	"budgetfx/internal/format"
	"budgetfx/internal/projector"
	"budgetfx/internal/rates"
)

// Rates prints the current rate table for a base currency.
func (a *App) Rates(ctx context.Context, opts RatesOptions) error {
	base, err := a.resolveBase(opts.Base)
	if err != nil {
		return err
	}

	eng, err := a.openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	res, err := a.currentRates(ctx, eng, base, opts.Offline)
	if err != nil {
		return err
	}
	snap := res.Snapshot

	fmt.Fprintf(a.Out, "Base: %s (%s)\n", snap.Base, currency.Name(snap.Base))
	fmt.Fprintf(a.Out, "Fetched: %s", humanize.Time(snap.FetchedAt))
	if res.Stale {
		fmt.Fprint(a.Out, " [cached, refresh failed]")
	}
	fmt.Fprintln(a.Out)
	if snap.ProviderUpdatedAt != "" {
		fmt.Fprintf(a.Out, "Provider updated: %s\n", snap.ProviderUpdatedAt)
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Code\tName\tSymbol\tPer 1 "+string(snap.Base))
	for _, code := range currency.Supported() {
		rate, ok := snap.Rate(code)
		value := "n/a"
		if ok {
			value = rate.String()
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", code, currency.Name(code), currency.Symbol(code), value)
	}
	return writer.Flush()
}

// Convert prints amount converted between two currencies through the base snapshot.
func (a *App) Convert(ctx context.Context, opts ConvertOptions) error {
	from, err := parseCode("from", opts.From)
	if err != nil {
		return err
	}
	to, err := parseCode("to", opts.To)
	if err != nil {
		return err
	}

	eng, err := a.openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	res, err := a.currentRates(ctx, eng, a.Config.BaseCurrency(), opts.Offline)
	if err != nil {
		return err
	}

	converted, ok := convert.Convert(opts.Amount, from, to, res.Snapshot)
	if !ok {
		return fmt.Errorf("no rate available to convert %s to %s", from, to)
	}
	rate, _ := convert.Rate(from, to, res.Snapshot)

	f := eng.formatter
	fmt.Fprintf(a.Out, "%s = %s\n", f.FormatCurrency(opts.Amount, from, ""), f.FormatCurrency(converted, to, ""))
	fmt.Fprintf(a.Out, "1 %s = %s %s (via %s, %s)\n", from, rate.StringFixed(6), to, res.Snapshot.Base, humanize.Time(res.Snapshot.FetchedAt))
	return nil
}

// Format prints amount using the display formatter.
func (a *App) Format(_ context.Context, opts FormatOptions) error {
	code := currency.Code(opts.Currency)
	if parsed, ok := currency.Parse(opts.Currency); ok {
		code = parsed
	}
	f := format.New(a.Config.Format.Locale)
	if opts.Compact {
		fmt.Fprintln(a.Out, f.FormatCompactCurrency(opts.Amount, code, opts.Locale))
		return nil
	}
	fmt.Fprintln(a.Out, f.FormatCurrency(opts.Amount, code, opts.Locale))
	return nil
}

// ProjectInput is the JSON document read by the project command.
type ProjectInput struct {
	Budgets []projector.MonetaryRecord `json:"budgets"`
	Items   []projector.MonetaryRecord `json:"items"`
}

// Project converts a budget document into the display currency and prints it.
func (a *App) Project(ctx context.Context, opts ProjectOptions) error {
	input, err := readProjectInput(opts.Path)
	if err != nil {
		return err
	}

	eng, err := a.openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	display := eng.prefs.Load(ctx)
	if opts.Display != "" {
		if display, err = parseCode("display", opts.Display); err != nil {
			return err
		}
	}

	var snap *rates.Snapshot
	res, err := a.currentRates(ctx, eng, a.Config.BaseCurrency(), opts.Offline)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("no rates available; showing original amounts")
	} else {
		snap = res.Snapshot
	}

	projection := projector.ProjectBudget(input.Budgets, input.Items, display, snap)
	f := eng.formatter

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Kind\tID\tDescription\tOriginal\t"+string(display))
	for _, group := range [][]projector.ConvertedRecord{projection.Budgets, projection.Items} {
		for _, rec := range group {
			converted := f.FormatCurrency(rec.ConvertedAmount, display, "")
			if !rec.Converted {
				converted = f.FormatCurrency(rec.ConvertedAmount, rec.OriginalCurrency, "") + " (unconverted)"
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
				rec.Kind, rec.ID, rec.Description,
				f.FormatCurrency(rec.Amount, rec.OriginalCurrency, ""),
				converted,
			)
		}
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "Items total: %s\n", f.FormatCurrency(projection.ItemsTotal, display, ""))
	if len(projection.Currencies) > 1 {
		fmt.Fprintf(a.Out, "Currencies: %v\n", projection.Currencies)
	}
	if !projection.Complete {
		fmt.Fprintln(a.Out, "Some amounts could not be converted and are excluded from the total.")
	}
	return nil
}

func readProjectInput(path string) (ProjectInput, error) {
	if path == "" {
		return ProjectInput{}, errors.New("--file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ProjectInput{}, fmt.Errorf("read %s: %w", path, err)
	}
	var input ProjectInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return ProjectInput{}, fmt.Errorf("decode %s: %w", path, err)
	}
	for i := range input.Budgets {
		if input.Budgets[i].Kind == "" {
			input.Budgets[i].Kind = projector.KindBudget
		}
	}
	for i := range input.Items {
		if input.Items[i].Kind == "" {
			input.Items[i].Kind = projector.KindExpense
		}
	}
	return input, nil
}

// PrefsGet prints the stored display currency.
func (a *App) PrefsGet(ctx context.Context) error {
	eng, err := a.openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	code := eng.prefs.Load(ctx)
	fmt.Fprintf(a.Out, "%s (%s)\n", code, currency.Name(code))
	return nil
}

// PrefsSet stores the display currency.
func (a *App) PrefsSet(ctx context.Context, raw string) error {
	code, err := parseCode("currency", raw)
	if err != nil {
		return err
	}

	eng, err := a.openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	if err := eng.prefs.Set(ctx, code); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "display currency set to %s\n", code)
	return nil
}
