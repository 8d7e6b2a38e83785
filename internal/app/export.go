package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"budgetfx/internal/currency"
	"budgetfx/internal/storage"
)

// ratePoint is one currency's rate taken from a stored snapshot.
type ratePoint struct {
	At   time.Time
	Rate float64
	Raw  string
}

// Export renders the history of one currency against the base as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	base, err := a.resolveBase(opts.Base)
	if err != nil {
		return err
	}
	target, err := parseCode("currency", opts.Currency)
	if err != nil {
		return err
	}
	if target == base {
		return errors.New("--currency must differ from the base currency")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListSnapshotsBetween(ctx, base, from, to)
	if err != nil {
		return err
	}

	points := extractPoints(records, target)
	if len(points) == 0 {
		a.Logger.Info().Str("base", string(base)).Str("currency", string(target)).Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting rate history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, base, target, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, base, target, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// extractPoints keeps snapshots that carry a usable rate for target.
func extractPoints(records []storage.SnapshotRecord, target currency.Code) []ratePoint {
	points := make([]ratePoint, 0, len(records))
	for _, rec := range records {
		rate, ok := rec.Snapshot().Rate(target)
		if !ok {
			continue
		}
		points = append(points, ratePoint{At: rec.FetchedAt, Rate: rate.InexactFloat64(), Raw: rate.String()})
	}
	return points
}

func downsamplePoints(points []ratePoint, max int) []ratePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]ratePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, base, target currency.Code, points []ratePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"fetched_at", "base_currency", "currency", "rate"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.At.UTC().Format(time.RFC3339),
			string(base),
			string(target),
			p.Raw,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path string, base, target currency.Code, points []ratePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.At
		y[i] = p.Rate
	}

	series := chart.TimeSeries{
		Name:    string(target) + " per 1 " + string(base),
		XValues: x,
		YValues: y,
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: string(target) + "/" + string(base),
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.4f")
			},
		},
		Series: []chart.Series{
			series,
			chart.SMASeries{
				Name:        "Moving average",
				InnerSeries: series,
				Period:      movingAveragePeriod(len(points)),
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func movingAveragePeriod(n int) int {
	period := n / 10
	if period < 2 {
		return 2
	}
	return period
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
