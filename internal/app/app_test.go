package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetfx/internal/alerting"
	"budgetfx/internal/config"
	"budgetfx/internal/currency"
	"budgetfx/internal/kv"
	"budgetfx/internal/rates"
	"budgetfx/internal/storage"
)

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Provider:   config.ProviderConfig{BaseCurrency: "USD", RequestTimeout: time.Second},
		Cache:      config.CacheConfig{Path: filepath.Join(t.TempDir(), "cache.db")},
		Preference: config.PreferenceConfig{DefaultCurrency: "USD"},
		Format:     config.FormatConfig{Locale: "en-US"},
		Scheduler:  config.SchedulerConfig{Interval: time.Hour},
		Export:     config.ExportConfig{MaxDataPoints: 100},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func seedCache(t *testing.T, path string) {
	t.Helper()
	db, err := kv.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	snap := rates.NewSnapshot(currency.USD, map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.9"),
		currency.GBP: decimal.RequireFromString("0.8"),
	}, time.Now().Add(-time.Hour), "")
	require.NoError(t, rates.NewKVCache(db).SaveSnapshot(context.Background(), snap))
}

func TestConvertOfflineUsesCache(t *testing.T) {
	a, out := testApp(t)
	seedCache(t, a.Config.Cache.Path)

	err := a.Convert(context.Background(), ConvertOptions{Amount: 90, From: "EUR", To: "gbp", Offline: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "80.00")
	assert.Contains(t, out.String(), "via USD")
}

func TestConvertOfflineWithoutCache(t *testing.T) {
	a, _ := testApp(t)
	err := a.Convert(context.Background(), ConvertOptions{Amount: 1, From: "EUR", To: "USD", Offline: true})
	assert.ErrorIs(t, err, rates.ErrNoSnapshot)

	err = a.Convert(context.Background(), ConvertOptions{Amount: 1, From: "XYZ", To: "USD", Offline: true})
	assert.ErrorContains(t, err, "--from")
}

func TestRatesOffline(t *testing.T) {
	a, out := testApp(t)
	seedCache(t, a.Config.Cache.Path)

	require.NoError(t, a.Rates(context.Background(), RatesOptions{Offline: true}))
	assert.Contains(t, out.String(), "Base: USD")
	assert.Contains(t, out.String(), "1 hour ago")
	assert.Contains(t, out.String(), "n/a")
}

func TestPrefsRoundTrip(t *testing.T) {
	a, out := testApp(t)
	ctx := context.Background()

	require.NoError(t, a.PrefsSet(ctx, "brl"))
	out.Reset()
	require.NoError(t, a.PrefsGet(ctx))
	assert.Contains(t, out.String(), "BRL")

	assert.Error(t, a.PrefsSet(ctx, "XYZ"))
}

func TestProjectOffline(t *testing.T) {
	a, out := testApp(t)
	seedCache(t, a.Config.Cache.Path)

	path := filepath.Join(t.TempDir(), "budget.json")
	doc := `{"budgets":[{"id":"b1","amount":1000}],"items":[{"id":"i1","amount":100,"currency":"EUR"},{"id":"i2","amount":5,"currency":"JPY"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	require.NoError(t, a.Project(context.Background(), ProjectOptions{Path: path, Display: "USD", Offline: true}))
	text := out.String()
	assert.Contains(t, text, "(unconverted)")
	assert.Contains(t, text, "Items total: $ 111.11")
	assert.Contains(t, text, "excluded from the total")
}

func TestFormatCommand(t *testing.T) {
	a, out := testApp(t)
	require.NoError(t, a.Format(context.Background(), FormatOptions{Amount: 2_300_000, Currency: "usd", Compact: true}))
	assert.Equal(t, "$ 2.3M\n", out.String())
}

func TestDownsamplePoints(t *testing.T) {
	points := make([]ratePoint, 10)
	for i := range points {
		points[i] = ratePoint{Rate: float64(i)}
	}
	got := downsamplePoints(points, 4)
	require.Len(t, got, 4)
	assert.Equal(t, 0.0, got[0].Rate)
	assert.Equal(t, 9.0, got[3].Rate)
	assert.Len(t, downsamplePoints(points, 20), 10)
}

func TestExtractPointsAndCSV(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []storage.SnapshotRecord{
		{Base: currency.USD, FetchedAt: at, Rates: map[currency.Code]decimal.Decimal{currency.EUR: decimal.RequireFromString("0.91")}},
		{Base: currency.USD, FetchedAt: at.Add(time.Hour), Rates: map[currency.Code]decimal.Decimal{currency.GBP: decimal.RequireFromString("0.8")}},
	}
	points := extractPoints(records, currency.EUR)
	require.Len(t, points, 1)

	path := filepath.Join(t.TempDir(), "nested", "eur.csv")
	require.NoError(t, writePointsCSV(path, currency.USD, currency.EUR, points))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"fetched_at", "base_currency", "currency", "rate"}, rows[0])
	assert.Equal(t, []string{"2025-01-01T00:00:00Z", "USD", "EUR", "0.91"}, rows[1])
}

type dayProvider struct {
	fail map[string]bool
}

func (d dayProvider) FetchHistorical(_ context.Context, base currency.Code, day time.Time) (*rates.Snapshot, error) {
	if d.fail[day.Format("2006-01-02")] {
		return nil, errors.New("not available")
	}
	return rates.NewSnapshot(base, map[currency.Code]decimal.Decimal{currency.EUR: decimal.NewFromInt(1)}, day, ""), nil
}

type syncHistory struct {
	storage.SnapshotHistory
	mu   sync.Mutex
	days []time.Time
}

func (s *syncHistory) InsertSnapshot(_ context.Context, rec storage.SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days = append(s.days, rec.FetchedAt)
	return nil
}

func TestBackfillDays(t *testing.T) {
	a, _ := testApp(t)
	hist := &syncHistory{}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * day)

	processed, failed := a.backfillDays(context.Background(), dayProvider{fail: map[string]bool{"2025-01-03": true}}, hist, currency.USD, start, end, 3)
	assert.EqualValues(t, 4, processed)
	assert.EqualValues(t, 1, failed)
	assert.Len(t, hist.days, 4)
}

func TestAlignForward(t *testing.T) {
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), alignForward(time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC), day))
	midnight := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, alignForward(midnight, day))
}

func TestSimulateAlert(t *testing.T) {
	a, out := testApp(t)
	assert.Error(t, a.SimulateAlert(context.Background(), alerting.KindStale))

	a.Config.Alerting.Enabled = true
	require.NoError(t, a.SimulateAlert(context.Background(), alerting.KindStale))
	assert.Contains(t, out.String(), "sent stale alert for USD")
	assert.Error(t, a.SimulateAlert(context.Background(), alerting.Kind("bogus")))
}

func TestShowRequiresDatabase(t *testing.T) {
	a, _ := testApp(t)
	assert.ErrorContains(t, a.Show(context.Background(), ShowOptions{Limit: 5}), "database not configured")
	assert.ErrorContains(t, a.Export(context.Background(), ExportOptions{Currency: "EUR", CSVPath: "x.csv"}), "database not configured")
}
