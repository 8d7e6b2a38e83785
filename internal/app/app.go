package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"budgetfx/internal/alerting"
	"budgetfx/internal/config"
	"budgetfx/internal/currency"
	"budgetfx/internal/events"
	"budgetfx/internal/fetcher"
	"budgetfx/internal/format"
	"budgetfx/internal/kv"
	"budgetfx/internal/preference"
	"budgetfx/internal/rates"
	"budgetfx/internal/scheduler"
	"budgetfx/internal/service"
	"budgetfx/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// engine bundles the local components every command works with.
type engine struct {
	provider  *fetcher.ExchangeRateAPI
	rates     *rates.Store
	prefs     *preference.Store
	formatter *format.Formatter
	close     func()
}

func (a *App) openEngine() (*engine, error) {
	store, closeKV, err := a.openKV()
	if err != nil {
		return nil, err
	}

	provider := a.newProvider()
	rateStore := rates.NewStore(provider, rates.NewKVCache(store), rates.Options{
		Timeout: a.Config.Provider.RequestTimeout,
	}, a.Logger)

	return &engine{
		provider:  provider,
		rates:     rateStore,
		prefs:     preference.New(store, a.Config.DefaultDisplayCurrency(), a.Logger),
		formatter: format.New(a.Config.Format.Locale),
		close:     closeKV,
	}, nil
}

// openKV opens the durable cache, or an in-memory one when no path is configured.
func (a *App) openKV() (kv.Store, func(), error) {
	if a.Config.Cache.Path == "" {
		a.Logger.Debug().Msg("cache.path not configured; using in-memory cache")
		return kv.NewMemory(), func() {}, nil
	}
	db, err := kv.OpenSQLite(a.Config.Cache.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, func() {
		if err := db.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close cache")
		}
	}, nil
}

func (a *App) newProvider() *fetcher.ExchangeRateAPI {
	return fetcher.New(fetcher.Options{
		BaseURL:   a.Config.Provider.BaseURL,
		APIKey:    a.Config.Provider.APIKey,
		Timeout:   a.Config.Provider.RequestTimeout,
		UserAgent: a.Config.Provider.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	if a.Config.Database.AutoMigrate {
		if err := storage.Migrate(a.Config.Database.DSN); err != nil {
			return nil, nil, err
		}
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// attachPublisher forwards installed snapshots to the broker when events are enabled.
func (a *App) attachPublisher(ctx context.Context, store *rates.Store) (func(), error) {
	if !a.Config.Events.Enabled {
		return func() {}, nil
	}
	pub, err := events.NewAMQPPublisher(events.Options{
		URL:        a.Config.Events.URL,
		Exchange:   a.Config.Events.Exchange,
		RoutingKey: a.Config.Events.RoutingKey,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	store.OnChange(events.Listener(ctx, pub, a.Logger))
	return func() {
		if err := pub.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close event publisher")
		}
	}, nil
}

// currentRates loads the cached snapshot for base and, unless offline, refreshes it.
// A degraded refresh is reported through the returned result.
func (a *App) currentRates(ctx context.Context, eng *engine, base currency.Code, offline bool) (rates.Result, error) {
	eng.rates.Load(ctx, base)
	if offline {
		cur := eng.rates.Current()
		if cur == nil {
			return rates.Result{}, fmt.Errorf("%w for %s in cache", rates.ErrNoSnapshot, base)
		}
		return rates.Result{Snapshot: cur}, nil
	}

	res, err := eng.rates.Refresh(ctx, base)
	if err != nil {
		return rates.Result{}, err
	}
	if res.Stale {
		a.Logger.Warn().Err(res.Warning).Str("base", string(base)).Msg("using cached data")
	}
	return res, nil
}

func (a *App) resolveBase(raw string) (currency.Code, error) {
	if raw == "" {
		return a.Config.BaseCurrency(), nil
	}
	return parseCode("base", raw)
}

func parseCode(flag, raw string) (currency.Code, error) {
	code, ok := currency.Parse(raw)
	if !ok {
		return "", fmt.Errorf("--%s %q is not a supported currency", flag, raw)
	}
	return code, nil
}

// Run executes the long-running refresh service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := a.openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	closePublisher, err := a.attachPublisher(ctx, eng.rates)
	if err != nil {
		return err
	}
	defer closePublisher()

	base := a.Config.BaseCurrency()
	if snap, ok := eng.rates.Load(ctx, base); ok {
		a.Logger.Info().Str("base", string(base)).Time("fetched_at", snap.FetchedAt).Msg("starting from cached rates")
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Align:        a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
	}, a.Logger)
	if err != nil {
		return err
	}

	var history storage.SnapshotHistory
	var alertStore storage.AlertStore
	if store != nil {
		history = store
		alertStore = store
	}

	svc := service.New(service.Options{
		Base:          base,
		AlertsEnabled: a.Config.Alerting.Enabled,
		Cooldown:      a.Config.Alerting.Cooldown,
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
	}, sched, eng.rates, history, alertStore, a.newNotifier(), a.Logger)

	a.Logger.Info().Str("base", string(base)).Dur("interval", a.Config.Scheduler.Interval).Msg("starting refresh service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("refresh service stopped")
	return nil
}

// RatesOptions configure the rates command.
type RatesOptions struct {
	Base    string
	Offline bool
}

// ConvertOptions configure the convert command.
type ConvertOptions struct {
	Amount  float64
	From    string
	To      string
	Offline bool
}

// FormatOptions configure the format command.
type FormatOptions struct {
	Amount   float64
	Currency string
	Locale   string
	Compact  bool
}

// ProjectOptions configure the project command.
type ProjectOptions struct {
	Path    string
	Display string
	Offline bool
}

// ExportOptions hold parameters for exporting snapshot history.
type ExportOptions struct {
	Base      string
	Currency  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Base  string
	Limit int
}

// BackfillOptions configure the historical backfill job.
type BackfillOptions struct {
	Base    string
	From    time.Time
	To      time.Time
	DryRun  bool
	Workers int
}
