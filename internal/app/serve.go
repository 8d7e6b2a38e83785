package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"budgetfx/internal/httpapi"
)

// Serve runs the JSON API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := a.openEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	closePublisher, err := a.attachPublisher(ctx, eng.rates)
	if err != nil {
		return err
	}
	defer closePublisher()

	eng.prefs.Load(ctx)

	api, err := httpapi.New(eng.rates, eng.prefs, eng.formatter, httpapi.Options{
		Base:           a.Config.BaseCurrency(),
		AllowedOrigins: a.Config.HTTP.AllowedOrigins,
		RefreshRate:    a.Config.HTTP.RefreshRate,
		Release:        a.Config.App.Environment == "production",
	}, a.Logger)
	if err != nil {
		return err
	}

	outcome := eng.rates.Start(ctx, a.Config.BaseCurrency())
	go func() {
		if o, ok := <-outcome; ok {
			api.Observe(o.Result, o.Err)
		}
	}()

	srv := &http.Server{
		Addr:         a.Config.HTTP.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  a.Config.HTTP.ReadTimeout,
		WriteTimeout: a.Config.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.Logger.Info().Msg("http api stopped")
	return nil
}
