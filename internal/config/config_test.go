package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"budgetfx/internal/currency"
)

func validConfig() Config {
	return Config{
		Provider:   ProviderConfig{BaseCurrency: "USD", RequestTimeout: 10 * time.Second},
		Preference: PreferenceConfig{DefaultCurrency: "eur"},
		Scheduler:  SchedulerConfig{Interval: time.Hour},
		Export:     ExportConfig{MaxDataPoints: 10},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unsupported base", mutate: func(c *Config) { c.Provider.BaseCurrency = "XYZ" }, wantErr: true},
		{name: "unsupported default display", mutate: func(c *Config) { c.Preference.DefaultCurrency = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Provider.RequestTimeout = 0 }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }, wantErr: true},
		{name: "zero export points", mutate: func(c *Config) { c.Export.MaxDataPoints = 0 }, wantErr: true},
		{name: "telegram without token", mutate: func(c *Config) {
			c.Alerting.Telegram = TelegramConfig{Enabled: true, ChatID: "1"}
		}, wantErr: true},
		{name: "events without url", mutate: func(c *Config) { c.Events.Enabled = true }, wantErr: true},
		{name: "bare origin", mutate: func(c *Config) { c.HTTP.AllowedOrigins = []string{"localhost:3000"} }, wantErr: true},
		{name: "wildcard origin", mutate: func(c *Config) { c.HTTP.AllowedOrigins = []string{"*"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalisedCurrencies(t *testing.T) {
	cfg := validConfig()
	if cfg.DefaultDisplayCurrency() != currency.EUR {
		t.Fatalf("display = %s", cfg.DefaultDisplayCurrency())
	}
	if cfg.BaseCurrency() != currency.USD {
		t.Fatalf("base = %s", cfg.BaseCurrency())
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("provider:\n  base_currency: EUR\n  api_key: from-file\nscheduler:\n  interval: 30m\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BUDGETFX_PROVIDER_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseCurrency() != currency.EUR {
		t.Fatalf("base = %s", cfg.BaseCurrency())
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Fatalf("env should override file, got %q", cfg.Provider.APIKey)
	}
	if cfg.Scheduler.Interval != 30*time.Minute {
		t.Fatalf("interval = %s", cfg.Scheduler.Interval)
	}
	if cfg.Format.Locale != "es-ES" {
		t.Fatalf("default locale = %q", cfg.Format.Locale)
	}
	if cfg.ResolveMaxPoints(0) != 5000 || cfg.ResolveMaxPoints(7) != 7 {
		t.Fatalf("ResolveMaxPoints wrong")
	}
}
