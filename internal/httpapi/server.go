// Package httpapi exposes rates, conversion, formatting and projections over JSON.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"budgetfx/internal/currency"
	"budgetfx/internal/format"
	"budgetfx/internal/rates"
)

// RateSource is the part of rates.Store the API serves from.
type RateSource interface {
	Current() *rates.Snapshot
	Loading() bool
	Refresh(ctx context.Context, base currency.Code) (rates.Result, error)
	EnsureBase(ctx context.Context, base currency.Code) (rates.Result, error)
}

// PreferenceStore holds the display currency.
type PreferenceStore interface {
	DisplayCurrency() currency.Code
	Set(ctx context.Context, code currency.Code) error
}

// Options configure the API.
type Options struct {
	Base           currency.Code
	AllowedOrigins []string
	// RefreshRate limits POST /rates/refresh per client, in limiter format (e.g. "6-M").
	RefreshRate string
	Release     bool
}

// Server serves the JSON API.
type Server struct {
	rates     RateSource
	prefs     PreferenceStore
	formatter *format.Formatter
	base      currency.Code
	logger    zerolog.Logger
	engine    *gin.Engine

	mu      sync.RWMutex
	stale   bool
	warning string
}

// New builds the router.
func New(source RateSource, prefs PreferenceStore, formatter *format.Formatter, opts Options, logger zerolog.Logger) (*Server, error) {
	registerValidators()

	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		rates:     source,
		prefs:     prefs,
		formatter: formatter,
		base:      currency.OrDefault(opts.Base),
		logger:    logger.With().Str("component", "httpapi").Logger(),
	}

	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())
	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	refreshLimit := func(c *gin.Context) { c.Next() }
	if opts.RefreshRate != "" {
		rate, err := limiter.NewRateFromFormatted(opts.RefreshRate)
		if err != nil {
			return nil, fmt.Errorf("parse refresh rate %q: %w", opts.RefreshRate, err)
		}
		refreshLimit = rateLimit(limiter.New(memory.NewStore(), rate))
	}

	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/currencies", s.listCurrencies)
		v1.GET("/rates", s.getRates)
		v1.POST("/rates/refresh", refreshLimit, s.refreshRates)
		v1.GET("/convert", s.convert)
		v1.POST("/projections", s.project)
		v1.GET("/format", s.format)
		v1.GET("/preferences/display-currency", s.getDisplayCurrency)
		v1.PUT("/preferences/display-currency", s.putDisplayCurrency)
	}

	s.engine = r
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Observe records the outcome of a refresh made outside the API, such as the startup refresh.
func (s *Server) Observe(res rates.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil:
		s.stale = s.rates.Current() != nil
		s.warning = err.Error()
	case res.Superseded:
	case res.Stale:
		s.stale = true
		s.warning = ""
		if res.Warning != nil {
			s.warning = res.Warning.Error()
		}
	default:
		s.stale = false
		s.warning = ""
	}
}

func (s *Server) status() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale, s.warning
}
