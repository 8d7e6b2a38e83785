// Package preference remembers the user's display currency across sessions.
package preference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"budgetfx/internal/currency"
	"budgetfx/internal/kv"
)

// DisplayCurrencyKey is the fixed key holding the preferred display currency.
const DisplayCurrencyKey = "preferredDisplayCurrency"

// ErrUnsupported is returned when setting a currency outside the supported set.
var ErrUnsupported = errors.New("preference: unsupported currency")

// Store holds the display currency in memory and mirrors every change to kv.
type Store struct {
	kv       kv.Store
	fallback currency.Code
	logger   zerolog.Logger

	mu      sync.RWMutex
	display currency.Code
}

// New returns a Store starting at fallback until Load is called.
func New(store kv.Store, fallback currency.Code, logger zerolog.Logger) *Store {
	fallback = currency.OrDefault(fallback)
	return &Store{
		kv:       store,
		fallback: fallback,
		display:  fallback,
		logger:   logger.With().Str("component", "preference").Logger(),
	}
}

// Load reads the stored value and adopts it only when it is supported.
func (s *Store) Load(ctx context.Context) currency.Code {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv == nil {
		return s.display
	}
	raw, err := s.kv.Get(ctx, DisplayCurrencyKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Debug().Err(err).Msg("preference unreadable; keeping default")
		}
		return s.display
	}
	code := currency.Code(raw)
	if !currency.IsSupported(code) {
		s.logger.Debug().Str("stored", string(raw)).Msg("ignoring unsupported stored currency")
		return s.display
	}
	s.display = code
	return code
}

// DisplayCurrency returns the current display currency.
func (s *Store) DisplayCurrency() currency.Code {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display
}

// Set changes the display currency and writes it through. The in-memory value
// changes even when the write fails; the write error is returned for logging.
func (s *Store) Set(ctx context.Context, code currency.Code) error {
	if !currency.IsSupported(code) {
		return fmt.Errorf("%w: %s", ErrUnsupported, code)
	}

	s.mu.Lock()
	s.display = code
	s.mu.Unlock()

	if s.kv == nil {
		return nil
	}
	if err := s.kv.Put(ctx, DisplayCurrencyKey, []byte(code)); err != nil {
		s.logger.Warn().Err(err).Str("currency", string(code)).Msg("failed to persist display currency")
		return fmt.Errorf("persist display currency: %w", err)
	}
	return nil
}
