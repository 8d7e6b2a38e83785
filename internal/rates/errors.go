package rates

import (
	"errors"
	"fmt"

	"budgetfx/internal/currency"
)

var (
	// ErrNoSnapshot indicates there is no snapshot for the requested base.
	ErrNoSnapshot = errors.New("rates: no snapshot available")
	// ErrMissingRates indicates the provider payload had no conversion_rates table.
	ErrMissingRates = errors.New("rates: payload lacks conversion rates")
)

// FetchError describes a failed refresh: network failure, non-200 status,
// timeout or malformed payload.
type FetchError struct {
	Base       currency.Code
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch rates for %s (status %d): %v", e.Base, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch rates for %s: %v", e.Base, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func asFetchError(base currency.Code, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Base: base, Err: err}
}
