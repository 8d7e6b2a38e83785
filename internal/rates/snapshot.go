// Package rates maintains the table of conversion rates for one base currency,
// backed by a remote provider and a single-slot local cache.
package rates

import (
	"time"

	"github.com/shopspring/decimal"

	"budgetfx/internal/currency"
)

// Snapshot is an immutable capture of rates for one base currency.
// Rates are units of the target currency per one unit of Base. The table is
// only reachable through Rate and Rates, so a shared *Snapshot is safe to read
// from any goroutine.
type Snapshot struct {
	Base              currency.Code
	FetchedAt         time.Time
	ProviderUpdatedAt string

	table map[currency.Code]decimal.Decimal
}

// NewSnapshot copies rates into a new snapshot.
func NewSnapshot(base currency.Code, rates map[currency.Code]decimal.Decimal, fetchedAt time.Time, providerUpdatedAt string) *Snapshot {
	copied := make(map[currency.Code]decimal.Decimal, len(rates))
	for code, rate := range rates {
		copied[code] = rate
	}
	return &Snapshot{
		Base:              base,
		table:             copied,
		FetchedAt:         fetchedAt.UTC(),
		ProviderUpdatedAt: providerUpdatedAt,
	}
}

// Rate returns the rate for code. The base currency is always 1.
// Missing and non-positive rates are reported as absent.
func (s *Snapshot) Rate(code currency.Code) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Decimal{}, false
	}
	if code == s.Base {
		return decimal.NewFromInt(1), true
	}
	rate, ok := s.table[code]
	if !ok || !rate.IsPositive() {
		return decimal.Decimal{}, false
	}
	return rate, true
}

// Rates returns a copy of the rate table, excluding the implicit base entry.
func (s *Snapshot) Rates() map[currency.Code]decimal.Decimal {
	if s == nil {
		return nil
	}
	out := make(map[currency.Code]decimal.Decimal, len(s.table))
	for code, rate := range s.table {
		out[code] = rate
	}
	return out
}

// Len reports how many quoted currencies the snapshot holds.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.table)
}

// Age reports how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
