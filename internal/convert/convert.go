// Package convert converts amounts between currencies using a rate snapshot.
package convert

import (
	"math"

	"github.com/shopspring/decimal"

	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
)

// Convert returns amount expressed in to, and false when the pair is unconvertible
// or there is no snapshot. Same-currency conversion is the identity.
//
// Zero amounts follow the same rules as any other amount and convert to 0.
// NaN and infinite amounts are never convertible, not even to the same currency.
func Convert(amount float64, from, to currency.Code, snap *rates.Snapshot) (float64, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	if from == to {
		return amount, true
	}
	out, ok := convertDecimal(decimal.NewFromFloat(amount), from, to, snap)
	if !ok {
		return 0, false
	}
	return out.InexactFloat64(), true
}

// Rate returns the effective rate from -> to under snap: what one unit of from is worth in to.
func Rate(from, to currency.Code, snap *rates.Snapshot) (decimal.Decimal, bool) {
	if from == to {
		return decimal.NewFromInt(1), true
	}
	return convertDecimal(decimal.NewFromInt(1), from, to, snap)
}

// convertDecimal routes non-base pairs through the base currency:
// (amount / rate[from]) * rate[to]. The two hops are kept as-is; no direct quote is assumed.
func convertDecimal(amount decimal.Decimal, from, to currency.Code, snap *rates.Snapshot) (decimal.Decimal, bool) {
	if snap == nil {
		return decimal.Decimal{}, false
	}

	switch {
	case from == snap.Base:
		rate, ok := snap.Rate(to)
		if !ok {
			return decimal.Decimal{}, false
		}
		return amount.Mul(rate), true
	case to == snap.Base:
		rate, ok := snap.Rate(from)
		if !ok {
			return decimal.Decimal{}, false
		}
		return amount.Div(rate), true
	}

	fromRate, ok := snap.Rate(from)
	if !ok {
		return decimal.Decimal{}, false
	}
	toRate, ok := snap.Rate(to)
	if !ok {
		return decimal.Decimal{}, false
	}
	return amount.Div(fromRate).Mul(toRate), true
}
