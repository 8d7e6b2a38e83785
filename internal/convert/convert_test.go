package convert

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
)

func snapshot() *rates.Snapshot {
	return rates.NewSnapshot(currency.USD, map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.9"),
		currency.GBP: decimal.RequireFromString("0.8"),
		currency.BRL: decimal.RequireFromString("5.0"),
	}, time.Now(), "")
}

func TestIdentityIsExact(t *testing.T) {
	for _, amount := range []float64{0, 0.1, 1234.5678, 1e15 + 0.3, -42.42} {
		for _, code := range []currency.Code{currency.USD, currency.EUR, "XYZ"} {
			got, ok := Convert(amount, code, code, snapshot())
			assert.True(t, ok)
			assert.Equal(t, amount, got)

			got, ok = Convert(amount, code, code, nil)
			assert.True(t, ok)
			assert.Equal(t, amount, got)
		}
	}
}

func TestBaseForward(t *testing.T) {
	got, ok := Convert(100, currency.USD, currency.EUR, snapshot())
	assert.True(t, ok)
	assert.Equal(t, 90.0, got)
}

func TestBaseBackward(t *testing.T) {
	got, ok := Convert(90, currency.EUR, currency.USD, snapshot())
	assert.True(t, ok)
	assert.Equal(t, 100.0, got)
}

func TestTriangulation(t *testing.T) {
	got, ok := Convert(90, currency.EUR, currency.GBP, snapshot())
	assert.True(t, ok)
	assert.Equal(t, 80.0, got)
}

func TestMissingRate(t *testing.T) {
	_, ok := Convert(100, currency.USD, "XYZ", snapshot())
	assert.False(t, ok)

	_, ok = Convert(100, "XYZ", currency.USD, snapshot())
	assert.False(t, ok)

	_, ok = Convert(100, currency.EUR, "XYZ", snapshot())
	assert.False(t, ok)
}

func TestNoSnapshot(t *testing.T) {
	_, ok := Convert(100, currency.USD, currency.EUR, nil)
	assert.False(t, ok)
}

func TestZeroAmountConvertsToZero(t *testing.T) {
	got, ok := Convert(0, currency.USD, currency.EUR, snapshot())
	assert.True(t, ok)
	assert.Equal(t, 0.0, got)

	_, ok = Convert(0, currency.USD, "XYZ", snapshot())
	assert.False(t, ok, "zero still needs a rate")

	_, ok = Convert(0, currency.USD, currency.EUR, nil)
	assert.False(t, ok, "zero still needs a snapshot")
}

func TestNonFiniteAmountIsUnconvertible(t *testing.T) {
	for _, amount := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		got, ok := Convert(amount, currency.USD, currency.EUR, snapshot())
		assert.False(t, ok)
		assert.Equal(t, 0.0, got)

		_, ok = Convert(amount, currency.EUR, currency.EUR, snapshot())
		assert.False(t, ok, "identity does not pass %v through", amount)
	}
}

func TestRate(t *testing.T) {
	rate, ok := Rate(currency.USD, currency.BRL, snapshot())
	assert.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("5")))

	rate, ok = Rate(currency.BRL, currency.USD, snapshot())
	assert.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.2")))

	rate, ok = Rate(currency.EUR, currency.EUR, nil)
	assert.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}
