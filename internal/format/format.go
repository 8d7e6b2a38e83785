// Package format renders monetary amounts for display.
package format

import (
	"fmt"
	"math"

	xcurrency "golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"budgetfx/internal/currency"
)

// DefaultLocale is used when no locale is given.
const DefaultLocale = "es-ES"

// Formatter renders amounts using locale data, falling back to plain
// "<CODE> <amount>" strings when the locale facility cannot handle the input.
type Formatter struct {
	locale string
}

// New returns a Formatter whose default locale is locale, or DefaultLocale when empty.
func New(locale string) *Formatter {
	if locale == "" {
		locale = DefaultLocale
	}
	return &Formatter{locale: locale}
}

// Locale returns the default locale.
func (f *Formatter) Locale() string {
	return f.locale
}

// FormatCurrency renders amount with exactly two fraction digits, placing the
// symbol where the locale conventionally puts it.
func (f *Formatter) FormatCurrency(amount float64, code currency.Code, locale string) string {
	p, unit, after, ok := f.printer(code, locale)
	if !ok {
		return fmt.Sprintf("%s %.2f", code, amount)
	}
	value := p.Sprint(number.Decimal(amount,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))
	return place(p.Sprint(xcurrency.Symbol(unit)), value, after)
}

// FormatCompactCurrency renders amount in K/M notation with at most one fraction digit.
// Amounts below one thousand are never abbreviated.
func (f *Formatter) FormatCompactCurrency(amount float64, code currency.Code, locale string) string {
	p, unit, after, ok := f.printer(code, locale)
	if !ok {
		return compactFallback(amount, code)
	}
	scaled, suffix := compactScale(amount)
	value := p.Sprint(number.Decimal(scaled, number.MaxFractionDigits(1))) + suffix
	return place(p.Sprint(xcurrency.Symbol(unit)), value, after)
}

// Symbol returns the static display symbol for code.
func (f *Formatter) Symbol(code currency.Code) string {
	return currency.Symbol(code)
}

func (f *Formatter) printer(code currency.Code, locale string) (*message.Printer, xcurrency.Unit, bool, bool) {
	if locale == "" {
		locale = f.locale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, xcurrency.Unit{}, false, false
	}
	unit, err := xcurrency.ParseISO(string(code))
	if err != nil {
		return nil, xcurrency.Unit{}, false, false
	}
	return message.NewPrinter(tag), unit, symbolAfter(tag), true
}

func place(symbol, value string, after bool) string {
	if after {
		return value + " " + symbol
	}
	return symbol + " " + value
}

// symbolAfter reports whether tag writes the currency symbol after the amount.
// x/text exposes no currency patterns, so placement is decided by language and region.
func symbolAfter(tag language.Tag) bool {
	base, _ := tag.Base()
	region, _ := tag.Region()
	switch base.String() {
	case "es":
		return region.String() == "ES"
	case "pt":
		return region.String() == "PT"
	case "de", "it":
		return region.String() != "AT" && region.String() != "CH"
	case "fr", "pl", "cs", "sv", "fi", "da", "ru":
		return true
	}
	return false
}

type scale struct {
	divisor float64
	suffix  string
}

var scales = []scale{
	{divisor: 1e6, suffix: "M"},
	{divisor: 1e3, suffix: "K"},
}

// compactScale picks the largest unit the magnitude reaches, promoting values
// that would round up to 1000 of the smaller unit.
func compactScale(amount float64) (float64, string) {
	abs := math.Abs(amount)
	for i, s := range scales {
		if abs < s.divisor {
			continue
		}
		scaled := amount / s.divisor
		if i > 0 && math.Abs(math.Round(scaled*10)/10) >= 1000 {
			prev := scales[i-1]
			return amount / prev.divisor, prev.suffix
		}
		return scaled, s.suffix
	}
	if math.Abs(math.Round(amount*10)/10) >= 1000 {
		return amount / 1e3, "K"
	}
	return amount, ""
}

func compactFallback(amount float64, code currency.Code) string {
	switch {
	case amount >= 1_000_000:
		return fmt.Sprintf("%s %.1fM", code, amount/1_000_000)
	case amount >= 1_000:
		return fmt.Sprintf("%s %.1fK", code, amount/1_000)
	default:
		return fmt.Sprintf("%s %.2f", code, amount)
	}
}
