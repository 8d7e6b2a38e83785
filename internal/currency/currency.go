// Package currency defines the set of currencies the budget engine understands.
package currency

import "strings"

// Code is an ISO 4217 style three letter currency identifier.
type Code string

// DefaultCode is assumed for records that carry no currency.
const DefaultCode Code = "USD"

const (
	USD Code = "USD"
	EUR Code = "EUR"
	BRL Code = "BRL"
	MXN Code = "MXN"
	ARS Code = "ARS"
	COP Code = "COP"
	CLP Code = "CLP"
	PEN Code = "PEN"
	CAD Code = "CAD"
	GBP Code = "GBP"
	JPY Code = "JPY"
	CNY Code = "CNY"
)

var supported = []Code{USD, EUR, BRL, MXN, ARS, COP, CLP, PEN, CAD, GBP, JPY, CNY}

var symbols = map[Code]string{
	USD: "$",
	EUR: "€",
	BRL: "R$",
	MXN: "$",
	ARS: "$",
	COP: "$",
	CLP: "$",
	PEN: "S/",
	CAD: "C$",
	GBP: "£",
	JPY: "¥",
	CNY: "¥",
}

var names = map[Code]string{
	USD: "US Dollar",
	EUR: "Euro",
	BRL: "Brazilian Real",
	MXN: "Mexican Peso",
	ARS: "Argentine Peso",
	COP: "Colombian Peso",
	CLP: "Chilean Peso",
	PEN: "Peruvian Sol",
	CAD: "Canadian Dollar",
	GBP: "Pound Sterling",
	JPY: "Japanese Yen",
	CNY: "Chinese Yuan",
}

// Supported returns the supported currencies in display order.
func Supported() []Code {
	out := make([]Code, len(supported))
	copy(out, supported)
	return out
}

// IsSupported reports whether code belongs to the supported set.
func IsSupported(code Code) bool {
	for _, c := range supported {
		if c == code {
			return true
		}
	}
	return false
}

// Parse normalises s and reports whether the result is supported.
// The normalised code is returned either way so callers can still use it for lookups.
func Parse(s string) (Code, bool) {
	code := Code(strings.ToUpper(strings.TrimSpace(s)))
	return code, IsSupported(code)
}

// Symbol returns the display symbol for code, or the code itself when unmapped.
func Symbol(code Code) string {
	if sym, ok := symbols[code]; ok {
		return sym
	}
	return string(code)
}

// Name returns a human readable name, or the code itself when unmapped.
func Name(code Code) string {
	if name, ok := names[code]; ok {
		return name
	}
	return string(code)
}

// OrDefault returns code, or DefaultCode when code is empty.
func OrDefault(code Code) Code {
	if code == "" {
		return DefaultCode
	}
	return code
}

func (c Code) String() string {
	return string(c)
}

// UnmarshalText normalises decoded codes, so "eur" arriving over JSON is EUR.
// Unsupported codes are kept rather than rejected.
func (c *Code) UnmarshalText(text []byte) error {
	*c, _ = Parse(string(text))
	return nil
}
