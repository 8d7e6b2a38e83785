package currency

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNormalises(t *testing.T) {
	code, ok := Parse(" eur ")
	assert.True(t, ok)
	assert.Equal(t, EUR, code)

	code, ok = Parse("xyz")
	assert.False(t, ok)
	assert.Equal(t, Code("XYZ"), code)
}

func TestSupportedOrderAndCopy(t *testing.T) {
	list := Supported()
	assert.Len(t, list, 12)
	assert.Equal(t, USD, list[0])
	assert.Equal(t, CNY, list[len(list)-1])

	list[0] = "ZZZ"
	assert.Equal(t, USD, Supported()[0])
}

func TestSymbol(t *testing.T) {
	cases := map[Code]string{
		USD: "$", EUR: "€", BRL: "R$", MXN: "$", ARS: "$", COP: "$",
		CLP: "$", PEN: "S/", CAD: "C$", GBP: "£", JPY: "¥", CNY: "¥",
		"CHF": "CHF",
	}
	for code, want := range cases {
		assert.Equal(t, want, Symbol(code), "symbol for %s", code)
	}
}

func TestNameFallsBackToCode(t *testing.T) {
	assert.Equal(t, "Euro", Name(EUR))
	assert.Equal(t, "SEK", Name("SEK"))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, USD, OrDefault(""))
	assert.Equal(t, GBP, OrDefault(GBP))
}

func TestUnmarshalNormalises(t *testing.T) {
	var doc struct {
		Currency Code             `json:"currency"`
		Rates    map[Code]float64 `json:"rates"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"currency":" brl","rates":{"eur":0.9,"xyz":1}}`), &doc))
	assert.Equal(t, BRL, doc.Currency)
	assert.Equal(t, 0.9, doc.Rates[EUR])
	assert.Equal(t, 1.0, doc.Rates["XYZ"])
}
