// Package projector converts budget and line-item amounts into a single display currency.
package projector

import (
	"budgetfx/internal/convert"
	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
)

// Kind distinguishes the record sources handled by the projector.
type Kind string

const (
	KindBudget  Kind = "budget"
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// MonetaryRecord is an amount owned by the budget data source.
// A nil Currency means the record predates multi-currency support and is USD.
type MonetaryRecord struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind,omitempty"`
	Description string         `json:"description,omitempty"`
	Amount      float64        `json:"amount"`
	Currency    *currency.Code `json:"currency,omitempty"`
}

// OriginalCurrency resolves the record's currency case-insensitively, defaulting to USD.
func (r MonetaryRecord) OriginalCurrency() currency.Code {
	if r.Currency == nil {
		return currency.DefaultCode
	}
	code, _ := currency.Parse(string(*r.Currency))
	return currency.OrDefault(code)
}

// ConvertedRecord is a derived, never persisted view of a record.
type ConvertedRecord struct {
	MonetaryRecord
	OriginalCurrency currency.Code `json:"originalCurrency"`
	ConvertedAmount  float64       `json:"convertedAmount"`
	// Converted is false when no rate was available and ConvertedAmount is the original amount.
	Converted bool `json:"converted"`
}

// Project converts every record into display. Unconvertible records keep their
// original amount so the line stays visible.
func Project(records []MonetaryRecord, display currency.Code, snap *rates.Snapshot) []ConvertedRecord {
	out := make([]ConvertedRecord, 0, len(records))
	for _, rec := range records {
		original := rec.OriginalCurrency()
		amount, ok := convert.Convert(rec.Amount, original, display, snap)
		if !ok {
			amount = rec.Amount
		}
		out = append(out, ConvertedRecord{
			MonetaryRecord:   rec,
			OriginalCurrency: original,
			ConvertedAmount:  amount,
			Converted:        ok,
		})
	}
	return out
}

// TotalInCurrency sums records in target. Unconvertible records contribute zero,
// so a total never mixes magnitudes from different currencies.
func TotalInCurrency(records []MonetaryRecord, target currency.Code, snap *rates.Snapshot) float64 {
	var total float64
	for _, rec := range records {
		if amount, ok := convert.Convert(rec.Amount, rec.OriginalCurrency(), target, snap); ok {
			total += amount
		}
	}
	return total
}

// DetectCurrencies lists the distinct original currencies in first-seen order.
func DetectCurrencies(records ...[]MonetaryRecord) []currency.Code {
	seen := make(map[currency.Code]struct{})
	var out []currency.Code
	for _, group := range records {
		for _, rec := range group {
			code := rec.OriginalCurrency()
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}

// Projection is the combined view of budgets and line items in one display currency.
type Projection struct {
	Display    currency.Code     `json:"displayCurrency"`
	Budgets    []ConvertedRecord `json:"budgets"`
	Items      []ConvertedRecord `json:"items"`
	ItemsTotal float64           `json:"itemsTotal"`
	Currencies []currency.Code   `json:"detectedCurrencies"`
	Complete   bool              `json:"complete"`
}

// ProjectBudget projects budgets and items together. ItemsTotal follows
// TotalInCurrency; Complete reports whether every record converted.
func ProjectBudget(budgets, items []MonetaryRecord, display currency.Code, snap *rates.Snapshot) Projection {
	p := Projection{
		Display:    display,
		Budgets:    Project(budgets, display, snap),
		Items:      Project(items, display, snap),
		ItemsTotal: TotalInCurrency(items, display, snap),
		Currencies: DetectCurrencies(budgets, items),
		Complete:   true,
	}
	for _, group := range [][]ConvertedRecord{p.Budgets, p.Items} {
		for _, rec := range group {
			if !rec.Converted {
				p.Complete = false
			}
		}
	}
	return p
}
