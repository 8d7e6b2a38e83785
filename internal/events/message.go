package events

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
)

// RatesRefreshed is published whenever a new snapshot is installed.
type RatesRefreshed struct {
	Base              currency.Code     `json:"base"`
	FetchedAt         time.Time         `json:"fetchedAt"`
	ProviderUpdatedAt string            `json:"providerUpdatedAt,omitempty"`
	Rates             map[string]string `json:"rates"`
	Currencies        []currency.Code   `json:"currencies"`
}

// NewRatesRefreshed builds the message for snap.
func NewRatesRefreshed(snap *rates.Snapshot) RatesRefreshed {
	msg := RatesRefreshed{
		Base:              snap.Base,
		FetchedAt:         snap.FetchedAt,
		ProviderUpdatedAt: snap.ProviderUpdatedAt,
		Rates:             make(map[string]string, snap.Len()),
	}
	for code, rate := range snap.Rates() {
		msg.Rates[string(code)] = rate.String()
		msg.Currencies = append(msg.Currencies, code)
	}
	sort.Slice(msg.Currencies, func(i, j int) bool { return msg.Currencies[i] < msg.Currencies[j] })
	return msg
}

// ToJSON encodes the message body.
func (m RatesRefreshed) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RatesRefreshedFromJSON decodes a message body.
func RatesRefreshedFromJSON(body []byte) (RatesRefreshed, error) {
	var msg RatesRefreshed
	if err := json.Unmarshal(body, &msg); err != nil {
		return RatesRefreshed{}, fmt.Errorf("decode rates refreshed: %w", err)
	}
	return msg, nil
}
