// Package fetcher retrieves conversion rates from the remote rate provider.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"budgetfx/internal/currency"
	"budgetfx/internal/rates"
)

const defaultBaseURL = "https://v6.exchangerate-api.com/v6"

// Options parameterise the ExchangeRate-API fetcher.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// ExchangeRateAPI fetches latest rates from a v6 ExchangeRate-API compatible endpoint.
type ExchangeRateAPI struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// New constructs the fetcher.
func New(opts Options, logger zerolog.Logger) *ExchangeRateAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &ExchangeRateAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "rate_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		now:     time.Now,
	}
}

// FetchRates issues GET {base_url}/{api_key}/latest/{base}.
// Any non-200 response or a payload without conversion_rates is a *rates.FetchError.
func (e *ExchangeRateAPI) FetchRates(ctx context.Context, base currency.Code) (*rates.Snapshot, error) {
	latest, err := e.get(ctx, base, "latest/"+url.PathEscape(string(base)))
	if err != nil {
		return nil, err
	}
	table, err := parseRates(base, latest)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().Str("base", string(base)).Int("rates", len(table)).Msg("fetched latest rates")
	return rates.NewSnapshot(base, table, e.now(), latest.TimeLastUpdateUTC), nil
}

// FetchHistorical issues GET {base_url}/{api_key}/history/{base}/{yyyy}/{m}/{d}.
// The snapshot's FetchedAt is the UTC start of day.
func (e *ExchangeRateAPI) FetchHistorical(ctx context.Context, base currency.Code, day time.Time) (*rates.Snapshot, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	path := fmt.Sprintf("history/%s/%d/%d/%d", url.PathEscape(string(base)), day.Year(), int(day.Month()), day.Day())
	resp, err := e.get(ctx, base, path)
	if err != nil {
		return nil, err
	}
	table, err := parseRates(base, resp)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().Str("base", string(base)).Time("day", day).Int("rates", len(table)).Msg("fetched historical rates")
	return rates.NewSnapshot(base, table, day, day.Format(time.RFC1123Z)), nil
}

func (e *ExchangeRateAPI) get(ctx context.Context, base currency.Code, path string) (*latestResponse, error) {
	if e.opts.APIKey == "" {
		return nil, &rates.FetchError{Base: base, Err: errors.New("provider api key not configured")}
	}
	if base == "" {
		return nil, &rates.FetchError{Base: base, Err: errors.New("base currency required")}
	}

	endpoint := fmt.Sprintf("%s/%s/%s", e.baseURL, url.PathEscape(e.opts.APIKey), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &rates.FetchError{Base: base, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(e.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "budgetfx/1.0")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &rates.FetchError{Base: base, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &rates.FetchError{Base: base, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &rates.FetchError{Base: base, StatusCode: resp.StatusCode, Err: parseHTTPError(resp.StatusCode, payload)}
	}

	var decoded latestResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, &rates.FetchError{Base: base, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode payload: %w", err)}
	}
	if decoded.Result == "error" {
		return nil, &rates.FetchError{Base: base, StatusCode: resp.StatusCode, Err: fmt.Errorf("provider error: %s", decoded.ErrorType)}
	}
	decoded.status = resp.StatusCode
	return &decoded, nil
}

func parseRates(base currency.Code, resp *latestResponse) (map[currency.Code]decimal.Decimal, error) {
	if len(resp.ConversionRates) == 0 {
		return nil, &rates.FetchError{Base: base, StatusCode: resp.status, Err: rates.ErrMissingRates}
	}

	table := make(map[currency.Code]decimal.Decimal, len(resp.ConversionRates))
	for code, raw := range resp.ConversionRates {
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, &rates.FetchError{Base: base, StatusCode: resp.status, Err: fmt.Errorf("parse rate %s: %w", code, err)}
		}
		table[currency.Code(code)] = rate
	}
	return table, nil
}

type latestResponse struct {
	Result            string                 `json:"result"`
	ErrorType         string                 `json:"error-type"`
	BaseCode          string                 `json:"base_code"`
	TimeLastUpdateUTC string                 `json:"time_last_update_utc"`
	ConversionRates   map[string]json.Number `json:"conversion_rates"`

	status int
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr latestResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.ErrorType != "" {
		return fmt.Errorf("exchangerate api error (%d): %s", status, apiErr.ErrorType)
	}
	if len(payload) > 0 {
		return fmt.Errorf("exchangerate api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("exchangerate api error (%d)", status)
}

var _ rates.Provider = (*ExchangeRateAPI)(nil)
