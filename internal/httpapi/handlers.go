package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"budgetfx/internal/convert"
	"budgetfx/internal/currency"
	"budgetfx/internal/preference"
	"budgetfx/internal/projector"
	"budgetfx/internal/rates"
)

type snapshotResponse struct {
	Base              currency.Code             `json:"base"`
	FetchedAt         time.Time                 `json:"fetchedAt"`
	ProviderUpdatedAt string                    `json:"providerUpdatedAt,omitempty"`
	Rates             map[currency.Code]float64 `json:"rates"`
	Stale             bool                      `json:"stale"`
	Warning           string                    `json:"warning,omitempty"`
}

func (s *Server) snapshotResponse(snap *rates.Snapshot) snapshotResponse {
	stale, warning := s.status()
	out := snapshotResponse{
		Base:              snap.Base,
		FetchedAt:         snap.FetchedAt,
		ProviderUpdatedAt: snap.ProviderUpdatedAt,
		Rates:             make(map[currency.Code]float64, snap.Len()+1),
		Stale:             stale,
		Warning:           warning,
	}
	out.Rates[snap.Base] = 1
	for code, rate := range snap.Rates() {
		out.Rates[code] = rate.InexactFloat64()
	}
	return out
}

func (s *Server) health(c *gin.Context) {
	stale, warning := s.status()
	body := gin.H{
		"status":  "ok",
		"loading": s.rates.Loading(),
		"stale":   stale,
	}
	if warning != "" {
		body["warning"] = warning
	}
	if snap := s.rates.Current(); snap != nil {
		body["base"] = snap.Base
		body["fetchedAt"] = snap.FetchedAt
	}
	c.JSON(http.StatusOK, body)
}

type currencyResponse struct {
	Code   currency.Code `json:"code"`
	Name   string        `json:"name"`
	Symbol string        `json:"symbol"`
}

func (s *Server) listCurrencies(c *gin.Context) {
	codes := currency.Supported()
	out := make([]currencyResponse, 0, len(codes))
	for _, code := range codes {
		out = append(out, currencyResponse{Code: code, Name: currency.Name(code), Symbol: currency.Symbol(code)})
	}
	c.JSON(http.StatusOK, out)
}

type ratesQuery struct {
	Base string `form:"base" binding:"omitempty,currency"`
}

func (s *Server) getRates(c *gin.Context) {
	var q ratesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	base := s.base
	if q.Base != "" {
		base = mustCode(q.Base)
	}

	prev := s.rates.Current()
	res, err := s.rates.EnsureBase(c.Request.Context(), base)
	if err != nil {
		s.Observe(res, err)
		s.respondFetchError(c, err)
		return
	}
	if res.Stale || res.Snapshot != prev {
		s.Observe(res, nil)
	}
	snap := s.rates.Current()
	if snap == nil || snap.Base != base {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": rates.ErrNoSnapshot.Error()})
		return
	}
	c.JSON(http.StatusOK, s.snapshotResponse(snap))
}

type refreshRequest struct {
	Base string `json:"base" binding:"omitempty,currency"`
}

func (s *Server) refreshRates(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	base := s.base
	if req.Base != "" {
		base = mustCode(req.Base)
	}

	res, err := s.rates.Refresh(c.Request.Context(), base)
	s.Observe(res, err)
	if err != nil {
		s.respondFetchError(c, err)
		return
	}
	snap := res.Snapshot
	if snap == nil {
		snap = s.rates.Current()
	}
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": rates.ErrNoSnapshot.Error()})
		return
	}
	c.JSON(http.StatusOK, s.snapshotResponse(snap))
}

func (s *Server) respondFetchError(c *gin.Context, err error) {
	loggerFrom(c).Warn().Err(err).Msg("rates unavailable")
	var fe *rates.FetchError
	if errors.As(err, &fe) {
		c.JSON(http.StatusBadGateway, gin.H{"error": fe.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rates"})
}

type convertQuery struct {
	Amount *float64 `form:"amount" binding:"required,finite"`
	From   string   `form:"from" binding:"required,currency"`
	To     string   `form:"to" binding:"required,currency"`
	Locale string   `form:"locale"`
}

type convertResponse struct {
	Amount    float64       `json:"amount"`
	From      currency.Code `json:"from"`
	To        currency.Code `json:"to"`
	Converted float64       `json:"converted"`
	Rate      float64       `json:"rate"`
	Base      currency.Code `json:"base,omitempty"`
	Formatted string        `json:"formatted"`
}

func (s *Server) convert(c *gin.Context) {
	var q convertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}
	from, to := mustCode(q.From), mustCode(q.To)

	snap := s.rates.Current()
	converted, ok := convert.Convert(*q.Amount, from, to, snap)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no rate available for " + string(from) + " to " + string(to)})
		return
	}
	rate, _ := convert.Rate(from, to, snap)

	out := convertResponse{
		Amount:    *q.Amount,
		From:      from,
		To:        to,
		Converted: converted,
		Rate:      rate.InexactFloat64(),
		Formatted: s.formatter.FormatCurrency(converted, to, q.Locale),
	}
	if snap != nil {
		out.Base = snap.Base
	}
	c.JSON(http.StatusOK, out)
}

type projectionRequest struct {
	DisplayCurrency string                     `json:"displayCurrency" binding:"omitempty,currency"`
	Locale          string                     `json:"locale"`
	Budgets         []projector.MonetaryRecord `json:"budgets"`
	Items           []projector.MonetaryRecord `json:"items"`
}

type projectionResponse struct {
	projector.Projection
	FormattedItemsTotal string `json:"formattedItemsTotal"`
	Stale               bool   `json:"stale"`
}

func (s *Server) project(c *gin.Context) {
	var req projectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	display := s.prefs.DisplayCurrency()
	if req.DisplayCurrency != "" {
		display = mustCode(req.DisplayCurrency)
	}

	p := projector.ProjectBudget(req.Budgets, req.Items, display, s.rates.Current())
	stale, _ := s.status()
	c.JSON(http.StatusOK, projectionResponse{
		Projection:          p,
		FormattedItemsTotal: s.formatter.FormatCurrency(p.ItemsTotal, display, req.Locale),
		Stale:               stale,
	})
}

type formatQuery struct {
	Amount   *float64 `form:"amount" binding:"required,finite"`
	Currency string   `form:"currency" binding:"required,len=3"`
	Locale   string   `form:"locale"`
	Compact  bool     `form:"compact"`
}

func (s *Server) format(c *gin.Context) {
	var q formatQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}
	code := currency.Code(q.Currency)
	if parsed, ok := currency.Parse(q.Currency); ok {
		code = parsed
	}

	formatted := s.formatter.FormatCurrency(*q.Amount, code, q.Locale)
	if q.Compact {
		formatted = s.formatter.FormatCompactCurrency(*q.Amount, code, q.Locale)
	}
	c.JSON(http.StatusOK, gin.H{
		"formatted": formatted,
		"symbol":    s.formatter.Symbol(code),
	})
}

func (s *Server) getDisplayCurrency(c *gin.Context) {
	code := s.prefs.DisplayCurrency()
	c.JSON(http.StatusOK, gin.H{"currency": code, "name": currency.Name(code)})
}

type displayCurrencyRequest struct {
	Currency string `json:"currency" binding:"required,currency"`
}

func (s *Server) putDisplayCurrency(c *gin.Context) {
	var req displayCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	code := mustCode(req.Currency)
	body := gin.H{"currency": code, "name": currency.Name(code)}
	if err := s.prefs.Set(c.Request.Context(), code); err != nil {
		if errors.Is(err, preference.ErrUnsupported) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		loggerFrom(c).Warn().Err(err).Msg("display currency not persisted")
		body["warning"] = "preference not persisted"
	}
	c.JSON(http.StatusOK, body)
}
