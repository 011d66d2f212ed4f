package service

import (
	"github.com/shopspring/decimal"

	"folio/internal/domain"
)

// PriceSource yields the newest price observation for a ticker on or before
// a day. *domain.MarketData satisfies it.
type PriceSource interface {
	PriceOnOrBefore(ticker string, on domain.Date) (domain.PriceObservation, bool)
}

// Valuer marks an aggregated position to market: it fills in MarketValue and
// UnrealizedPnL from the latest usable close.
type Valuer struct {
	prices PriceSource
	fx     *Normalizer
	base   domain.Currency
}

func NewValuer(prices PriceSource, fx *Normalizer, base domain.Currency) *Valuer {
	return &Valuer{prices: prices, fx: fx, base: base}
}

// Value returns a copy of pos with MarketValue and UnrealizedPnL set as of
// the given day. quote is the currency the ticker's prices are quoted in;
// when empty, the observation's own currency is used, and failing that the
// price is assumed to already be in the base currency.
//
// A position with zero quantity values to zero without any price lookup,
// so untraded or fully closed tickers never fail on missing data. A nonzero
// position with no observation on or before the day fails with
// *domain.PriceUnavailableError.
func (v *Valuer) Value(pos domain.Position, quote domain.Currency, on domain.Date) (domain.Position, error) {
	if pos.Quantity.IsZero() {
		pos.MarketValue = decimal.Zero
		pos.UnrealizedPnL = decimal.Zero
		return pos, nil
	}

	obs, ok := v.prices.PriceOnOrBefore(pos.Ticker, on)
	if !ok {
		return domain.Position{}, &domain.PriceUnavailableError{Ticker: pos.Ticker, On: on}
	}
	if quote == "" {
		quote = obs.Currency
	}
	if quote == "" {
		quote = v.base
	}

	price, err := v.fx.Convert(obs.Close, quote, v.base, on)
	if err != nil {
		return domain.Position{}, err
	}

	pos.MarketValue = pos.Quantity.Mul(price)
	pos.UnrealizedPnL = pos.MarketValue.Sub(pos.CostBasis())
	return pos, nil
}
