// Package service implements the valuation core: currency normalization,
// position aggregation, market valuation and portfolio history replay. Every
// component here is a pure function over a market snapshot supplied by the
// caller; blocking I/O stays in the storage adapters.
package service

import (
	"folio/internal/domain"

	"github.com/shopspring/decimal"
)

// RateSource yields the newest fx observation for an exact directed pair on
// or before a day. *domain.MarketData satisfies it.
type RateSource interface {
	RateOnOrBefore(pair domain.Pair, on domain.Date) (domain.FxRate, bool)
}

// Normalizer converts amounts between currencies using dated fx
// observations, carrying the last known rate forward across gaps.
type Normalizer struct {
	rates RateSource
}

func NewNormalizer(rates RateSource) *Normalizer {
	return &Normalizer{rates: rates}
}

// Convert turns amount from one currency into another at the given day.
// Identity conversions never touch the rate source. When only the inverse
// pair is stored the reciprocal is used; when both directions have
// observations the one with the newer date wins, direct on a tie. Returns
// *domain.RateUnavailableError when neither direction has an observation on
// or before the day.
func (n *Normalizer) Convert(amount decimal.Decimal, from, to domain.Currency, on domain.Date) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	direct, haveDirect := n.rates.RateOnOrBefore(domain.Pair{From: from, To: to}, on)
	inverse, haveInverse := n.rates.RateOnOrBefore(domain.Pair{From: to, To: from}, on)

	// A zero stored rate can never convert anything; treat it as absent
	// rather than dividing by it or multiplying into a silent zero.
	if haveDirect && direct.Rate.IsZero() {
		haveDirect = false
	}
	if haveInverse && inverse.Rate.IsZero() {
		haveInverse = false
	}

	switch {
	case haveDirect && haveInverse:
		if inverse.Date.After(direct.Date) {
			return amount.Div(inverse.Rate), nil
		}
		return amount.Mul(direct.Rate), nil
	case haveDirect:
		return amount.Mul(direct.Rate), nil
	case haveInverse:
		return amount.Div(inverse.Rate), nil
	default:
		return decimal.Decimal{}, &domain.RateUnavailableError{From: from, To: to, On: on}
	}
}
