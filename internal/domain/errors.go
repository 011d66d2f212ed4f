package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// The calculation core reports four failure kinds. All carry enough fields
// for a caller to say exactly what was missing; none of them is ever
// papered over with a zero value.

// RateUnavailableError: no fx rate exists on or before the requested date
// for the pair, in either direction.
type RateUnavailableError struct {
	From Currency
	To   Currency
	On   Date
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("no fx rate %s->%s on or before %s", e.From, e.To, e.On)
}

// PriceUnavailableError: a ticker with nonzero quantity has no price
// observation on or before the valuation date.
type PriceUnavailableError struct {
	Ticker string
	On     Date
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("no price for %s on or before %s", e.Ticker, e.On)
}

// InsufficientPositionError: a SELL exceeds the tracked quantity while short
// positions are disallowed.
type InsufficientPositionError struct {
	Ticker    string
	Requested decimal.Decimal
	Held      decimal.Decimal
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("sell of %s %s exceeds held quantity %s", e.Requested, e.Ticker, e.Held)
}

// MalformedTransactionError: a ledger event violates the shape rules
// (non-positive quantity or price where one is required, unknown type).
type MalformedTransactionError struct {
	ID     string
	Reason string
}

func (e *MalformedTransactionError) Error() string {
	return fmt.Sprintf("malformed transaction %s: %s", e.ID, e.Reason)
}
