// Package domain holds the value types and the pure calculation core of the
// portfolio tracker. Nothing in this package performs I/O; storage adapters
// read these types out of their tables and hand them in by value.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-4217 code ("USD", "EUR").
type Currency string

// Pair is a directed currency pair: Rate converts one unit of From into
// Rate units of To.
type Pair struct {
	From Currency `json:"from"`
	To   Currency `json:"to"`
}

// Inverse returns the opposite direction of the pair.
func (p Pair) Inverse() Pair { return Pair{From: p.To, To: p.From} }

func (p Pair) String() string { return string(p.From) + string(p.To) }

// TxType enumerates the supported ledger event kinds.
type TxType string

const (
	TxBuy      TxType = "BUY"
	TxSell     TxType = "SELL"
	TxDividend TxType = "DIVIDEND"
	TxFee      TxType = "FEE"
)

// ParseTxType normalizes and validates a transaction type string.
func ParseTxType(s string) (TxType, error) {
	t := TxType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TxBuy, TxSell, TxDividend, TxFee:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Transaction is a single immutable ledger event. BUY and SELL carry a
// per-unit Price and a positive Quantity. DIVIDEND and FEE are cash events:
// they may record the cash amount either as Quantity×Price or, with a zero
// Quantity, in Price alone.
type Transaction struct {
	ID        string          `json:"id"`
	Ticker    string          `json:"ticker"`
	Type      TxType          `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Currency  Currency        `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
	Note      string          `json:"note,omitempty"`
}

// Date is the UTC calendar day the transaction settles on; conversions use
// the fx rate of this day.
func (t Transaction) Date() Date { return DateOf(t.Timestamp) }

// GrossAmount is the cash value of the event in the transaction's own
// currency.
func (t Transaction) GrossAmount() decimal.Decimal {
	if t.Quantity.IsZero() {
		return t.Price
	}
	return t.Quantity.Mul(t.Price)
}

// SortTransactions orders a ledger chronologically, ascending by timestamp
// with the id as a deterministic tiebreak.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].ID < txs[j].ID
	})
}

// PriceObservation is one daily candle for an instrument. Keyed by
// (ticker, date); a later write for the same key replaces the row.
type PriceObservation struct {
	Ticker   string          `json:"ticker"`
	Date     Date            `json:"date"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   int64           `json:"volume,omitempty"`
	Currency Currency        `json:"currency"`
}

// FxRate is one daily exchange-rate observation. Keyed by (pair, date).
type FxRate struct {
	Pair Pair            `json:"pair"`
	Date Date            `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// Instrument is a registry entry for a traded ticker; its Currency is the
// currency prices for the ticker are quoted in.
type Instrument struct {
	Ticker    string   `json:"ticker"`
	Currency  Currency `json:"currency"`
	Name      string   `json:"name,omitempty"`
	Exchange  string   `json:"exchange,omitempty"`
	AssetType string   `json:"asset_type,omitempty"`
}

// Position is the derived state of one holding, all monetary fields in the
// base currency. It is recomputed from the ledger on demand and never acts
// as a source of truth.
type Position struct {
	Ticker        string          `json:"ticker"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MarketValue   decimal.Decimal `json:"market_value"`
	Currency      Currency        `json:"currency"`
}

// CostBasis is the total base-currency cost of the held quantity.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AvgCost)
}

// HistoryPoint is the portfolio's state on one calendar day, in the base
// currency. Invested and Withdrawn are cumulative buy cost and sell proceeds
// up to and including the day.
type HistoryPoint struct {
	Date       Date                       `json:"date"`
	TotalValue decimal.Decimal            `json:"total_value"`
	Invested   decimal.Decimal            `json:"invested_value"`
	Withdrawn  decimal.Decimal            `json:"withdrawn_value"`
	Breakdown  map[string]decimal.Decimal `json:"breakdown,omitempty"`
}

// TotalPnL is market value plus everything taken out, minus everything put
// in.
func (h HistoryPoint) TotalPnL() decimal.Decimal {
	return h.TotalValue.Add(h.Withdrawn).Sub(h.Invested)
}
