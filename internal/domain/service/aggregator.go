package service

import (
	"github.com/shopspring/decimal"

	"folio/internal/domain"
)

// Aggregator folds a chronological ledger into a Position carrying quantity,
// running-average cost basis and realized P&L, all in the base currency.
type Aggregator struct {
	fx         *Normalizer
	base       domain.Currency
	allowShort bool
}

// NewAggregator builds an aggregator reporting in the given base currency.
// With allowShort false a SELL beyond the held quantity fails with
// *domain.InsufficientPositionError.
func NewAggregator(fx *Normalizer, base domain.Currency, allowShort bool) *Aggregator {
	return &Aggregator{fx: fx, base: base, allowShort: allowShort}
}

// Base is the currency every aggregated figure is reported in.
func (a *Aggregator) Base() domain.Currency { return a.base }

// Aggregate folds the full transaction history of one ticker, in order, into
// a Position. The input must already be sorted ascending by timestamp with
// id tiebreaks (domain.SortTransactions). The fold is all-or-nothing: on any
// failure the zero Position and the typed error are returned.
func (a *Aggregator) Aggregate(ticker string, txs []domain.Transaction) (domain.Position, error) {
	pos := domain.Position{Ticker: ticker, Currency: a.base}
	for _, tx := range txs {
		next, err := a.Apply(pos, tx)
		if err != nil {
			return domain.Position{}, err
		}
		pos = next
	}
	return pos, nil
}

// Apply advances a position by a single ledger event. It never mutates its
// input, so a failed apply leaves the caller's state exactly as it was.
func (a *Aggregator) Apply(pos domain.Position, tx domain.Transaction) (domain.Position, error) {
	if err := a.check(tx); err != nil {
		return domain.Position{}, err
	}

	on := tx.Date()
	switch tx.Type {
	case domain.TxBuy:
		price, err := a.fx.Convert(tx.Price, tx.Currency, a.base, on)
		if err != nil {
			return domain.Position{}, err
		}
		newQty := pos.Quantity.Add(tx.Quantity)
		if newQty.IsZero() {
			// a buy covering a short back to flat has no held basis
			pos.AvgCost = decimal.Zero
		} else {
			// weighted average over the old basis and the new purchase
			cost := pos.Quantity.Mul(pos.AvgCost).Add(tx.Quantity.Mul(price))
			pos.AvgCost = cost.Div(newQty)
		}
		pos.Quantity = newQty

	case domain.TxSell:
		price, err := a.fx.Convert(tx.Price, tx.Currency, a.base, on)
		if err != nil {
			return domain.Position{}, err
		}
		if !a.allowShort && tx.Quantity.GreaterThan(pos.Quantity) {
			return domain.Position{}, &domain.InsufficientPositionError{
				Ticker:    tx.Ticker,
				Requested: tx.Quantity,
				Held:      pos.Quantity,
			}
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(tx.Quantity.Mul(price.Sub(pos.AvgCost)))
		pos.Quantity = pos.Quantity.Sub(tx.Quantity)
		if pos.Quantity.IsZero() {
			pos.AvgCost = decimal.Zero
		}

	case domain.TxDividend:
		amount, err := a.fx.Convert(tx.GrossAmount(), tx.Currency, a.base, on)
		if err != nil {
			return domain.Position{}, err
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(amount)

	case domain.TxFee:
		amount, err := a.fx.Convert(tx.GrossAmount(), tx.Currency, a.base, on)
		if err != nil {
			return domain.Position{}, err
		}
		pos.RealizedPnL = pos.RealizedPnL.Sub(amount)
	}
	return pos, nil
}

func (a *Aggregator) check(tx domain.Transaction) error {
	switch tx.Type {
	case domain.TxBuy, domain.TxSell:
		if !tx.Quantity.IsPositive() {
			return &domain.MalformedTransactionError{ID: tx.ID, Reason: "quantity must be positive"}
		}
		if !tx.Price.IsPositive() {
			return &domain.MalformedTransactionError{ID: tx.ID, Reason: "price must be positive"}
		}
	case domain.TxDividend, domain.TxFee:
		if tx.GrossAmount().IsNegative() {
			return &domain.MalformedTransactionError{ID: tx.ID, Reason: "cash amount must not be negative"}
		}
	default:
		return &domain.MalformedTransactionError{ID: tx.ID, Reason: "unknown type " + string(tx.Type)}
	}
	return nil
}
