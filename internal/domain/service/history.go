package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"folio/internal/domain"
)

// InstrumentSource resolves the registry entry (and with it the quote
// currency) for a ticker. *domain.MarketData satisfies it.
type InstrumentSource interface {
	Instrument(ticker string) (domain.Instrument, bool)
}

// HistoryBuilder replays a ledger chronologically against daily price and fx
// snapshots, producing one HistoryPoint per calendar day of the requested
// range. Positions are advanced incrementally day by day instead of
// re-aggregating the full ledger for every point; history spanning years of
// daily points stays linear in transactions plus days.
type HistoryBuilder struct {
	agg         *Aggregator
	valuer      *Valuer
	fx          *Normalizer
	instruments InstrumentSource
}

func NewHistoryBuilder(agg *Aggregator, valuer *Valuer, fx *Normalizer, instruments InstrumentSource) *HistoryBuilder {
	return &HistoryBuilder{agg: agg, valuer: valuer, fx: fx, instruments: instruments}
}

// Build produces the portfolio value series for [from, to], both inclusive.
// The first point is seeded from every transaction dated strictly before the
// range start. Days without trades or fresh prices still produce a point,
// valued with the last observations carried forward. The result is
// all-or-nothing: a single unresolvable price or rate fails the whole build.
func (b *HistoryBuilder) Build(txs []domain.Transaction, from, to domain.Date) ([]domain.HistoryPoint, error) {
	if from.After(to) {
		return nil, fmt.Errorf("history range %s..%s is reversed", from, to)
	}

	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	domain.SortTransactions(ordered)

	state := make(map[string]domain.Position)
	invested := decimal.Zero
	withdrawn := decimal.Zero

	apply := func(tx domain.Transaction) error {
		pos, ok := state[tx.Ticker]
		if !ok {
			pos = domain.Position{Ticker: tx.Ticker, Currency: b.agg.Base()}
		}
		next, err := b.agg.Apply(pos, tx)
		if err != nil {
			return err
		}
		state[tx.Ticker] = next

		switch tx.Type {
		case domain.TxBuy, domain.TxSell:
			amount, err := b.fx.Convert(tx.GrossAmount(), tx.Currency, b.agg.Base(), tx.Date())
			if err != nil {
				return err
			}
			if tx.Type == domain.TxBuy {
				invested = invested.Add(amount)
			} else {
				withdrawn = withdrawn.Add(amount)
			}
		}
		return nil
	}

	// Seed the opening state from everything before the range.
	i := 0
	for ; i < len(ordered) && ordered[i].Date().Before(from); i++ {
		if err := apply(ordered[i]); err != nil {
			return nil, err
		}
	}

	var points []domain.HistoryPoint
	for day := from; !day.After(to); day = day.AddDays(1) {
		for ; i < len(ordered) && !ordered[i].Date().After(day); i++ {
			if err := apply(ordered[i]); err != nil {
				return nil, err
			}
		}

		point, err := b.valueDay(state, day)
		if err != nil {
			return nil, err
		}
		point.Invested = invested
		point.Withdrawn = withdrawn
		points = append(points, point)
	}
	return points, nil
}

// valueDay marks every open position to market as of one day. Tickers are
// valued in parallel; each goroutine reads disjoint data and writes its own
// slot, and the total is summed only after the join, so the result is
// deterministic.
func (b *HistoryBuilder) valueDay(state map[string]domain.Position, day domain.Date) (domain.HistoryPoint, error) {
	tickers := make([]string, 0, len(state))
	for ticker, pos := range state {
		if pos.Quantity.IsZero() {
			continue
		}
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	values := make([]decimal.Decimal, len(tickers))
	errs := make([]error, len(tickers))

	var wg sync.WaitGroup
	for idx, ticker := range tickers {
		wg.Add(1)
		go func(idx int, ticker string) {
			defer wg.Done()
			var quote domain.Currency
			if ins, ok := b.instruments.Instrument(ticker); ok {
				quote = ins.Currency
			}
			valued, err := b.valuer.Value(state[ticker], quote, day)
			if err != nil {
				errs[idx] = err
				return
			}
			values[idx] = valued.MarketValue
		}(idx, ticker)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return domain.HistoryPoint{}, err
		}
	}

	point := domain.HistoryPoint{
		Date:       day,
		TotalValue: decimal.Zero,
		Breakdown:  make(map[string]decimal.Decimal, len(tickers)),
	}
	for idx, ticker := range tickers {
		point.TotalValue = point.TotalValue.Add(values[idx])
		point.Breakdown[ticker] = values[idx]
	}
	return point, nil
}
