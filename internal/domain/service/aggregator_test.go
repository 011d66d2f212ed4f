package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"folio/internal/domain"
)

func ts(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 14, 30, 0, 0, time.UTC)
}

func tx(id string, typ domain.TxType, ticker, qty, price string, cur domain.Currency, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		Ticker:    ticker,
		Type:      typ,
		Quantity:  dec(qty),
		Price:     dec(price),
		Currency:  cur,
		Timestamp: at,
	}
}

func usdAggregator(allowShort bool, rates ...domain.FxRate) *Aggregator {
	return NewAggregator(NewNormalizer(marketWithRates(rates...)), "USD", allowShort)
}

func TestAggregateAverageCost(t *testing.T) {
	agg := usdAggregator(false)
	txs := []domain.Transaction{
		tx("t1", domain.TxBuy, "AAPL", "10", "100", "USD", ts(2024, 1, 2)),
		tx("t2", domain.TxBuy, "AAPL", "10", "120", "USD", ts(2024, 1, 3)),
	}
	pos, err := agg.Aggregate("AAPL", txs)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.Quantity.Equal(dec("20")) {
		t.Errorf("quantity = %s, want 20", pos.Quantity)
	}
	if !pos.AvgCost.Equal(dec("110")) {
		t.Errorf("avg cost = %s, want 110", pos.AvgCost)
	}
}

func TestAggregateSellRealizesAgainstAverage(t *testing.T) {
	agg := usdAggregator(false)
	txs := []domain.Transaction{
		tx("t1", domain.TxBuy, "AAPL", "10", "100", "USD", ts(2024, 1, 2)),
		tx("t2", domain.TxBuy, "AAPL", "10", "120", "USD", ts(2024, 1, 3)),
		tx("t3", domain.TxSell, "AAPL", "5", "130", "USD", ts(2024, 1, 4)),
	}
	pos, err := agg.Aggregate("AAPL", txs)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.RealizedPnL.Equal(dec("100")) {
		t.Errorf("realized = %s, want 100", pos.RealizedPnL)
	}
	if !pos.Quantity.Equal(dec("15")) {
		t.Errorf("quantity = %s, want 15", pos.Quantity)
	}
	if !pos.AvgCost.Equal(dec("110")) {
		t.Errorf("avg cost = %s, want 110 (sell must not move it)", pos.AvgCost)
	}
}

func TestAggregateSellToZero(t *testing.T) {
	agg := usdAggregator(false)
	txs := []domain.Transaction{
		tx("t1", domain.TxBuy, "AAPL", "10", "100", "USD", ts(2024, 1, 2)),
		tx("t2", domain.TxSell, "AAPL", "10", "115", "USD", ts(2024, 1, 9)),
	}
	pos, err := agg.Aggregate("AAPL", txs)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.Quantity.IsZero() {
		t.Errorf("quantity = %s, want exactly 0", pos.Quantity)
	}
	if !pos.RealizedPnL.Equal(dec("150")) {
		t.Errorf("realized = %s, want 150", pos.RealizedPnL)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	agg := usdAggregator(false)
	txs := []domain.Transaction{
		tx("t1", domain.TxBuy, "AAPL", "10", "100", "USD", ts(2024, 1, 2)),
		tx("t2", domain.TxSell, "AAPL", "4", "120", "USD", ts(2024, 1, 5)),
		tx("t3", domain.TxDividend, "AAPL", "0", "12.50", "USD", ts(2024, 1, 8)),
		tx("t4", domain.TxFee, "AAPL", "0", "1.25", "USD", ts(2024, 1, 8)),
	}
	first, err := agg.Aggregate("AAPL", txs)
	if err != nil {
		t.Fatal(err)
	}
	second, err := agg.Aggregate("AAPL", txs)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Quantity.Equal(second.Quantity) ||
		!first.AvgCost.Equal(second.AvgCost) ||
		!first.RealizedPnL.Equal(second.RealizedPnL) {
		t.Errorf("replay diverged: %+v vs %+v", first, second)
	}
}

func TestAggregateDividendAndFee(t *testing.T) {
	agg := usdAggregator(false)
	txs := []domain.Transaction{
		tx("t1", domain.TxBuy, "AAPL", "10", "100", "USD", ts(2024, 1, 2)),
		tx("t2", domain.TxDividend, "AAPL", "0", "25", "USD", ts(2024, 2, 1)),
		tx("t3", domain.TxFee, "AAPL", "0", "4", "USD", ts(2024, 2, 1)),
	}
	pos, err := agg.Aggregate("AAPL", txs)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.RealizedPnL.Equal(dec("21")) {
		t.Errorf("realized = %s, want 21", pos.RealizedPnL)
	}
	if !pos.Quantity.Equal(dec("10")) || !pos.AvgCost.Equal(dec("100")) {
		t.Errorf("cash events must not move quantity/avg cost: %+v", pos)
	}
}

func TestAggregateOversellFails(t *testing.T) {
	agg := usdAggregator(false)
	pos, err := agg.Aggregate("AAPL", []domain.Transaction{
		tx("t1", domain.TxBuy, "AAPL", "5", "100", "USD", ts(2024, 1, 2)),
	})
	if err != nil {
		t.Fatal(err)
	}

	before := pos
	_, err = agg.Apply(pos, tx("t2", domain.TxSell, "AAPL", "8", "100", "USD", ts(2024, 1, 3)))
	var insufficient *domain.InsufficientPositionError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientPositionError, got %v", err)
	}
	if !insufficient.Requested.Equal(dec("8")) || !insufficient.Held.Equal(dec("5")) {
		t.Errorf("error fields: requested %s held %s", insufficient.Requested, insufficient.Held)
	}
	// the failed apply must leave the position untouched
	if !pos.Quantity.Equal(before.Quantity) || !pos.AvgCost.Equal(before.AvgCost) {
		t.Errorf("position changed by failed apply: %+v", pos)
	}
}

func TestAggregateShortSellingWhenAllowed(t *testing.T) {
	agg := usdAggregator(true)
	pos, err := agg.Aggregate("AAPL", []domain.Transaction{
		tx("t1", domain.TxSell, "AAPL", "3", "100", "USD", ts(2024, 1, 2)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !pos.Quantity.Equal(dec("-3")) {
		t.Errorf("quantity = %s, want -3", pos.Quantity)
	}
}

func TestAggregateConvertsAtTransactionDate(t *testing.T) {
	agg := usdAggregator(false,
		rate("EUR", "USD", d(2024, 1, 2), "1.10"),
		rate("EUR", "USD", d(2024, 1, 10), "1.20"),
	)
	txs := []domain.Transaction{
		// each buy converts at its own day's rate: 100*1.10 and 100*1.20
		tx("t1", domain.TxBuy, "SAP", "10", "100", "EUR", ts(2024, 1, 2)),
		tx("t2", domain.TxBuy, "SAP", "10", "100", "EUR", ts(2024, 1, 10)),
	}
	pos, err := agg.Aggregate("SAP", txs)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.AvgCost.Equal(dec("115")) {
		t.Errorf("avg cost = %s, want 115", pos.AvgCost)
	}
}

func TestAggregateMalformed(t *testing.T) {
	agg := usdAggregator(false)
	cases := []domain.Transaction{
		tx("m1", domain.TxBuy, "AAPL", "0", "100", "USD", ts(2024, 1, 2)),
		tx("m2", domain.TxBuy, "AAPL", "-1", "100", "USD", ts(2024, 1, 2)),
		tx("m3", domain.TxSell, "AAPL", "1", "0", "USD", ts(2024, 1, 2)),
		tx("m4", "TRANSFER", "AAPL", "1", "100", "USD", ts(2024, 1, 2)),
	}
	for _, bad := range cases {
		t.Run(bad.ID, func(t *testing.T) {
			_, err := agg.Aggregate("AAPL", []domain.Transaction{bad})
			var malformed *domain.MalformedTransactionError
			if !errors.As(err, &malformed) {
				t.Fatalf("want MalformedTransactionError, got %v", err)
			}
		})
	}
}

func TestAggregateFailsWithoutRate(t *testing.T) {
	agg := usdAggregator(false) // no fx data at all
	_, err := agg.Aggregate("SAP", []domain.Transaction{
		tx("t1", domain.TxBuy, "SAP", "10", "100", "EUR", ts(2024, 1, 2)),
	})
	var rateErr *domain.RateUnavailableError
	if !errors.As(err, &rateErr) {
		t.Fatalf("want RateUnavailableError, got %v", err)
	}
}

func TestSortTransactionsTiebreak(t *testing.T) {
	at := ts(2024, 1, 2)
	txs := []domain.Transaction{
		tx("b", domain.TxBuy, "AAPL", "1", "100", "USD", at),
		tx("a", domain.TxBuy, "AAPL", "1", "100", "USD", at),
		tx("c", domain.TxBuy, "AAPL", "1", "100", "USD", at.Add(-time.Hour)),
	}
	domain.SortTransactions(txs)
	got := fmt.Sprintf("%s%s%s", txs[0].ID, txs[1].ID, txs[2].ID)
	if got != "cab" {
		t.Errorf("order = %s, want cab", got)
	}
}
