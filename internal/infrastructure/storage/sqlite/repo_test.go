package sqlite

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"folio/internal/application/port"
	"folio/internal/domain"
)

func openRepo(t *testing.T, path string) *Repo {
	t.Helper()
	repo, err := New(path)
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
		os.Remove(path)
	})
	return repo
}

func TestLedgerInsertAndList(t *testing.T) {
	repo := openRepo(t, "test_ledger.db")
	ctx := context.Background()

	txs := []domain.Transaction{
		{
			ID: "t2", Ticker: "AAPL", Type: domain.TxSell,
			Quantity: decimal.NewFromInt(5), Price: decimal.NewFromInt(130),
			Currency: "USD", Timestamp: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: "t1", Ticker: "AAPL", Type: domain.TxBuy,
			Quantity: decimal.NewFromInt(10), Price: decimal.RequireFromString("100.50"),
			Currency: "USD", Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
			Note: "opening",
		},
	}
	for _, tx := range txs {
		if err := repo.Insert(ctx, tx); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := repo.List(ctx, port.TxFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transactions", len(got))
	}
	// oldest first regardless of insert order
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if !got[0].Price.Equal(decimal.RequireFromString("100.50")) {
		t.Errorf("price round-trip = %s", got[0].Price)
	}
	if got[0].Note != "opening" {
		t.Errorf("note = %q", got[0].Note)
	}
}

func TestLedgerListFilters(t *testing.T) {
	repo := openRepo(t, "test_ledger_filter.db")
	ctx := context.Background()

	seed := []struct {
		id     string
		ticker string
		typ    domain.TxType
		day    domain.Date
	}{
		{"t1", "AAPL", domain.TxBuy, domain.NewDate(2024, 1, 2)},
		{"t2", "SAP", domain.TxBuy, domain.NewDate(2024, 1, 10)},
		{"t3", "AAPL", domain.TxSell, domain.NewDate(2024, 2, 1)},
	}
	for _, s := range seed {
		err := repo.Insert(ctx, domain.Transaction{
			ID: s.id, Ticker: s.ticker, Type: s.typ,
			Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
			Currency: "USD", Timestamp: s.day.Time().Add(20 * time.Hour),
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := repo.List(ctx, port.TxFilter{Ticker: "AAPL"})
	if err != nil || len(got) != 2 {
		t.Fatalf("ticker filter: %d txs, err %v", len(got), err)
	}

	// To is inclusive of the whole day, even for late timestamps
	got, err = repo.List(ctx, port.TxFilter{To: domain.NewDate(2024, 1, 10)})
	if err != nil || len(got) != 2 {
		t.Fatalf("to filter: %d txs, err %v", len(got), err)
	}

	got, err = repo.List(ctx, port.TxFilter{From: domain.NewDate(2024, 1, 10), Type: domain.TxSell})
	if err != nil || len(got) != 1 || got[0].ID != "t3" {
		t.Fatalf("combined filter: %+v, err %v", got, err)
	}
}

func TestLedgerInsertBatchRollsBack(t *testing.T) {
	repo := openRepo(t, "test_ledger_batch.db")
	ctx := context.Background()

	mk := func(id string) domain.Transaction {
		return domain.Transaction{
			ID: id, Ticker: "AAPL", Type: domain.TxBuy,
			Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
			Currency: "USD", Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		}
	}
	// duplicate primary key in one batch must leave the table untouched
	_, err := repo.InsertBatch(ctx, []domain.Transaction{mk("t1"), mk("t1")})
	if err == nil {
		t.Fatal("want primary key violation, got none")
	}
	got, err := repo.List(ctx, port.TxFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("failed batch left %d rows", len(got))
	}
}

func TestPricesUpsertAndList(t *testing.T) {
	repo := openRepo(t, "test_prices.db")
	ctx := context.Background()

	obs := domain.PriceObservation{
		Ticker: "AAPL", Date: domain.NewDate(2024, 1, 2),
		Open: decimal.NewFromInt(100), High: decimal.NewFromInt(112),
		Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(110),
		Volume: 1000, Currency: "USD",
	}
	if _, err := repo.UpsertPrices(ctx, []domain.PriceObservation{obs}); err != nil {
		t.Fatalf("UpsertPrices failed: %v", err)
	}

	// second write for the same (ticker, day) replaces, not duplicates
	obs.Close = decimal.NewFromInt(111)
	if _, err := repo.UpsertPrices(ctx, []domain.PriceObservation{obs}); err != nil {
		t.Fatalf("UpsertPrices failed: %v", err)
	}

	got, err := repo.ListPricesUntil(ctx, nil, domain.NewDate(2024, 1, 31))
	if err != nil {
		t.Fatalf("ListPricesUntil failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d observations", len(got))
	}
	if !got[0].Close.Equal(decimal.NewFromInt(111)) {
		t.Errorf("close = %s after upsert", got[0].Close)
	}

	// until-date cutoff excludes later observations
	got, err = repo.ListPricesUntil(ctx, nil, domain.NewDate(2024, 1, 1))
	if err != nil || len(got) != 0 {
		t.Errorf("cutoff returned %d observations, err %v", len(got), err)
	}
}

func TestPricesTickerFilter(t *testing.T) {
	repo := openRepo(t, "test_prices_filter.db")
	ctx := context.Background()

	for _, ticker := range []string{"AAPL", "SAP", "MSFT"} {
		_, err := repo.UpsertPrices(ctx, []domain.PriceObservation{{
			Ticker: ticker, Date: domain.NewDate(2024, 1, 2),
			Open: decimal.NewFromInt(1), High: decimal.NewFromInt(1),
			Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(1),
			Currency: "USD",
		}})
		if err != nil {
			t.Fatalf("UpsertPrices failed: %v", err)
		}
	}

	got, err := repo.ListPricesUntil(ctx, []string{"AAPL", "MSFT"}, domain.NewDate(2024, 1, 31))
	if err != nil {
		t.Fatalf("ListPricesUntil failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d observations", len(got))
	}
}

func TestFxRatesUpsertAndList(t *testing.T) {
	repo := openRepo(t, "test_fx.db")
	ctx := context.Background()

	pair := domain.Pair{From: "EUR", To: "USD"}
	rates := []domain.FxRate{
		{Pair: pair, Date: domain.NewDate(2024, 1, 2), Rate: decimal.RequireFromString("1.10")},
		{Pair: pair, Date: domain.NewDate(2024, 1, 3), Rate: decimal.RequireFromString("1.12")},
	}
	if _, err := repo.UpsertFxRates(ctx, rates); err != nil {
		t.Fatalf("UpsertFxRates failed: %v", err)
	}

	got, err := repo.ListFxRatesUntil(ctx, domain.NewDate(2024, 1, 2))
	if err != nil {
		t.Fatalf("ListFxRatesUntil failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rates", len(got))
	}
	if got[0].Pair != pair || !got[0].Rate.Equal(decimal.RequireFromString("1.10")) {
		t.Errorf("rate = %+v", got[0])
	}
}

func TestInstrumentsRoundTrip(t *testing.T) {
	repo := openRepo(t, "test_instruments.db")
	ctx := context.Background()

	ins := domain.Instrument{Ticker: "AAPL", Currency: "USD", Name: "Apple Inc.", Exchange: "NASDAQ", AssetType: "EQUITY"}
	if err := repo.UpsertInstrument(ctx, ins); err != nil {
		t.Fatalf("UpsertInstrument failed: %v", err)
	}

	got, err := repo.GetInstrument(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetInstrument failed: %v", err)
	}
	if got != ins {
		t.Errorf("round-trip = %+v", got)
	}

	if _, err := repo.GetInstrument(ctx, "MISSING"); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("missing ticker err = %v", err)
	}

	all, err := repo.ListInstruments(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("ListInstruments: %d, err %v", len(all), err)
	}
}
