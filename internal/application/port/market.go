package port

import (
	"context"

	"folio/internal/domain"
)

// MarketStore holds daily price and fx observations. Upserts are keyed
// (ticker, date) and (pair, date): a later write for the same key replaces
// the earlier one, it never duplicates.
type MarketStore interface {
	UpsertPrices(ctx context.Context, obs []domain.PriceObservation) (int, error)
	UpsertFxRates(ctx context.Context, rates []domain.FxRate) (int, error)

	// ListPricesUntil returns all observations dated on or before until for
	// the given tickers (nil means every ticker), date ascending.
	ListPricesUntil(ctx context.Context, tickers []string, until domain.Date) ([]domain.PriceObservation, error)
	// ListFxRatesUntil returns all rate observations dated on or before
	// until, for every stored pair, date ascending.
	ListFxRatesUntil(ctx context.Context, until domain.Date) ([]domain.FxRate, error)
}

// InstrumentStore is the ticker registry.
type InstrumentStore interface {
	UpsertInstrument(ctx context.Context, ins domain.Instrument) error
	GetInstrument(ctx context.Context, ticker string) (domain.Instrument, error)
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)
}
