package port

import (
	"context"

	"github.com/shopspring/decimal"

	"folio/internal/domain"
)

// MarketDataProvider is the upstream quote source the syncer pulls from.
// Fetching policy (batching, retries, rate limits) lives behind this
// interface, outside the core.
type MarketDataProvider interface {
	// DailyCandles returns daily observations for a ticker over [from, to].
	DailyCandles(ctx context.Context, ticker string, from, to domain.Date) ([]domain.PriceObservation, error)
	// DailyRates returns daily fx observations for a directed pair over
	// [from, to].
	DailyRates(ctx context.Context, pair domain.Pair, from, to domain.Date) ([]domain.FxRate, error)
	// InstrumentInfo resolves registry metadata for a ticker.
	InstrumentInfo(ctx context.Context, ticker string) (domain.Instrument, error)
}

// Quote is one live price push from a streaming feed.
type Quote struct {
	Ticker   string
	Price    decimal.Decimal
	Currency domain.Currency
	Ts       int64 // unix ms
}

// QuoteFeed streams live quotes for a set of tickers. The channel closes
// when the context is done or the upstream gives up for good.
type QuoteFeed interface {
	Name() string
	Subscribe(ctx context.Context, tickers []string) (<-chan Quote, error)
}
