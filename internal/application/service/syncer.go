package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/domain"
)

// MarketDataSyncer keeps the market store populated: on a fixed interval it
// pulls daily candles for every registered instrument plus the fx pairs
// needed to reach the base currency, and upserts them. The calculation core
// never sees the provider or the schedule; it only ever reads the store.
type MarketDataSyncer struct {
	provider    port.MarketDataProvider
	market      port.MarketStore
	instruments port.InstrumentStore
	ledger      port.LedgerStore
	cache       port.Cache
	base        domain.Currency
	interval    time.Duration
	historyDays int
}

func NewMarketDataSyncer(
	provider port.MarketDataProvider,
	market port.MarketStore,
	instruments port.InstrumentStore,
	ledger port.LedgerStore,
	cache port.Cache,
	base domain.Currency,
	interval time.Duration,
	historyDays int,
) *MarketDataSyncer {
	if interval <= 0 {
		interval = time.Hour
	}
	if historyDays <= 0 {
		historyDays = 365 * 5
	}
	return &MarketDataSyncer{
		provider:    provider,
		market:      market,
		instruments: instruments,
		ledger:      ledger,
		cache:       cache,
		base:        base,
		interval:    interval,
		historyDays: historyDays,
	}
}

// Start syncs once immediately, then keeps syncing on the interval until the
// context is done.
func (s *MarketDataSyncer) Start(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil {
		log.Error().Err(err).Msg("initial market data sync failed")
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sync(ctx); err != nil {
					log.Error().Err(err).Msg("market data sync failed")
				}
			}
		}
	}()
}

// Sync runs one refresh pass and reports how many observations were written.
// Individual tickers and pairs fail soft: one unreachable symbol must not
// starve the rest of the portfolio of fresh prices.
func (s *MarketDataSyncer) Sync(ctx context.Context) (int, error) {
	instruments, err := s.ensureInstruments(ctx)
	if err != nil {
		return 0, err
	}
	if len(instruments) == 0 {
		log.Warn().Msg("no instruments registered, nothing to sync")
		return 0, nil
	}

	to := domain.Today()
	from := to.AddDays(-s.historyDays)
	written := 0

	currencies := map[domain.Currency]struct{}{}
	for _, ins := range instruments {
		candles, err := s.provider.DailyCandles(ctx, ins.Ticker, from, to)
		if err != nil {
			log.Warn().Err(err).Str("ticker", ins.Ticker).Msg("failed to fetch candles")
			continue
		}
		n, err := s.market.UpsertPrices(ctx, candles)
		if err != nil {
			return written, err
		}
		written += n
		if ins.Currency != "" {
			currencies[ins.Currency] = struct{}{}
		}
	}

	for cur := range currencies {
		if cur == s.base {
			continue
		}
		// fetch both directions; sparse providers often carry only one, and
		// the normalizer can take the reciprocal of whichever exists
		for _, pair := range []domain.Pair{{From: cur, To: s.base}, {From: s.base, To: cur}} {
			rates, err := s.provider.DailyRates(ctx, pair, from, to)
			if err != nil {
				log.Warn().Err(err).Str("pair", pair.String()).Msg("failed to fetch fx rates")
				continue
			}
			n, err := s.market.UpsertFxRates(ctx, rates)
			if err != nil {
				return written, err
			}
			written += n
		}
	}

	s.cache.Clear(ctx, "")
	log.Info().Int("written", written).Int("instruments", len(instruments)).Msg("market data synced")
	return written, nil
}

// RunQuoteFeed consumes a live quote stream and folds each push into the
// market store as today's (provisional) close. Blocks until the context is
// done or the feed closes.
func (s *MarketDataSyncer) RunQuoteFeed(ctx context.Context, feed port.QuoteFeed, tickers []string) error {
	quotes, err := feed.Subscribe(ctx, tickers)
	if err != nil {
		return err
	}
	log.Info().Str("feed", feed.Name()).Int("tickers", len(tickers)).Msg("quote feed attached")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-quotes:
			if !ok {
				return nil
			}
			if !q.Price.IsPositive() {
				continue
			}
			obs := domain.PriceObservation{
				Ticker:   q.Ticker,
				Date:     domain.DateOf(time.UnixMilli(q.Ts)),
				Open:     q.Price,
				High:     q.Price,
				Low:      q.Price,
				Close:    q.Price,
				Currency: q.Currency,
			}
			if _, err := s.market.UpsertPrices(ctx, []domain.PriceObservation{obs}); err != nil {
				log.Warn().Err(err).Str("ticker", q.Ticker).Msg("failed to store live quote")
			}
		}
	}
}

// ensureInstruments returns the registry, first backfilling entries for any
// ticker that appears in the ledger but was never registered.
func (s *MarketDataSyncer) ensureInstruments(ctx context.Context) ([]domain.Instrument, error) {
	instruments, err := s.instruments.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(instruments))
	for _, ins := range instruments {
		known[ins.Ticker] = struct{}{}
	}

	txs, err := s.ledger.List(ctx, port.TxFilter{})
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if _, ok := known[tx.Ticker]; ok {
			continue
		}
		known[tx.Ticker] = struct{}{}

		ins, err := s.provider.InstrumentInfo(ctx, tx.Ticker)
		if err != nil {
			// fall back to what the ledger itself tells us
			log.Warn().Err(err).Str("ticker", tx.Ticker).Msg("instrument lookup failed, using ledger currency")
			ins = domain.Instrument{Ticker: tx.Ticker, Currency: tx.Currency}
		}
		if err := s.instruments.UpsertInstrument(ctx, ins); err != nil {
			return nil, err
		}
		instruments = append(instruments, ins)
	}
	return instruments, nil
}
