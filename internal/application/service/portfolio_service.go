package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/domain"
	domainsvc "folio/internal/domain/service"
)

// PortfolioService assembles market snapshots from the stores, runs the
// calculation core over them and hands the results to the snapshot sink.
// Every call recomputes from the source-of-truth ledger; nothing here reads
// a previously computed snapshot back.
type PortfolioService struct {
	ledger      port.LedgerStore
	market      port.MarketStore
	instruments port.InstrumentStore
	sink        port.SnapshotSink
	base        domain.Currency
	allowShort  bool
}

func NewPortfolioService(
	ledger port.LedgerStore,
	market port.MarketStore,
	instruments port.InstrumentStore,
	sink port.SnapshotSink,
	base domain.Currency,
	allowShort bool,
) *PortfolioService {
	return &PortfolioService{
		ledger:      ledger,
		market:      market,
		instruments: instruments,
		sink:        sink,
		base:        base,
		allowShort:  allowShort,
	}
}

// Base reports the portfolio's reporting currency.
func (s *PortfolioService) Base() domain.Currency { return s.base }

// Positions computes the current state of every traded ticker as of the
// given day: quantity, average cost, realized and unrealized P&L and market
// value, sorted by market value descending. Flat tickers stay in the result
// so their realized P&L remains visible.
func (s *PortfolioService) Positions(ctx context.Context, asOf domain.Date) ([]domain.Position, error) {
	txs, err := s.ledger.List(ctx, port.TxFilter{To: asOf})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	md, err := s.loadMarketData(ctx, asOf)
	if err != nil {
		return nil, err
	}

	fx := domainsvc.NewNormalizer(md)
	agg := domainsvc.NewAggregator(fx, s.base, s.allowShort)
	valuer := domainsvc.NewValuer(md, fx, s.base)

	byTicker := make(map[string][]domain.Transaction)
	var order []string
	for _, tx := range txs {
		if _, seen := byTicker[tx.Ticker]; !seen {
			order = append(order, tx.Ticker)
		}
		byTicker[tx.Ticker] = append(byTicker[tx.Ticker], tx)
	}

	positions := make([]domain.Position, 0, len(order))
	for _, ticker := range order {
		pos, err := agg.Aggregate(ticker, byTicker[ticker])
		if err != nil {
			return nil, err
		}
		var quote domain.Currency
		if ins, ok := md.Instrument(ticker); ok {
			quote = ins.Currency
		}
		pos, err = valuer.Value(pos, quote, asOf)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].MarketValue.GreaterThan(positions[j].MarketValue)
	})

	if err := s.sink.SavePositions(ctx, asOf, positions); err != nil {
		// snapshot persistence is a cache of derived data; computation
		// already succeeded
		log.Warn().Err(err).Str("as_of", asOf.String()).Msg("failed to persist positions snapshot")
	}
	return positions, nil
}

// History builds the daily portfolio value series over [from, to] and
// persists it through the sink.
func (s *PortfolioService) History(ctx context.Context, from, to domain.Date) ([]domain.HistoryPoint, error) {
	points, err := s.buildHistory(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.sink.SaveHistory(ctx, points); err != nil {
		log.Warn().Err(err).Msg("failed to persist history snapshot")
	}
	return points, nil
}

// RebuildHistory recomputes the full series from the first ledger entry to
// today and persists it. Returns the number of points written; an empty
// ledger rebuilds to nothing.
func (s *PortfolioService) RebuildHistory(ctx context.Context) (int, error) {
	txs, err := s.ledger.List(ctx, port.TxFilter{})
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}
	if len(txs) == 0 {
		return 0, nil
	}
	from := txs[0].Date()
	points, err := s.buildHistory(ctx, from, domain.Today())
	if err != nil {
		return 0, err
	}
	if err := s.sink.SaveHistory(ctx, points); err != nil {
		return 0, fmt.Errorf("persist history: %w", err)
	}
	return len(points), nil
}

func (s *PortfolioService) buildHistory(ctx context.Context, from, to domain.Date) ([]domain.HistoryPoint, error) {
	txs, err := s.ledger.List(ctx, port.TxFilter{To: to})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	md, err := s.loadMarketData(ctx, to)
	if err != nil {
		return nil, err
	}

	fx := domainsvc.NewNormalizer(md)
	agg := domainsvc.NewAggregator(fx, s.base, s.allowShort)
	valuer := domainsvc.NewValuer(md, fx, s.base)
	builder := domainsvc.NewHistoryBuilder(agg, valuer, fx, md)

	return builder.Build(txs, from, to)
}

// loadMarketData reads everything the core may look up, up front, so the
// core itself never blocks on storage.
func (s *PortfolioService) loadMarketData(ctx context.Context, until domain.Date) (*domain.MarketData, error) {
	prices, err := s.market.ListPricesUntil(ctx, nil, until)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	rates, err := s.market.ListFxRatesUntil(ctx, until)
	if err != nil {
		return nil, fmt.Errorf("list fx rates: %w", err)
	}
	instruments, err := s.instruments.ListInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	return domain.NewMarketData(prices, rates, instruments), nil
}
