package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	appsvc "folio/internal/application/service"
	"folio/internal/domain"
	"folio/internal/infrastructure/config"
	"folio/internal/infrastructure/logger"
	"folio/internal/infrastructure/marketdata"
	"folio/internal/infrastructure/marketdata/stream"
	"folio/internal/infrastructure/storage/composite"
	"folio/internal/infrastructure/storage/noop"
	redisstore "folio/internal/infrastructure/storage/redis"
	"folio/internal/infrastructure/storage/sqlite"
	"folio/internal/interfaces/rest"

	pgstore "folio/internal/infrastructure/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger.Setup(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// source of truth
	repo, err := sqlite.New(cfg.Storage.SQLite.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.SQLite.Path).Msg("open sqlite failed")
	}
	defer repo.Close()

	// snapshot sinks (optional)
	var sinks []port.SnapshotSink
	if cfg.Storage.Postgres.Enabled {
		pg, err := pgstore.New(cfg.Storage.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres failed")
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	} else {
		log.Warn().Msg("postgres disabled by config, snapshots are not persisted")
	}
	var sink port.SnapshotSink = noop.Sink{}
	if len(sinks) > 0 {
		sink = composite.New(sinks...)
	}

	// response cache (optional)
	var cache port.Cache = noop.Cache{}
	if cfg.Storage.Redis.Enabled {
		rdb := goredis.NewClient(&goredis.Options{
			Addr: cfg.Storage.Redis.Addr,
			DB:   cfg.Storage.Redis.DB,
		})
		defer rdb.Close()
		cache = redisstore.New(rdb, cfg.Storage.Redis.Prefix,
			time.Duration(cfg.Storage.Redis.TTLSec)*time.Second)
	} else {
		log.Warn().Msg("redis disabled by config, responses are recomputed on every request")
	}

	base := domain.Currency(cfg.App.BaseCurrency)
	portfolio := appsvc.NewPortfolioService(repo, repo, repo, sink, base, cfg.App.AllowShort)
	ledger := appsvc.NewLedgerService(repo, cache)

	provider := marketdata.NewClient(cfg.MarketData.BaseURL)
	syncer := appsvc.NewMarketDataSyncer(provider, repo, repo, repo, cache, base,
		time.Duration(cfg.MarketData.RefreshEveryMin)*time.Minute, cfg.MarketData.HistoryDays)

	if cfg.MarketData.Enabled {
		syncer.Start(ctx)

		if cfg.MarketData.WsURL != "" {
			feed := stream.NewQuoteFeed(cfg.MarketData.WsURL)
			go func() {
				instruments, err := repo.ListInstruments(ctx)
				if err != nil {
					log.Error().Err(err).Msg("list instruments for quote feed failed")
					return
				}
				tickers := make([]string, 0, len(instruments))
				for _, ins := range instruments {
					tickers = append(tickers, ins.Ticker)
				}
				if len(tickers) == 0 {
					log.Warn().Msg("no instruments registered, quote feed not started")
					return
				}
				if err := syncer.RunQuoteFeed(ctx, feed, tickers); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("quote feed exited")
				}
			}()
		}
	} else {
		log.Warn().Msg("market data sync disabled by config")
	}

	handlers := rest.NewHandlers(portfolio, ledger, repo, syncer, cache,
		time.Duration(cfg.Storage.Redis.TTLSec)*time.Second)
	server := rest.NewServer(cfg.HTTP.Port, cfg.HTTP.CorsOrigins, handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().
		Str("config", *configPath).
		Str("base_currency", cfg.App.BaseCurrency).
		Int("port", cfg.HTTP.Port).
		Msg("folio started")

	if err := server.Start(); err != nil {
		log.Error().Err(err).Msg("http server exited")
	}
}
