// Package postgres persists computed snapshots (positions and the daily
// value series) for external consumers like dashboards. It is write-only
// from the application's point of view; the sqlite ledger stays the source
// of truth.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"folio/internal/application/port"
	"folio/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  as_of DATE NOT NULL,
  ticker TEXT NOT NULL,
  quantity NUMERIC NOT NULL,
  avg_cost NUMERIC NOT NULL,
  realized_pnl NUMERIC NOT NULL,
  unrealized_pnl NUMERIC NOT NULL,
  market_value NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY(as_of, ticker)
);

CREATE TABLE IF NOT EXISTS portfolio_history (
  day DATE PRIMARY KEY,
  total_value NUMERIC NOT NULL,
  invested NUMERIC NOT NULL,
  withdrawn NUMERIC NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	return err
}

func (r *Repo) SavePositions(ctx context.Context, asOf domain.Date, positions []domain.Position) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// replace the whole day so closed tickers disappear from the snapshot
	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE as_of = $1`, asOf.Time()); err != nil {
		return err
	}
	for _, p := range positions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO positions(as_of, ticker, quantity, avg_cost, realized_pnl, unrealized_pnl, market_value, currency)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		`, asOf.Time(), p.Ticker, p.Quantity.String(), p.AvgCost.String(),
			p.RealizedPnL.String(), p.UnrealizedPnL.String(), p.MarketValue.String(), string(p.Currency))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) SaveHistory(ctx context.Context, points []domain.HistoryPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO portfolio_history(day, total_value, invested, withdrawn, updated_at)
		VALUES($1, $2, $3, $4, now())
		ON CONFLICT(day) DO UPDATE SET
			total_value=excluded.total_value, invested=excluded.invested,
			withdrawn=excluded.withdrawn, updated_at=now()
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.Date.Time(),
			p.TotalValue.String(), p.Invested.String(), p.Withdrawn.String()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var _ port.SnapshotSink = (*Repo)(nil)
