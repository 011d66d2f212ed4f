// Package sqlite is the source-of-truth store: the transaction ledger,
// cached market observations and the instrument registry all live in one
// embedded database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"folio/internal/application/port"
	"folio/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  ticker TEXT NOT NULL,
  type TEXT NOT NULL,
  quantity TEXT NOT NULL,
  price TEXT NOT NULL,
  currency TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_ticker ON transactions(ticker);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts_ms);

CREATE TABLE IF NOT EXISTS prices (
  ticker TEXT NOT NULL,
  day TEXT NOT NULL,
  open TEXT NOT NULL,
  high TEXT NOT NULL,
  low TEXT NOT NULL,
  close TEXT NOT NULL,
  volume INTEGER NOT NULL,
  currency TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY(ticker, day)
);
CREATE INDEX IF NOT EXISTS idx_prices_day ON prices(day);

CREATE TABLE IF NOT EXISTS fx_rates (
  from_cur TEXT NOT NULL,
  to_cur TEXT NOT NULL,
  day TEXT NOT NULL,
  rate TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY(from_cur, to_cur, day)
);
CREATE INDEX IF NOT EXISTS idx_fx_rates_day ON fx_rates(day);

CREATE TABLE IF NOT EXISTS instruments (
  ticker TEXT PRIMARY KEY,
  currency TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  exchange TEXT NOT NULL DEFAULT '',
  asset_type TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL
);
`)
	return err
}

func (r *Repo) Insert(ctx context.Context, tx domain.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(id, ticker, type, quantity, price, currency, ts_ms, note, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.Ticker, string(tx.Type), tx.Quantity.String(), tx.Price.String(),
		string(tx.Currency), tx.Timestamp.UnixMilli(), tx.Note, time.Now().UnixMilli())
	return err
}

func (r *Repo) InsertBatch(ctx context.Context, txs []domain.Transaction) (int, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = dbTx.Rollback() }()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO transactions(id, ticker, type, quantity, price, currency, ts_ms, note, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx, tx.ID, tx.Ticker, string(tx.Type),
			tx.Quantity.String(), tx.Price.String(), string(tx.Currency),
			tx.Timestamp.UnixMilli(), tx.Note, now); err != nil {
			return 0, err
		}
	}
	if err := dbTx.Commit(); err != nil {
		return 0, err
	}
	return len(txs), nil
}

func (r *Repo) List(ctx context.Context, f port.TxFilter) ([]domain.Transaction, error) {
	query := `
		SELECT id, ticker, type, quantity, price, currency, ts_ms, note
		FROM transactions
	`
	var where []string
	var args []any
	if f.Ticker != "" {
		where = append(where, "ticker = ?")
		args = append(args, f.Ticker)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if !f.From.IsZero() {
		where = append(where, "ts_ms >= ?")
		args = append(args, f.From.Time().UnixMilli())
	}
	if !f.To.IsZero() {
		// inclusive of the whole day
		where = append(where, "ts_ms < ?")
		args = append(args, f.To.AddDays(1).Time().UnixMilli())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_ms ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var typ, qty, price, cur string
		var tsMs int64
		if err := rows.Scan(&tx.ID, &tx.Ticker, &typ, &qty, &price, &cur, &tsMs, &tx.Note); err != nil {
			return nil, err
		}
		tx.Type = domain.TxType(typ)
		if tx.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("transaction %s: bad quantity %q", tx.ID, qty)
		}
		if tx.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %s: bad price %q", tx.ID, price)
		}
		tx.Currency = domain.Currency(cur)
		tx.Timestamp = time.UnixMilli(tsMs).UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertPrices(ctx context.Context, obs []domain.PriceObservation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = dbTx.Rollback() }()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO prices(ticker, day, open, high, low, close, volume, currency, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, day) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume,
			currency=excluded.currency, updated_at=excluded.updated_at
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.Ticker, o.Date.String(),
			o.Open.String(), o.High.String(), o.Low.String(), o.Close.String(),
			o.Volume, string(o.Currency), now); err != nil {
			return 0, err
		}
	}
	if err := dbTx.Commit(); err != nil {
		return 0, err
	}
	return len(obs), nil
}

func (r *Repo) UpsertFxRates(ctx context.Context, rates []domain.FxRate) (int, error) {
	if len(rates) == 0 {
		return 0, nil
	}
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = dbTx.Rollback() }()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO fx_rates(from_cur, to_cur, day, rate, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(from_cur, to_cur, day) DO UPDATE SET
			rate=excluded.rate, updated_at=excluded.updated_at
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, rate := range rates {
		if _, err := stmt.ExecContext(ctx, string(rate.Pair.From), string(rate.Pair.To),
			rate.Date.String(), rate.Rate.String(), now); err != nil {
			return 0, err
		}
	}
	if err := dbTx.Commit(); err != nil {
		return 0, err
	}
	return len(rates), nil
}

func (r *Repo) ListPricesUntil(ctx context.Context, tickers []string, until domain.Date) ([]domain.PriceObservation, error) {
	query := `
		SELECT ticker, day, open, high, low, close, volume, currency
		FROM prices
		WHERE day <= ?
	`
	args := []any{until.String()}
	if len(tickers) > 0 {
		query += " AND ticker IN (?" + strings.Repeat(", ?", len(tickers)-1) + ")"
		for _, t := range tickers {
			args = append(args, t)
		}
	}
	query += " ORDER BY ticker, day"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PriceObservation
	for rows.Next() {
		var o domain.PriceObservation
		var day, open, high, low, closePx, cur string
		if err := rows.Scan(&o.Ticker, &day, &open, &high, &low, &closePx, &o.Volume, &cur); err != nil {
			return nil, err
		}
		if o.Date, err = domain.ParseDate(day); err != nil {
			return nil, err
		}
		if o.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("price %s/%s: bad open %q", o.Ticker, day, open)
		}
		if o.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("price %s/%s: bad high %q", o.Ticker, day, high)
		}
		if o.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("price %s/%s: bad low %q", o.Ticker, day, low)
		}
		if o.Close, err = decimal.NewFromString(closePx); err != nil {
			return nil, fmt.Errorf("price %s/%s: bad close %q", o.Ticker, day, closePx)
		}
		o.Currency = domain.Currency(cur)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ListFxRatesUntil(ctx context.Context, until domain.Date) ([]domain.FxRate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT from_cur, to_cur, day, rate
		FROM fx_rates
		WHERE day <= ?
		ORDER BY from_cur, to_cur, day
	`, until.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FxRate
	for rows.Next() {
		var fr domain.FxRate
		var from, to, day, rate string
		if err := rows.Scan(&from, &to, &day, &rate); err != nil {
			return nil, err
		}
		fr.Pair = domain.Pair{From: domain.Currency(from), To: domain.Currency(to)}
		if fr.Date, err = domain.ParseDate(day); err != nil {
			return nil, err
		}
		if fr.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("fx rate %s/%s: bad rate %q", fr.Pair, day, rate)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertInstrument(ctx context.Context, ins domain.Instrument) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instruments(ticker, currency, name, exchange, asset_type, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			currency=excluded.currency, name=excluded.name,
			exchange=excluded.exchange, asset_type=excluded.asset_type,
			updated_at=excluded.updated_at
	`, ins.Ticker, string(ins.Currency), ins.Name, ins.Exchange, ins.AssetType, time.Now().UnixMilli())
	return err
}

func (r *Repo) GetInstrument(ctx context.Context, ticker string) (domain.Instrument, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ticker, currency, name, exchange, asset_type
		FROM instruments
		WHERE ticker = ?
	`, ticker)

	var ins domain.Instrument
	var cur string
	err := row.Scan(&ins.Ticker, &cur, &ins.Name, &ins.Exchange, &ins.AssetType)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Instrument{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Instrument{}, err
	}
	ins.Currency = domain.Currency(cur)
	return ins, nil
}

func (r *Repo) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ticker, currency, name, exchange, asset_type
		FROM instruments
		ORDER BY ticker
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		var ins domain.Instrument
		var cur string
		if err := rows.Scan(&ins.Ticker, &cur, &ins.Name, &ins.Exchange, &ins.AssetType); err != nil {
			return nil, err
		}
		ins.Currency = domain.Currency(cur)
		out = append(out, ins)
	}
	return out, rows.Err()
}
