// Package port declares the contracts between the application services and
// their collaborators: the transaction ledger, the market-data store, the
// snapshot sinks and the response cache. The calculation core never sees
// these interfaces; it works on in-memory snapshots loaded through them.
package port

import (
	"context"
	"errors"

	"folio/internal/domain"
)

// ErrNotFound is returned by lookups that find no row.
var ErrNotFound = errors.New("not found")

// TxFilter narrows a ledger listing; zero values mean no constraint.
type TxFilter struct {
	Ticker string
	Type   domain.TxType
	From   domain.Date
	To     domain.Date
}

// LedgerStore is the append-only transaction ledger. Listings come back
// ascending by timestamp with the id as tiebreak, the order the aggregator
// requires.
type LedgerStore interface {
	Insert(ctx context.Context, tx domain.Transaction) error
	InsertBatch(ctx context.Context, txs []domain.Transaction) (int, error)
	List(ctx context.Context, f TxFilter) ([]domain.Transaction, error)
}
