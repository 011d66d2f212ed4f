package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"folio/internal/application/port"
	"folio/internal/domain"
)

// LedgerService records transactions into the append-only ledger. It owns
// shape validation and id assignment; valuation rules stay in the core.
type LedgerService struct {
	ledger port.LedgerStore
	cache  port.Cache
}

func NewLedgerService(ledger port.LedgerStore, cache port.Cache) *LedgerService {
	return &LedgerService{ledger: ledger, cache: cache}
}

// Record validates and appends a single transaction. A zero Timestamp is
// stamped with the current time; a missing ID gets a fresh uuid.
func (s *LedgerService) Record(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	tx, err := s.normalize(tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := s.ledger.Insert(ctx, tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	s.cache.Clear(ctx, "")
	return tx, nil
}

// List returns ledger entries matching the filter, oldest first.
func (s *LedgerService) List(ctx context.Context, f port.TxFilter) ([]domain.Transaction, error) {
	return s.ledger.List(ctx, f)
}

// ImportCSV bulk-loads transactions from a CSV stream with the header
// date,type,ticker,quantity,price,currency (any column order, case
// insensitive; an optional note column is carried through). The import is
// all-or-nothing: one bad row rejects the whole file.
func (s *LedgerService) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "type", "ticker", "quantity", "price", "currency"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("csv is missing column %q", required)
		}
	}

	var txs []domain.Transaction
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", line, err)
		}

		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		day, err := domain.ParseDate(field("date"))
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", line, err)
		}
		qty, err := decimal.NewFromString(field("quantity"))
		if err != nil {
			return 0, fmt.Errorf("csv line %d: bad quantity %q", line, field("quantity"))
		}
		priceVal, err := decimal.NewFromString(field("price"))
		if err != nil {
			return 0, fmt.Errorf("csv line %d: bad price %q", line, field("price"))
		}

		tx, err := s.normalize(domain.Transaction{
			Ticker:    field("ticker"),
			Type:      domain.TxType(field("type")),
			Quantity:  qty,
			Price:     priceVal,
			Currency:  domain.Currency(field("currency")),
			Timestamp: day.Time(),
			Note:      field("note"),
		})
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", line, err)
		}
		txs = append(txs, tx)
	}

	if len(txs) == 0 {
		return 0, nil
	}
	n, err := s.ledger.InsertBatch(ctx, txs)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	s.cache.Clear(ctx, "")
	return n, nil
}

func (s *LedgerService) normalize(tx domain.Transaction) (domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	tx.Ticker = strings.ToUpper(strings.TrimSpace(tx.Ticker))
	tx.Currency = domain.Currency(strings.ToUpper(strings.TrimSpace(string(tx.Currency))))

	typ, err := domain.ParseTxType(string(tx.Type))
	if err != nil {
		return domain.Transaction{}, &domain.MalformedTransactionError{ID: tx.ID, Reason: err.Error()}
	}
	tx.Type = typ

	if tx.Ticker == "" {
		return domain.Transaction{}, &domain.MalformedTransactionError{ID: tx.ID, Reason: "ticker is required"}
	}
	if tx.Currency == "" {
		return domain.Transaction{}, &domain.MalformedTransactionError{ID: tx.ID, Reason: "currency is required"}
	}

	switch tx.Type {
	case domain.TxBuy, domain.TxSell:
		if !tx.Quantity.IsPositive() {
			return domain.Transaction{}, &domain.MalformedTransactionError{ID: tx.ID, Reason: "quantity must be positive"}
		}
		if !tx.Price.IsPositive() {
			return domain.Transaction{}, &domain.MalformedTransactionError{ID: tx.ID, Reason: "price must be positive"}
		}
	case domain.TxDividend, domain.TxFee:
		if tx.Quantity.IsNegative() || tx.Price.IsNegative() {
			return domain.Transaction{}, &domain.MalformedTransactionError{ID: tx.ID, Reason: "cash amount must not be negative"}
		}
		if tx.GrossAmount().IsZero() {
			return domain.Transaction{}, &domain.MalformedTransactionError{ID: tx.ID, Reason: "cash amount is required"}
		}
	}
	return tx, nil
}
